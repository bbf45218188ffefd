package main

import (
	"crypto/rand"
)

// RoomStatus tracks the lifecycle of a room. Transitions only move
// forward: waiting → playing → finished.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// Player holds the data we store server-side for each room member.
type Player struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	IsOwner      bool   `json:"isOwner"`
	IsEliminated bool   `json:"isEliminated"`
	HasGuessed   bool   `json:"hasGuessed"`
	JoinOrder    int    `json:"joinOrder"`
}

// Question is one entry in a room's question pool.
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// GameState holds the per-round cursor. CurrentRound is 0 until the
// game starts, then increments monotonically.
type GameState struct {
	CurrentRound      int    `json:"currentRound"`
	CurrentPlayerID   string `json:"currentPlayerId"`
	CurrentQuestionID string `json:"currentQuestionId"`
}

// Room is the aggregate document held by the store. Answers maps
// questionID → playerID → the true answer text; AllAnswers maps
// questionID → the shuffled choice set shown to guessers.
type Room struct {
	ID              string                       `json:"id"`
	Status          RoomStatus                   `json:"status"`
	Winner          string                       `json:"winner,omitempty"`
	Players         map[string]*Player           `json:"players"`
	Questions       []Question                   `json:"questions"`
	CurrentQuestion *Question                    `json:"currentQuestion,omitempty"`
	GameState       GameState                    `json:"gameState"`
	Answers         map[string]map[string]string `json:"answers"`
	AllAnswers      map[string][]string          `json:"allAnswers"`
}

func newRoom(id string) *Room {
	return &Room{
		ID:         id,
		Status:     RoomWaiting,
		Players:    make(map[string]*Player),
		Answers:    make(map[string]map[string]string),
		AllAnswers: make(map[string][]string),
	}
}

// clone deep-copies a room so callers can mutate the copy without
// affecting the committed document.
func (r *Room) clone() *Room {
	out := &Room{
		ID:         r.ID,
		Status:     r.Status,
		Winner:     r.Winner,
		GameState:  r.GameState,
		Players:    make(map[string]*Player, len(r.Players)),
		Questions:  make([]Question, len(r.Questions)),
		Answers:    make(map[string]map[string]string, len(r.Answers)),
		AllAnswers: make(map[string][]string, len(r.AllAnswers)),
	}

	for id, p := range r.Players {
		cp := *p
		out.Players[id] = &cp
	}

	copy(out.Questions, r.Questions)

	if r.CurrentQuestion != nil {
		q := *r.CurrentQuestion
		out.CurrentQuestion = &q
	}

	for qid, byPlayer := range r.Answers {
		m := make(map[string]string, len(byPlayer))
		for pid, text := range byPlayer {
			m[pid] = text
		}
		out.Answers[qid] = m
	}

	for qid, choices := range r.AllAnswers {
		cs := make([]string, len(choices))
		copy(cs, choices)
		out.AllAnswers[qid] = cs
	}

	return out
}

// randomRoomID generates a 4-digit join code via crypto/rand, using
// rejection sampling to keep the distribution uniform.
func randomRoomID() string {
	const digits = "0123456789"
	const max = byte(255 - (256 % 10))

	out := make([]byte, 0, 4)
	buf := make([]byte, 8)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b > max {
				continue
			}
			// Leading digit stays nonzero so codes are always 4 characters.
			if len(out) == 0 && b%10 == 0 {
				continue
			}
			out = append(out, digits[int(b)%10])
			if len(out) == 4 {
				return string(out)
			}
		}
	}
}
