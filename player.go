package main

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// addPlayer appends a new non-owner player to a waiting room.
func addPlayer(room *Room, nickname string) (*Player, error) {
	if room.Status != RoomWaiting {
		return nil, ErrRoomNotJoinable
	}

	player := &Player{
		ID:        uuid.NewString(),
		Nickname:  nickname,
		JoinOrder: nextJoinOrder(room),
	}
	room.Players[player.ID] = player

	return player, nil
}

func nextJoinOrder(room *Room) int {
	next := 0
	for _, p := range room.Players {
		if p.JoinOrder >= next {
			next = p.JoinOrder + 1
		}
	}
	return next
}

// removePlayer deletes a player's entry. If the owner is removed,
// ownership moves to the earliest-joined remaining player so exactly
// one owner exists while the room is populated.
func removePlayer(room *Room, playerID string) error {
	player, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}

	delete(room.Players, playerID)

	if player.IsOwner {
		if next := earliestJoined(room); next != nil {
			next.IsOwner = true
		}
	}

	return nil
}

func earliestJoined(room *Room) *Player {
	var found *Player
	for _, p := range room.Players {
		if found == nil || p.JoinOrder < found.JoinOrder {
			found = p
		}
	}
	return found
}

// activePlayers returns the non-eliminated players, ordered by join
// order so random selection is reproducible under a seeded source.
func activePlayers(room *Room) []*Player {
	active := make([]*Player, 0, len(room.Players))
	for _, p := range room.Players {
		if !p.IsEliminated {
			active = append(active, p)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].JoinOrder < active[j].JoinOrder
	})

	return active
}

// selectRandomPlayer picks uniformly among active players, skipping
// excludeID when set.
func selectRandomPlayer(room *Room, rng *rand.Rand, excludeID string) (*Player, error) {
	pool := make([]*Player, 0, len(room.Players))
	for _, p := range activePlayers(room) {
		if excludeID != "" && p.ID == excludeID {
			continue
		}
		pool = append(pool, p)
	}

	if len(pool) == 0 {
		return nil, ErrNoActivePlayers
	}

	return pool[rng.Intn(len(pool))], nil
}
