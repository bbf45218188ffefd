// Knowme Game
//
// Players join a shared room and take turns answering personal questions.
// When the current answerer submits their true answer, a set of plausible
// fake answers is generated and shuffled in with it. The other players then
// guess which answer is real; a wrong guess eliminates the guesser. Once
// every remaining player has guessed, the next round starts with a new
// random answerer and question. The last player standing wins.
//
// Every mutation below is expressed as a single compare-and-swap
// transition against the room store, so concurrent guesses cannot corrupt
// per-round flags and round advancement fires at most once per round.

package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Engine coordinates the room repository, player registry and
// question/answer exchange into the round state machine.
type Engine struct {
	store *RoomStore
	gen   DistractorGenerator
	rng   *rand.Rand
	cfg   *Config
}

func newEngine(cfg *Config, store *RoomStore, gen DistractorGenerator, rng *rand.Rand) *Engine {
	return &Engine{
		store: store,
		gen:   gen,
		rng:   rng,
		cfg:   cfg,
	}
}

// lockedSource makes a math/rand source safe for concurrent handlers.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source64
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

func newLockedRand(seed int64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewSource(seed).(rand.Source64)})
}

func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

// roomIDAttempts bounds how many join codes CreateRoom draws before
// giving up on a crowded ID space.
const roomIDAttempts = 100

// CreateRoom allocates a fresh room with the creator as its owner.
// Uniqueness is enforced by the store's insert itself, so a colliding
// draw just triggers another attempt instead of clobbering a live room.
func (e *Engine) CreateRoom(nickname string) (*Room, *Player, error) {
	for attempt := 0; attempt < roomIDAttempts; attempt++ {
		room := newRoom(randomRoomID())
		owner, err := addPlayer(room, nickname)
		if err != nil {
			return nil, nil, err
		}
		owner.IsOwner = true

		if !e.store.Insert(room) {
			continue
		}

		logf(e.cfg, "ROOMS: Created room %s for %q", room.ID, nickname)
		return room, owner, nil
	}

	return nil, nil, fmt.Errorf("%w: no free room id after %d attempts", ErrStoreConflict, roomIDAttempts)
}

// JoinRoom appends a new player to a waiting room.
func (e *Engine) JoinRoom(roomID, nickname string) (*Room, *Player, error) {
	var joined *Player

	room, err := e.store.Update(roomID, func(room *Room) error {
		player, err := addPlayer(room, nickname)
		if err != nil {
			return err
		}
		joined = player
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logf(e.cfg, "ROOMS: Player %q joined room %s", nickname, roomID)
	return room, joined, nil
}

// LeaveRoom removes a player. While waiting, the entry is deleted and
// ownership promotes if needed; an emptied room is closed. While
// playing, the player is marked eliminated instead, keeping the round
// cursor valid, and the round moves on without them.
func (e *Engine) LeaveRoom(roomID, playerID string) error {
	emptied := false

	_, err := e.store.Update(roomID, func(room *Room) error {
		emptied = false

		switch room.Status {
		case RoomWaiting:
			if err := removePlayer(room, playerID); err != nil {
				return err
			}
			emptied = len(room.Players) == 0
			return nil

		case RoomPlaying:
			player, ok := room.Players[playerID]
			if !ok {
				return ErrPlayerNotFound
			}
			wasAnswerer := room.GameState.CurrentPlayerID == playerID
			player.IsEliminated = true

			e.checkTermination(room)
			if room.Status == RoomFinished {
				return nil
			}
			if wasAnswerer || allGuessed(room) {
				return e.advanceRound(room)
			}
			return nil

		default:
			// Finished rooms are read-only; leaving is a no-op.
			return nil
		}
	})
	if err != nil {
		return err
	}

	if emptied {
		e.store.Delete(roomID)
		logf(e.cfg, "ROOMS: Closed empty room %s", roomID)
	}

	return nil
}

// AddQuestion adds a custom question to a waiting room's pool.
func (e *Engine) AddQuestion(roomID, text string) (Question, error) {
	var added Question

	_, err := e.store.Update(roomID, func(room *Room) error {
		q, err := addQuestion(room, text)
		if err != nil {
			return err
		}
		added = q
		return nil
	})

	return added, err
}

// GetRoom returns a snapshot of the room document.
func (e *Engine) GetRoom(roomID string) (*Room, error) {
	return e.store.Get(roomID)
}

// StartGame transitions a waiting room to playing and seeds round 1
// with a random answerer and question. Only the owner may start, and
// only with enough players for at least one guesser per round.
func (e *Engine) StartGame(roomID, playerID string) (*Room, error) {
	room, err := e.store.Update(roomID, func(room *Room) error {
		if room.Status != RoomWaiting {
			return fmt.Errorf("%w: room %s is %s", ErrInvalidTransition, room.ID, room.Status)
		}

		caller, ok := room.Players[playerID]
		if !ok {
			return ErrPlayerNotFound
		}
		if !caller.IsOwner {
			return fmt.Errorf("%w: only the owner can start the game", ErrInvalidTransition)
		}

		if len(room.Players) < e.cfg.minPlayers {
			return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPlayers, len(room.Players), e.cfg.minPlayers)
		}

		if len(room.Questions) == 0 {
			seedQuestions(room, defaultQuestions)
		}

		question, err := randomQuestion(room, e.rng)
		if err != nil {
			return err
		}
		answerer, err := selectRandomPlayer(room, e.rng, "")
		if err != nil {
			return err
		}

		room.Status = RoomPlaying
		room.GameState = GameState{
			CurrentRound:      1,
			CurrentPlayerID:   answerer.ID,
			CurrentQuestionID: question.ID,
		}
		room.CurrentQuestion = &question

		return nil
	})
	if err != nil {
		return nil, err
	}

	logf(e.cfg, "GAMES: Started game in room %s, round 1, answerer %s", roomID, room.GameState.CurrentPlayerID)
	return room, nil
}

// SubmitAnswer records the current answerer's true answer and persists
// the shuffled choice set in the same transition. The distractor call
// happens before the transition opens, so a failed generation leaves
// the round untouched.
func (e *Engine) SubmitAnswer(ctx context.Context, roomID, playerID, questionID, text string) (*Room, error) {
	room, err := e.store.Get(roomID)
	if err != nil {
		return nil, err
	}
	if err := validateAnswerer(room, playerID, questionID); err != nil {
		return nil, err
	}
	if _, exists := trueAnswer(room, questionID, playerID); exists {
		return nil, ErrDuplicateAnswer
	}

	question, ok := questionByID(room, questionID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown question %s", ErrAnswerNotFound, questionID)
	}

	distractors, err := e.gen.Distractors(ctx, question.Text, text, e.cfg.distractorCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDistractorGeneration, err)
	}

	choices, err := buildChoiceSet(text, distractors, e.cfg.distractorCount, e.rng)
	if err != nil {
		return nil, err
	}

	room, err = e.store.Update(roomID, func(room *Room) error {
		if err := validateAnswerer(room, playerID, questionID); err != nil {
			return err
		}
		if err := recordAnswer(room, playerID, questionID, text); err != nil {
			return err
		}
		room.AllAnswers[questionID] = choices
		return nil
	})
	if err != nil {
		return nil, err
	}

	logf(e.cfg, "GAMES: Answer submitted for question %s in room %s (%d choices)", questionID, roomID, len(choices))
	return room, nil
}

func validateAnswerer(room *Room, playerID, questionID string) error {
	if room.Status != RoomPlaying {
		return ErrGameNotPlaying
	}
	if room.GameState.CurrentPlayerID != playerID {
		return ErrNotCurrentAnswerer
	}
	if room.GameState.CurrentQuestionID != questionID {
		return fmt.Errorf("%w: question %s is not the current question", ErrInvalidTransition, questionID)
	}
	return nil
}

// GuessResult reports the outcome of a single guess and any downstream
// transitions it triggered.
type GuessResult struct {
	Correct       bool   `json:"correct"`
	Eliminated    bool   `json:"eliminated"`
	RoundAdvanced bool   `json:"roundAdvanced"`
	Finished      bool   `json:"finished"`
	Winner        string `json:"winner,omitempty"`
}

// SubmitGuess evaluates one player's guess at another player's true
// answer. The comparison, elimination, termination check and round
// advancement all apply inside one store transition. Termination takes
// priority: if the guess leaves a single active player, the room
// finishes and no advancement is attempted.
func (e *Engine) SubmitGuess(roomID, playerID, targetPlayerID, questionID, guessed string) (GuessResult, *Room, error) {
	var result GuessResult

	room, err := e.store.Update(roomID, func(room *Room) error {
		result = GuessResult{}

		if room.Status != RoomPlaying {
			return ErrGameNotPlaying
		}

		guesser, ok := room.Players[playerID]
		if !ok {
			return ErrPlayerNotFound
		}
		if playerID == room.GameState.CurrentPlayerID {
			return fmt.Errorf("%w: the current answerer cannot guess", ErrInvalidTransition)
		}
		if guesser.IsEliminated {
			return fmt.Errorf("%w: eliminated players cannot guess", ErrInvalidTransition)
		}
		if guesser.HasGuessed {
			return ErrAlreadyGuessed
		}
		if questionID != room.GameState.CurrentQuestionID {
			return fmt.Errorf("%w: question %s is not the current question", ErrInvalidTransition, questionID)
		}

		if _, ready := choiceSet(room, questionID); !ready {
			return ErrChoicesNotReady
		}

		truth, ok := trueAnswer(room, questionID, targetPlayerID)
		if !ok {
			return ErrAnswerNotFound
		}

		result.Correct = strings.EqualFold(strings.TrimSpace(guessed), strings.TrimSpace(truth))
		guesser.HasGuessed = true
		if !result.Correct {
			guesser.IsEliminated = true
			result.Eliminated = true
		}

		if winner := e.checkTermination(room); winner != nil {
			result.Finished = true
			result.Winner = winner.ID
			return nil
		}
		if room.Status == RoomFinished {
			result.Finished = true
			return nil
		}

		if allGuessed(room) {
			if err := e.advanceRound(room); err != nil {
				return err
			}
			result.RoundAdvanced = true
		}

		return nil
	})
	if err != nil {
		return GuessResult{}, nil, err
	}

	logf(e.cfg, "GAMES: Guess by %s on %s in room %s: correct=%t advanced=%t finished=%t",
		playerID, targetPlayerID, roomID, result.Correct, result.RoundAdvanced, result.Finished)

	return result, room, nil
}

// checkTermination finishes the game when a single active player
// remains, recording them as the winner. A zero-player active set
// cannot happen through guesses, since the answerer never guesses in
// their own round; if it shows up anyway the room is finished as
// corrupt with no winner.
func (e *Engine) checkTermination(room *Room) *Player {
	active := activePlayers(room)

	switch len(active) {
	case 1:
		room.Status = RoomFinished
		room.Winner = active[0].ID
		logf(e.cfg, "GAMES: Room %s finished, winner %s", room.ID, room.Winner)
		return active[0]
	case 0:
		room.Status = RoomFinished
		logf(e.cfg, "GAMES: Room %s finished with no active players", room.ID)
		return nil
	default:
		return nil
	}
}

// allGuessed is the single authoritative round-completion predicate:
// every active player other than the current answerer has guessed.
func allGuessed(room *Room) bool {
	for _, p := range activePlayers(room) {
		if p.ID == room.GameState.CurrentPlayerID {
			continue
		}
		if !p.HasGuessed {
			return false
		}
	}
	return true
}

// advanceRound moves the room to the next round: new random answerer
// and question, per-round guess flags cleared. Choice sets are keyed
// per question, so the previous round's set simply goes stale.
func (e *Engine) advanceRound(room *Room) error {
	answerer, err := selectRandomPlayer(room, e.rng, "")
	if err != nil {
		return err
	}
	question, err := randomQuestion(room, e.rng)
	if err != nil {
		return err
	}

	room.GameState.CurrentRound++
	room.GameState.CurrentPlayerID = answerer.ID
	room.GameState.CurrentQuestionID = question.ID
	room.CurrentQuestion = &question

	for _, p := range room.Players {
		if !p.IsEliminated {
			p.HasGuessed = false
		}
	}

	logf(e.cfg, "GAMES: Room %s advanced to round %d, answerer %s", room.ID, room.GameState.CurrentRound, answerer.ID)
	return nil
}
