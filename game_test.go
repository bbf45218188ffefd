package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	distractors []string
	err         error
}

func (s stubGenerator) Distractors(_ context.Context, _, _ string, _ int) ([]string, error) {
	return s.distractors, s.err
}

func testConfig() *Config {
	return &Config{
		minPlayers:      2,
		distractorCount: 3,
		storeRetries:    10,
	}
}

func newTestEngine(gen DistractorGenerator, seed int64) *Engine {
	return newEngine(testConfig(), newRoomStore(10), gen, newLockedRand(seed))
}

// setupPlayingRoom creates a room with the given nicknames, starts the
// game, and returns the room snapshot plus nickname → playerID lookup.
func setupPlayingRoom(t *testing.T, e *Engine, nicknames ...string) (*Room, map[string]string) {
	t.Helper()

	require.NotEmpty(t, nicknames)

	room, owner, err := e.CreateRoom(nicknames[0])
	require.NoError(t, err)

	ids := map[string]string{nicknames[0]: owner.ID}
	for _, nick := range nicknames[1:] {
		_, player, err := e.JoinRoom(room.ID, nick)
		require.NoError(t, err)
		ids[nick] = player.ID
	}

	room, err = e.StartGame(room.ID, owner.ID)
	require.NoError(t, err)

	return room, ids
}

// submitCurrentAnswer submits text as the current answerer's true
// answer and returns the refreshed room.
func submitCurrentAnswer(t *testing.T, e *Engine, roomID, text string) *Room {
	t.Helper()

	room, err := e.GetRoom(roomID)
	require.NoError(t, err)

	room, err = e.SubmitAnswer(context.Background(), roomID, room.GameState.CurrentPlayerID, room.GameState.CurrentQuestionID, text)
	require.NoError(t, err)

	return room
}

func TestStartGame(t *testing.T) {
	e := newTestEngine(stubGenerator{}, 1)

	room, ids := setupPlayingRoom(t, e, "alice", "bob", "carol")

	assert.Equal(t, RoomPlaying, room.Status)
	assert.Equal(t, 1, room.GameState.CurrentRound)
	assert.Contains(t, room.Players, room.GameState.CurrentPlayerID)
	assert.NotEmpty(t, room.GameState.CurrentQuestionID)
	require.NotNil(t, room.CurrentQuestion)
	assert.Equal(t, room.CurrentQuestion.ID, room.GameState.CurrentQuestionID)
	assert.NotEmpty(t, room.Questions)

	for nick, id := range ids {
		assert.False(t, room.Players[id].HasGuessed, nick)
		assert.False(t, room.Players[id].IsEliminated, nick)
	}
}

func TestStartGameRequiresOwner(t *testing.T) {
	e := newTestEngine(stubGenerator{}, 1)

	room, _, err := e.CreateRoom("alice")
	require.NoError(t, err)
	_, bob, err := e.JoinRoom(room.ID, "bob")
	require.NoError(t, err)

	_, err = e.StartGame(room.ID, bob.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartGameRequiresMinimumPlayers(t *testing.T) {
	e := newTestEngine(stubGenerator{}, 1)

	room, owner, err := e.CreateRoom("alice")
	require.NoError(t, err)

	_, err = e.StartGame(room.ID, owner.ID)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
}

func TestStartGameOnlyFromWaiting(t *testing.T) {
	e := newTestEngine(stubGenerator{}, 1)

	room, ids := setupPlayingRoom(t, e, "alice", "bob")

	_, err := e.StartGame(room.ID, ids["alice"])
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitAnswerBuildsChoiceSet(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 2)

	room, _ := setupPlayingRoom(t, e, "alice", "bob", "carol")
	questionID := room.GameState.CurrentQuestionID

	room = submitCurrentAnswer(t, e, room.ID, "Blue")

	choices := room.AllAnswers[questionID]
	require.Len(t, choices, 4)

	occurrences := 0
	seen := make(map[string]bool)
	for _, c := range choices {
		if c == "Blue" {
			occurrences++
		}
		assert.False(t, seen[strings.ToLower(c)], "duplicate choice %q", c)
		seen[strings.ToLower(c)] = true
	}
	assert.Equal(t, 1, occurrences)

	truth := room.Answers[questionID][room.GameState.CurrentPlayerID]
	assert.Equal(t, "Blue", truth)
}

func TestSubmitAnswerRejectsWrongPlayer(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"a", "b", "c"}}, 2)

	room, ids := setupPlayingRoom(t, e, "alice", "bob")

	wrong := ids["alice"]
	if wrong == room.GameState.CurrentPlayerID {
		wrong = ids["bob"]
	}

	_, err := e.SubmitAnswer(context.Background(), room.ID, wrong, room.GameState.CurrentQuestionID, "Blue")
	assert.ErrorIs(t, err, ErrNotCurrentAnswerer)
}

func TestSubmitAnswerRejectsResubmission(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"a", "b", "c"}}, 2)

	room, _ := setupPlayingRoom(t, e, "alice", "bob")
	room = submitCurrentAnswer(t, e, room.ID, "Blue")

	_, err := e.SubmitAnswer(context.Background(), room.ID, room.GameState.CurrentPlayerID, room.GameState.CurrentQuestionID, "Crimson")
	assert.ErrorIs(t, err, ErrDuplicateAnswer)

	// The original answer survives.
	room, err = e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blue", room.Answers[room.GameState.CurrentQuestionID][room.GameState.CurrentPlayerID])
}

func TestSubmitAnswerGeneratorFailureIsAtomic(t *testing.T) {
	e := newTestEngine(stubGenerator{err: assert.AnError}, 2)

	room, _ := setupPlayingRoom(t, e, "alice", "bob")
	questionID := room.GameState.CurrentQuestionID

	_, err := e.SubmitAnswer(context.Background(), room.ID, room.GameState.CurrentPlayerID, questionID, "Blue")
	assert.ErrorIs(t, err, ErrDistractorGeneration)

	room, err = e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Empty(t, room.Answers[questionID])
	assert.NotContains(t, room.AllAnswers, questionID)
}

func TestSubmitGuessCorrectAndIncorrect(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 3)

	room, ids := setupPlayingRoom(t, e, "alice", "bob", "carol")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guessers []string
	for _, id := range ids {
		if id != answerer {
			guessers = append(guessers, id)
		}
	}
	require.Len(t, guessers, 2)

	// Correct guess, case-insensitive, no elimination.
	result, room, err := e.SubmitGuess(room.ID, guessers[0], answerer, questionID, "blue")
	require.NoError(t, err)
	assert.True(t, result.Correct)
	assert.False(t, result.Eliminated)
	assert.True(t, room.Players[guessers[0]].HasGuessed)
	assert.False(t, room.Players[guessers[0]].IsEliminated)

	// Wrong guess eliminates the guesser and, with both guessers done,
	// advances the round.
	result, room, err = e.SubmitGuess(room.ID, guessers[1], answerer, questionID, "Red")
	require.NoError(t, err)
	assert.False(t, result.Correct)
	assert.True(t, result.Eliminated)
	assert.True(t, result.RoundAdvanced)
	assert.True(t, room.Players[guessers[1]].IsEliminated)
	assert.Equal(t, 2, room.GameState.CurrentRound)
}

func TestSubmitGuessIdempotenceGuard(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 3)

	room, ids := setupPlayingRoom(t, e, "alice", "bob", "carol")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guesser string
	for _, id := range ids {
		if id != answerer {
			guesser = id
			break
		}
	}

	_, _, err := e.SubmitGuess(room.ID, guesser, answerer, questionID, "Red")
	require.NoError(t, err)

	_, _, err = e.SubmitGuess(room.ID, guesser, answerer, questionID, "Green")
	assert.ErrorIs(t, err, ErrAlreadyGuessed)

	// Still eliminated exactly once, still flagged as guessed.
	room, err = e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.True(t, room.Players[guesser].IsEliminated)
	assert.True(t, room.Players[guesser].HasGuessed)
}

func TestSubmitGuessBeforeChoicesReady(t *testing.T) {
	e := newTestEngine(stubGenerator{err: assert.AnError}, 3)

	room, ids := setupPlayingRoom(t, e, "alice", "bob")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	var guesser string
	for _, id := range ids {
		if id != answerer {
			guesser = id
		}
	}

	_, _, err := e.SubmitGuess(room.ID, guesser, answerer, questionID, "Blue")
	assert.ErrorIs(t, err, ErrChoicesNotReady)

	// No per-round flags were touched by the failed guess.
	room, err = e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.False(t, room.Players[guesser].HasGuessed)
	assert.False(t, room.Players[guesser].IsEliminated)
}

func TestSubmitGuessUnknownTarget(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 3)

	room, ids := setupPlayingRoom(t, e, "alice", "bob")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guesser string
	for _, id := range ids {
		if id != answerer {
			guesser = id
		}
	}

	_, _, err := e.SubmitGuess(room.ID, guesser, "no-such-player", questionID, "Blue")
	assert.ErrorIs(t, err, ErrAnswerNotFound)
}

func TestSubmitGuessByAnswererRejected(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 3)

	room, _ := setupPlayingRoom(t, e, "alice", "bob")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	_, _, err := e.SubmitGuess(room.ID, answerer, answerer, questionID, "Blue")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitGuessRejectsStaleQuestion(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 3)

	room, ids := setupPlayingRoom(t, e, "alice", "bob")
	answerer := room.GameState.CurrentPlayerID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guesser string
	for _, id := range ids {
		if id != answerer {
			guesser = id
		}
	}

	// Only the current round's question is guessable.
	_, _, err := e.SubmitGuess(room.ID, guesser, answerer, "not-the-current-question", "Blue")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The rejected guess left the per-round flags alone.
	room, err = e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.False(t, room.Players[guesser].HasGuessed)
	assert.False(t, room.Players[guesser].IsEliminated)
}

func TestRoundAdvancementResetsFlags(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 4)

	room, ids := setupPlayingRoom(t, e, "alice", "bob", "carol")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guessers []string
	for _, id := range ids {
		if id != answerer {
			guessers = append(guessers, id)
		}
	}

	// First correct, second wrong: eliminates one and completes the round.
	_, _, err := e.SubmitGuess(room.ID, guessers[0], answerer, questionID, "Blue")
	require.NoError(t, err)
	result, room, err := e.SubmitGuess(room.ID, guessers[1], answerer, questionID, "Green")
	require.NoError(t, err)
	require.True(t, result.RoundAdvanced)

	assert.Equal(t, 2, room.GameState.CurrentRound)
	assert.NotEqual(t, questionID, "")

	// New answerer is drawn from the post-elimination active pool.
	assert.NotEqual(t, guessers[1], room.GameState.CurrentPlayerID)
	assert.False(t, room.Players[room.GameState.CurrentPlayerID].IsEliminated)

	// Per-round flags reset for active players; elimination sticks.
	assert.False(t, room.Players[guessers[0]].HasGuessed)
	assert.False(t, room.Players[answerer].HasGuessed)
	assert.True(t, room.Players[guessers[1]].IsEliminated)
}

func TestTerminationBeatsAdvancement(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 5)

	room, ids := setupPlayingRoom(t, e, "alice", "bob")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guesser string
	for _, id := range ids {
		if id != answerer {
			guesser = id
		}
	}

	// The wrong guess drops the active count from 2 to 1: the room must
	// finish in the same transition, with no round advancement, even
	// though "all players guessed" also holds.
	result, room, err := e.SubmitGuess(room.ID, guesser, answerer, questionID, "Red")
	require.NoError(t, err)
	assert.True(t, result.Finished)
	assert.False(t, result.RoundAdvanced)
	assert.Equal(t, answerer, result.Winner)

	assert.Equal(t, RoomFinished, room.Status)
	assert.Equal(t, answerer, room.Winner)
	assert.Equal(t, 1, room.GameState.CurrentRound)

	// Finished rooms reject further guesses.
	_, _, err = e.SubmitGuess(room.ID, guesser, answerer, questionID, "Blue")
	assert.ErrorIs(t, err, ErrGameNotPlaying)
}

func TestEliminationIsMonotonic(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 6)

	room, ids := setupPlayingRoom(t, e, "alice", "bob", "carol", "dave")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guessers []string
	for _, id := range ids {
		if id != answerer {
			guessers = append(guessers, id)
		}
	}

	_, _, err := e.SubmitGuess(room.ID, guessers[0], answerer, questionID, "Red")
	require.NoError(t, err)

	// Complete the round so flags reset, then check the eliminated
	// player stayed eliminated through the transition.
	for _, g := range guessers[1:] {
		_, _, err := e.SubmitGuess(room.ID, g, answerer, questionID, "Blue")
		require.NoError(t, err)
	}

	room, err = e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.True(t, room.Players[guessers[0]].IsEliminated)
}

func TestConcurrentGuessesAdvanceOnce(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 7)

	room, ids := setupPlayingRoom(t, e, "alice", "bob", "carol", "dave")
	answerer := room.GameState.CurrentPlayerID
	questionID := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Blue")

	var guessers []string
	for _, id := range ids {
		if id != answerer {
			guessers = append(guessers, id)
		}
	}
	require.Len(t, guessers, 3)

	var wg sync.WaitGroup
	advanced := make(chan bool, len(guessers))
	for _, g := range guessers {
		wg.Add(1)
		go func(playerID string) {
			defer wg.Done()
			result, _, err := e.SubmitGuess(room.ID, playerID, answerer, questionID, "Blue")
			assert.NoError(t, err)
			advanced <- result.RoundAdvanced
		}(g)
	}
	wg.Wait()
	close(advanced)

	count := 0
	for a := range advanced {
		if a {
			count++
		}
	}
	assert.Equal(t, 1, count, "round advancement must fire exactly once")

	room, err := e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, room.GameState.CurrentRound)
}

func TestQuestionRepeatsAllowed(t *testing.T) {
	e := newTestEngine(stubGenerator{distractors: []string{"Red", "Green", "Yellow"}}, 8)

	room, owner, err := e.CreateRoom("alice")
	require.NoError(t, err)
	_, _, err = e.JoinRoom(room.ID, "bob")
	require.NoError(t, err)
	_, _, err = e.JoinRoom(room.ID, "carol")
	require.NoError(t, err)

	// A single-question pool forces a repeat on advancement.
	_, err = e.AddQuestion(room.ID, "What is your favorite season?")
	require.NoError(t, err)

	room, err = e.StartGame(room.ID, owner.ID)
	require.NoError(t, err)
	first := room.GameState.CurrentQuestionID

	submitCurrentAnswer(t, e, room.ID, "Winter")

	answerer := room.GameState.CurrentPlayerID
	for id := range room.Players {
		if id == answerer {
			continue
		}
		_, _, err := e.SubmitGuess(room.ID, id, answerer, first, "Winter")
		require.NoError(t, err)
	}

	room, err = e.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, room.GameState.CurrentRound)
	assert.Equal(t, first, room.GameState.CurrentQuestionID)
}
