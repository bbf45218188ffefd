package main

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// defaultQuestions seed a room's pool when the game starts and nobody
// added custom questions beforehand.
var defaultQuestions = []string{
	"What is your favorite color?",
	"What is your favorite food?",
	"What is your dream vacation destination?",
	"If you could have any superpower, what would it be?",
	"What's your favorite book or movie?",
}

func seedQuestions(room *Room, texts []string) {
	for _, text := range texts {
		room.Questions = append(room.Questions, Question{
			ID:   uuid.NewString(),
			Text: text,
		})
	}
}

// addQuestion appends a custom question to the pool. Only allowed
// before the game starts, so every round draws from a fixed pool.
func addQuestion(room *Room, text string) (Question, error) {
	if room.Status != RoomWaiting {
		return Question{}, fmt.Errorf("%w: questions can only be added while waiting", ErrInvalidTransition)
	}

	q := Question{
		ID:   uuid.NewString(),
		Text: text,
	}
	room.Questions = append(room.Questions, q)

	return q, nil
}

// randomQuestion draws uniformly from the pool. Repeats across rounds
// are allowed.
func randomQuestion(room *Room, rng *rand.Rand) (Question, error) {
	if len(room.Questions) == 0 {
		return Question{}, fmt.Errorf("%w: question pool is empty", ErrInvalidTransition)
	}
	return room.Questions[rng.Intn(len(room.Questions))], nil
}

func questionByID(room *Room, questionID string) (Question, bool) {
	for _, q := range room.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// recordAnswer stores a player's true answer for a question. A second
// submission for the same (question, player) pair is rejected rather
// than overwritten, since the choice set is generated from the first.
func recordAnswer(room *Room, playerID, questionID, text string) error {
	byPlayer, ok := room.Answers[questionID]
	if !ok {
		byPlayer = make(map[string]string)
		room.Answers[questionID] = byPlayer
	}

	if _, exists := byPlayer[playerID]; exists {
		return ErrDuplicateAnswer
	}

	byPlayer[playerID] = text
	return nil
}

func trueAnswer(room *Room, questionID, playerID string) (string, bool) {
	byPlayer, ok := room.Answers[questionID]
	if !ok {
		return "", false
	}
	text, ok := byPlayer[playerID]
	return text, ok
}

func choiceSet(room *Room, questionID string) ([]string, bool) {
	choices, ok := room.AllAnswers[questionID]
	return choices, ok
}

// buildChoiceSet validates generated distractors and shuffles them in
// with the correct answer. Distractors must be non-empty and distinct
// (case-insensitively) from the answer and each other; anything short
// of count usable entries fails the whole submission.
func buildChoiceSet(correctAnswer string, distractors []string, count int, rng *rand.Rand) ([]string, error) {
	seen := map[string]struct{}{
		strings.ToLower(strings.TrimSpace(correctAnswer)): {},
	}

	valid := make([]string, 0, count)
	for _, d := range distractors {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		key := strings.ToLower(d)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		valid = append(valid, d)
		if len(valid) == count {
			break
		}
	}

	if len(valid) < count {
		return nil, fmt.Errorf("%w: got %d usable fake answers, need %d",
			ErrDistractorGeneration, len(valid), count)
	}

	choices := append([]string{correctAnswer}, valid...)
	rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})

	return choices, nil
}
