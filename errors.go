/*
Copyright © 2025 imaikosuke
*/

package main

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomNotJoinable      = errors.New("room is not accepting new players")
	ErrInvalidTransition    = errors.New("action not valid for current room status")
	ErrNotEnoughPlayers     = errors.New("not enough players to start the game")
	ErrGameNotPlaying       = errors.New("game is not in progress")
	ErrNotCurrentAnswerer   = errors.New("player is not the current answerer")
	ErrAlreadyGuessed       = errors.New("player has already guessed this round")
	ErrChoicesNotReady      = errors.New("answer choices have not been generated yet")
	ErrAnswerNotFound       = errors.New("answer not found")
	ErrDuplicateAnswer      = errors.New("answer already submitted for this question")
	ErrDistractorGeneration = errors.New("failed to generate fake answers")
	ErrNoActivePlayers      = errors.New("no active players in room")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrStoreConflict        = errors.New("room update conflict, retries exhausted")
)
