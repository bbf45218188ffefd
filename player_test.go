package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPlayerOnlyWhileWaiting(t *testing.T) {
	room := newRoom("1234")

	alice, err := addPlayer(room, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, alice.ID)
	assert.False(t, alice.IsOwner)
	assert.Equal(t, 0, alice.JoinOrder)

	bob, err := addPlayer(room, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.JoinOrder)

	room.Status = RoomPlaying
	_, err = addPlayer(room, "carol")
	assert.ErrorIs(t, err, ErrRoomNotJoinable)

	room.Status = RoomFinished
	_, err = addPlayer(room, "carol")
	assert.ErrorIs(t, err, ErrRoomNotJoinable)
}

func TestRemovePlayer(t *testing.T) {
	room := newRoom("1234")
	alice, _ := addPlayer(room, "alice")
	alice.IsOwner = true
	bob, _ := addPlayer(room, "bob")

	require.NoError(t, removePlayer(room, bob.ID))
	assert.NotContains(t, room.Players, bob.ID)
	assert.True(t, room.Players[alice.ID].IsOwner)

	assert.ErrorIs(t, removePlayer(room, bob.ID), ErrPlayerNotFound)
}

func TestActivePlayersExcludesEliminated(t *testing.T) {
	room := newRoom("1234")
	alice, _ := addPlayer(room, "alice")
	bob, _ := addPlayer(room, "bob")
	carol, _ := addPlayer(room, "carol")

	room.Players[bob.ID].IsEliminated = true

	active := activePlayers(room)
	require.Len(t, active, 2)

	// Ordered by join order for reproducible selection.
	assert.Equal(t, alice.ID, active[0].ID)
	assert.Equal(t, carol.ID, active[1].ID)
}

func TestSelectRandomPlayer(t *testing.T) {
	room := newRoom("1234")
	alice, _ := addPlayer(room, "alice")
	bob, _ := addPlayer(room, "bob")

	rng := newLockedRand(42)

	// Over enough draws, both active players show up.
	picked := make(map[string]int)
	for i := 0; i < 50; i++ {
		p, err := selectRandomPlayer(room, rng, "")
		require.NoError(t, err)
		picked[p.ID]++
	}
	assert.Positive(t, picked[alice.ID])
	assert.Positive(t, picked[bob.ID])
}

func TestSelectRandomPlayerExcludes(t *testing.T) {
	room := newRoom("1234")
	alice, _ := addPlayer(room, "alice")
	bob, _ := addPlayer(room, "bob")

	rng := newLockedRand(42)

	for i := 0; i < 20; i++ {
		p, err := selectRandomPlayer(room, rng, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, p.ID)
	}
}

func TestSelectRandomPlayerNoneActive(t *testing.T) {
	room := newRoom("1234")
	alice, _ := addPlayer(room, "alice")
	room.Players[alice.ID].IsEliminated = true

	_, err := selectRandomPlayer(room, newLockedRand(42), "")
	assert.ErrorIs(t, err, ErrNoActivePlayers)
}
