package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoom_AllScoresEqual(t *testing.T) {
	room := &Room{Players: []Player{
		{WalletID: "host", Status: PlayerStatusActive, Score: 0},
		{WalletID: "bob", Status: PlayerStatusActive, Score: 0},
		{WalletID: "carol", Status: PlayerStatusDisconnected, Score: 95},
	}}
	assert.False(t, room.AllScoresEqual(), "a disconnected leader still counts")

	room.Players[2].Score = 0
	assert.True(t, room.AllScoresEqual())

	room.Players[2].Score = 95
	room.Players[2].Status = PlayerStatusQuit
	assert.True(t, room.AllScoresEqual(), "players who quit are ignored")

	room.Players[1].Status = PlayerStatusQuit
	assert.False(t, room.AllScoresEqual(), "one remaining player is not a tie")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(RoomStatusWaiting, RoomStatusInProgress))
	assert.True(t, CanTransition(RoomStatusInProgress, RoomStatusTieBreak))
	assert.True(t, CanTransition(RoomStatusTieBreak, RoomStatusSuddenDeath))
	assert.True(t, CanTransition(RoomStatusSuddenDeath, RoomStatusFinished))

	assert.False(t, CanTransition(RoomStatusInProgress, RoomStatusWaiting))
	assert.False(t, CanTransition(RoomStatusWaiting, RoomStatusTieBreak))
	assert.False(t, CanTransition(RoomStatusFinished, RoomStatusCancelled))
	assert.False(t, CanTransition(RoomStatusSuddenDeath, RoomStatusTieBreak))
}
