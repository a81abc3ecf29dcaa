// Package repository holds the persistence contracts the quiz engine depends
// on, plus in-memory, Postgres and Redis-cached implementations.
package repository

import (
	"context"
	"errors"

	"github.com/mcdev12/quizarena/go/internal/models"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrVersionConflict    = errors.New("room version conflict")
	ErrDuplicateAnswer    = errors.New("answer already recorded")
	ErrNotEnoughQuestions = errors.New("not enough questions in bank")
)

// RoomStore persists room aggregates. SaveRoom is optimistic: it fails with
// ErrVersionConflict when the stored version differs from room.Version, and
// bumps room.Version on success.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	SaveRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// AnswerStore records one answer per (room, question, player).
// RecordAnswer saves the answer and the room together: on any error, including
// ErrDuplicateAnswer and ErrVersionConflict, neither is written.
type AnswerStore interface {
	GetAnswers(ctx context.Context, roomID, questionID string) ([]models.Answer, error)
	GetRoomAnswers(ctx context.Context, roomID string) ([]models.Answer, error)
	SaveAnswer(ctx context.Context, answer *models.Answer) error
	RecordAnswer(ctx context.Context, answer *models.Answer, room *models.Room) error
}

type PlayerStore interface {
	GetPlayers(ctx context.Context, roomID string) ([]models.Player, error)
}

// QuestionBank draws random questions. Questions whose IDs are in exclude are
// never returned.
type QuestionBank interface {
	RandomQuestions(ctx context.Context, difficulty models.Difficulty, n int, exclude []string) ([]models.Question, error)
}

type StatsStore interface {
	RecordGameResult(ctx context.Context, result models.GameResult) error
	GetPlayerStats(ctx context.Context, walletID string) (*models.PlayerStats, error)
}

// Store bundles every contract. Both MemoryStore and PostgresStore satisfy it.
type Store interface {
	RoomStore
	AnswerStore
	PlayerStore
	QuestionBank
	StatsStore
}
