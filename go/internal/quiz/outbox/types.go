package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types relayed to the message bus.
const (
	EventGameStarted     = "GameStarted"
	EventQuestionStarted = "QuestionStarted"
	EventGameEnded       = "GameEnded"
	EventGameCancelled   = "GameCancelled"
)

// Event is a room lifecycle event bound for the message bus.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    string          `json:"room_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent marshals payload into an Event with a fresh ID.
func NewEvent(roomID, eventType string, payload interface{}, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New(),
		RoomID:    roomID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: now,
	}, nil
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoOpPublisher drops every event. Used when NATS_URL is not configured.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, Event) error { return nil }

type GameStartedPayload struct {
	RoomID         string   `json:"room_id"`
	Players        []string `json:"players"`
	TotalQuestions int      `json:"total_questions"`
	StartAt        int64    `json:"start_at"`
}

type QuestionStartedPayload struct {
	RoomID        string `json:"room_id"`
	Kind          string `json:"kind"`
	QuestionIndex int    `json:"question_index"`
	QuestionID    string `json:"question_id"`
	StartAt       int64  `json:"start_at"`
	EndAt         int64  `json:"end_at"`
}

type GameEndedPayload struct {
	RoomID         string         `json:"room_id"`
	Status         string         `json:"status"`
	WinnerWalletID string         `json:"winner_wallet_id,omitempty"`
	Scores         map[string]int `json:"scores"`
	TieBreakRounds int            `json:"tie_break_rounds"`
	EndedAt        int64          `json:"ended_at"`
}
