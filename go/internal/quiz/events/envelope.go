package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the wire format for every WebSocket message in both directions.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"` // epoch ms
}

// MessageType is the discriminant of an Envelope.
type MessageType string

// Client to server.
const (
	TypeStartGame               MessageType = "start_game"
	TypeSubmitAnswer            MessageType = "submit_answer"
	TypeSubmitTieBreakAnswer    MessageType = "submit_tie_break_answer"
	TypeSubmitSuddenDeathAnswer MessageType = "submit_sudden_death_answer"
	TypeChat                    MessageType = "chat"
	TypeKickPlayer              MessageType = "kick_player"
	TypeLeaveRoom               MessageType = "leave_room"
	TypePing                    MessageType = "ping"
)

// Server to client.
const (
	TypeGameStarted          MessageType = "game_started"
	TypeNextQuestion         MessageType = "next_question"
	TypeAnswerSubmitted      MessageType = "answer_submitted"
	TypeQuestionResult       MessageType = "question_result"
	TypeGameEnded            MessageType = "game_ended"
	TypeTieBreakActivated    MessageType = "tie_break_activated"
	TypeTieBreakQuestion     MessageType = "tie_break_question"
	TypeTieBreakWinner       MessageType = "tie_break_winner"
	TypeTieBreakNextRound    MessageType = "tie_break_next_round"
	TypeTieBreakCancelled    MessageType = "tie_break_cancelled"
	TypeSuddenDeathActivated MessageType = "sudden_death_activated"
	TypeSuddenDeathQuestion  MessageType = "sudden_death_question"
	TypeSuddenDeathTimeout   MessageType = "sudden_death_timeout"
	TypePlayerJoined         MessageType = "player_joined"
	TypePlayerLeft           MessageType = "player_left"
	TypePlayerReconnected    MessageType = "player_reconnected"
	TypePlayerDisconnected   MessageType = "player_disconnected"
	TypeKicked               MessageType = "kicked"
	TypeRoomClosed           MessageType = "room_closed"
	TypeGameSync             MessageType = "game_sync"
	TypeError                MessageType = "error"
	TypePong                 MessageType = "pong"
	TypeRewardError          MessageType = "reward_error"
)

var (
	// ErrUnknownMessageType is returned for a client message with an unsupported type.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrInvalidPayload is returned when a payload fails to decode or validate.
	ErrInvalidPayload = errors.New("invalid payload")
)

// NewEnvelope marshals payload into an envelope stamped with now.
func NewEnvelope(t MessageType, payload interface{}, now time.Time) (*Envelope, error) {
	env := &Envelope{Type: t, Timestamp: now.UnixMilli()}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	env.Payload = data
	return env, nil
}

// MustEnvelope is NewEnvelope for payloads that are known to marshal.
func MustEnvelope(t MessageType, payload interface{}, now time.Time) *Envelope {
	env, err := NewEnvelope(t, payload, now)
	if err != nil {
		panic(err)
	}
	return env
}

// ClientMessage is a decoded and validated client envelope. Payload holds one
// of the *Payload types below, matching Type.
type ClientMessage struct {
	Type    MessageType
	Payload interface{}
}

// DecodeClientMessage parses raw bytes into a typed client message.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var payload validator
	switch env.Type {
	case TypeStartGame:
		payload = &StartGamePayload{}
	case TypeSubmitAnswer, TypeSubmitTieBreakAnswer, TypeSubmitSuddenDeathAnswer:
		payload = &SubmitAnswerPayload{}
	case TypeChat:
		payload = &ChatPayload{}
	case TypeKickPlayer:
		payload = &KickPayload{}
	case TypeLeaveRoom, TypePing:
		return &ClientMessage{Type: env.Type}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
		}
	}
	if err := payload.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	return &ClientMessage{Type: env.Type, Payload: payload}, nil
}

type validator interface {
	validate() error
}
