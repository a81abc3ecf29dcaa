package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
)

// RoomBackend is what the state provider needs from the game engine.
type RoomBackend interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	CreateRoom(ctx context.Context, hostWalletID, hostUsername string) (*models.Room, error)
	QuestionWindow(room *models.Room) (start, end time.Time, ok bool)
}

// RoomStateProvider implements StateProvider on top of the game engine
type RoomStateProvider struct {
	backend RoomBackend
	clock   clockwork.Clock
}

// NewRoomStateProvider creates a new room state provider
func NewRoomStateProvider(backend RoomBackend, clock clockwork.Clock) *RoomStateProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomStateProvider{backend: backend, clock: clock}
}

// GetRoomState retrieves the public state of a room
func (p *RoomStateProvider) GetRoomState(ctx context.Context, roomID string) (*RoomStateResponse, error) {
	room, err := p.backend.GetRoom(ctx, roomID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return p.buildResponse(room), nil
}

// CreateRoom creates a room hosted by the caller
func (p *RoomStateProvider) CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomStateResponse, error) {
	username := req.HostUsername
	if username == "" {
		username = req.HostWalletID
	}
	room, err := p.backend.CreateRoom(ctx, req.HostWalletID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return p.buildResponse(room), nil
}

func (p *RoomStateProvider) buildResponse(room *models.Room) *RoomStateResponse {
	now := p.clock.Now()
	resp := &RoomStateResponse{
		RoomID:         room.ID,
		Code:           room.Code,
		Status:         room.Status,
		Players:        events.NewPlayerViews(room),
		Leaderboard:    events.NewLeaderboard(room),
		TotalQuestions: room.TotalQuestions,
		CurrentIndex:   room.CurrentIndex,
		TieBreakRound:  room.TieBreakRound,
		WinnerWalletID: room.WinnerWalletID,
		ServerTime:     now.UnixMilli(),
	}

	q := room.QuestionInPlay()
	start, end, ok := p.backend.QuestionWindow(room)
	if q != nil && ok {
		index := room.CurrentIndex
		if room.Status != models.RoomStatusInProgress {
			index = room.TieBreakIndex
		}
		resp.CurrentQuestion = &CurrentQuestionInfo{
			QuestionID:    q.ID,
			QuestionIndex: index,
			Difficulty:    q.Difficulty,
			StartedAt:     start.UnixMilli(),
			EndsAt:        end.UnixMilli(),
		}
		if remaining := int(end.Sub(now).Seconds()); remaining > 0 {
			resp.TimeRemaining = &remaining
		}
	}
	return resp
}
