package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/events"
)

// ErrRoomNotFound is returned by a StateProvider for unknown rooms.
var ErrRoomNotFound = errors.New("room not found")

// StateProvider interface defines methods for reading and creating rooms over HTTP
type StateProvider interface {
	GetRoomState(ctx context.Context, roomID string) (*RoomStateResponse, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomStateResponse, error)
}

// RoomStateResponse represents the public state of a room
type RoomStateResponse struct {
	RoomID          string                    `json:"room_id"`
	Code            string                    `json:"code"`
	Status          models.RoomStatus         `json:"status"`
	Players         []events.PlayerView       `json:"players"`
	Leaderboard     []events.LeaderboardEntry `json:"leaderboard"`
	CurrentQuestion *CurrentQuestionInfo      `json:"current_question,omitempty"`
	TimeRemaining   *int                      `json:"time_remaining_sec,omitempty"`
	TotalQuestions  int                       `json:"total_questions"`
	CurrentIndex    int                       `json:"current_index"`
	TieBreakRound   int                       `json:"tie_break_round,omitempty"`
	WinnerWalletID  string                    `json:"winner_wallet_id,omitempty"`
	ServerTime      int64                     `json:"server_time"`
}

// CurrentQuestionInfo describes the question in play, without its answer
type CurrentQuestionInfo struct {
	QuestionID    string            `json:"question_id"`
	QuestionIndex int               `json:"question_index"`
	Difficulty    models.Difficulty `json:"difficulty"`
	StartedAt     int64             `json:"started_at"`
	EndsAt        int64             `json:"ends_at"`
}

// CreateRoomRequest is the body of POST /api/rooms
type CreateRoomRequest struct {
	HostWalletID string `json:"host_wallet_id"`
	HostUsername string `json:"host_username"`
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetRoomState handles GET /api/rooms/{id}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := extractRoomIDFromPath(r.URL.Path)
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.GetRoomState(r.Context(), roomID)
	if errors.Is(err, ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// HandleCreateRoom handles POST /api/rooms
func (h *StateHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.HostWalletID == "" {
		http.Error(w, "host_wallet_id is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.CreateRoom(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("wallet_id", req.HostWalletID).Msg("failed to create room")
		http.Error(w, "Failed to create room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, state)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", h.HandleCreateRoom)

	mux.HandleFunc("/api/rooms/", func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("path", r.URL.Path).Msg("state handler received request")

		if strings.HasSuffix(r.URL.Path, "/state") {
			h.HandleGetRoomState(w, r)
		} else {
			http.NotFound(w, r)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// extractRoomIDFromPath extracts room ID from path like /api/rooms/{id}/state
func extractRoomIDFromPath(path string) string {
	const prefix = "/api/rooms/"
	const suffix = "/state"

	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
