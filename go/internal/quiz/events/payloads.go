package events

import (
	"errors"
	"strings"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/scoring"
)

// Payload types shared between the gateway and the orchestrator.

const maxChatLength = 500

// QuestionCounts lets the host override per-difficulty question counts.
type QuestionCounts struct {
	Easy   *int `json:"easy,omitempty"`
	Medium *int `json:"medium,omitempty"`
	Hard   *int `json:"hard,omitempty"`
}

// StartGamePayload is sent by the host to start the game.
type StartGamePayload struct {
	Settings struct {
		Questions QuestionCounts `json:"questions"`
	} `json:"settings"`
}

func (p *StartGamePayload) validate() error {
	for _, n := range []*int{p.Settings.Questions.Easy, p.Settings.Questions.Medium, p.Settings.Questions.Hard} {
		if n != nil && (*n < 0 || *n > 50) {
			return errors.New("question count out of range")
		}
	}
	return nil
}

// SubmitAnswerPayload is used by all three answer message types.
type SubmitAnswerPayload struct {
	Answer        string `json:"answer"`
	QuestionID    string `json:"question_id,omitempty"`
	QuestionIndex *int   `json:"question_index,omitempty"`
}

func (p *SubmitAnswerPayload) validate() error {
	if strings.TrimSpace(p.Answer) == "" {
		return errors.New("answer is required")
	}
	return nil
}

// ChatPayload is relayed to every connection in the room.
type ChatPayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func (p *ChatPayload) validate() error {
	if strings.TrimSpace(p.Message) == "" {
		return errors.New("message is required")
	}
	if len(p.Message) > maxChatLength {
		return errors.New("message too long")
	}
	return nil
}

// KickPayload names the player the host wants removed.
type KickPayload struct {
	WalletID string `json:"wallet_id"`
}

func (p *KickPayload) validate() error {
	if p.WalletID == "" {
		return errors.New("wallet_id is required")
	}
	return nil
}

// QuestionView is the client projection of a question. It has no correct answer.
type QuestionView struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Options    []string          `json:"options"`
	Difficulty models.Difficulty `json:"difficulty"`
}

// NewQuestionView projects a question for clients.
func NewQuestionView(q *models.Question) QuestionView {
	return QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Options:    append([]string(nil), q.Options...),
		Difficulty: q.Difficulty,
	}
}

// QuestionTiming carries absolute epoch-ms instants.
type QuestionTiming struct {
	QuestionStartAt int64 `json:"question_start_at"`
	QuestionEndAt   int64 `json:"question_end_at"`
	TimePerQuestion int   `json:"time_per_question"`
}

// Progress is the 1-based position within the question plan.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type GameStartedPayload struct {
	RoomID            string                                       `json:"room_id"`
	TotalQuestions    int                                          `json:"total_questions"`
	EasyCount         int                                          `json:"easy_count"`
	MediumCount       int                                          `json:"medium_count"`
	HardCount         int                                          `json:"hard_count"`
	CountdownDuration int                                          `json:"countdown_duration"`
	StartAt           int64                                        `json:"start_at"`
	RoomSettings      map[models.Difficulty]scoring.DifficultyConfig `json:"room_settings"`
}

type NextQuestionPayload struct {
	QuestionIndex int                      `json:"question_index"`
	Question      QuestionView             `json:"question"`
	Timing        QuestionTiming           `json:"timing"`
	Config        scoring.DifficultyConfig `json:"config"`
	Progress      Progress                 `json:"progress"`
}

type TieBreakQuestionPayload struct {
	Round         int            `json:"round"`
	QuestionIndex int            `json:"question_index"`
	Question      QuestionView   `json:"question"`
	Timing        QuestionTiming `json:"timing"`
	Progress      Progress       `json:"progress"`
}

type SuddenDeathQuestionPayload struct {
	Question QuestionView   `json:"question"`
	Timing   QuestionTiming `json:"timing"`
	Sequence int            `json:"sequence"`
}

type AnswerSubmittedPayload struct {
	QuestionID     string `json:"question_id"`
	IsCorrect      bool   `json:"is_correct"`
	Points         int    `json:"points"`
	BaseScore      int    `json:"base_score"`
	SpeedBonus     int    `json:"speed_bonus"`
	TimeBonus      int    `json:"time_bonus"`
	OrderBonus     int    `json:"order_bonus"`
	TotalScore     int    `json:"total_score"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	WalletID string `json:"wallet_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// NewLeaderboard ranks the room's players by score.
func NewLeaderboard(room *models.Room) []LeaderboardEntry {
	board := room.Leaderboard()
	out := make([]LeaderboardEntry, len(board))
	for i, p := range board {
		out[i] = LeaderboardEntry{Rank: i + 1, WalletID: p.WalletID, Username: p.Username, Score: p.Score}
	}
	return out
}

type QuestionResultPayload struct {
	QuestionIndex  int                `json:"question_index"`
	QuestionID     string             `json:"question_id"`
	CorrectAnswer  string             `json:"correct_answer"`
	Explanation    string             `json:"explanation,omitempty"`
	AnswerStats    map[string]int     `json:"answer_stats"`
	TotalResponses int                `json:"total_responses"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
}

type PlayerResult struct {
	Rank           int     `json:"rank"`
	WalletID       string  `json:"wallet_id"`
	Username       string  `json:"username"`
	Score          int     `json:"score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalAnswers   int     `json:"total_answers"`
	Accuracy       float64 `json:"accuracy"`
	AverageTimeMs  int64   `json:"average_time_ms"`
	IsWinner       bool    `json:"is_winner"`
}

type QuestionBreakdown struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

type GameStats struct {
	TotalPlayers      int               `json:"total_players"`
	TotalQuestions    int               `json:"total_questions"`
	GameDurationSec   float64           `json:"game_duration_sec"`
	AverageScore      float64           `json:"average_score"`
	HighestScore      int               `json:"highest_score"`
	QuestionBreakdown QuestionBreakdown `json:"question_breakdown"`
	TieBreakRounds    int               `json:"tie_break_rounds,omitempty"`
}

type GameEndedPayload struct {
	RoomID      string         `json:"room_id"`
	Status      string         `json:"status"`
	Winner      *PlayerResult  `json:"winner,omitempty"`
	Leaderboard []PlayerResult `json:"leaderboard"`
	GameStats   GameStats      `json:"game_stats"`
	EndedAt     int64          `json:"ended_at"`
}

type TieBreakActivatedPayload struct {
	Round       int                `json:"round"`
	Message     string             `json:"message"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type TieBreakWinnerPayload struct {
	Round          int    `json:"round"`
	WinnerWalletID string `json:"winner_wallet_id,omitempty"`
	WinnerUsername string `json:"winner_username,omitempty"`
	Final          bool   `json:"final"`
	Message        string `json:"message"`
}

type TieBreakNextRoundPayload struct {
	Round   int    `json:"round"`
	Message string `json:"message"`
}

// MessagePayload carries a single human-readable message.
type MessagePayload struct {
	Message string `json:"message"`
}

type SuddenDeathTimeoutPayload struct {
	QuestionID string `json:"question_id"`
	Message    string `json:"message"`
}

type PlayerView struct {
	WalletID string              `json:"wallet_id"`
	Username string              `json:"username"`
	Score    int                 `json:"score"`
	Status   models.PlayerStatus `json:"status"`
	IsHost   bool                `json:"is_host"`
}

// NewPlayerViews projects the roster for clients.
func NewPlayerViews(room *models.Room) []PlayerView {
	out := make([]PlayerView, len(room.Players))
	for i, p := range room.Players {
		out[i] = PlayerView{WalletID: p.WalletID, Username: p.Username, Score: p.Score, Status: p.Status, IsHost: p.IsHost}
	}
	return out
}

type PlayerEventPayload struct {
	WalletID string       `json:"wallet_id"`
	Username string       `json:"username"`
	Action   string       `json:"action,omitempty"`
	Players  []PlayerView `json:"players"`
}

type KickedPayload struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

type RoomClosedPayload struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

// SyncQuestion is the question portion of a game_sync snapshot.
type SyncQuestion struct {
	Kind          models.AnswerType `json:"kind"`
	QuestionIndex int               `json:"question_index"`
	Question      QuestionView      `json:"question"`
	Timing        QuestionTiming    `json:"timing"`
	Progress      Progress          `json:"progress"`
	Answered      bool              `json:"answered"`
}

type GameSyncPayload struct {
	RoomID          string             `json:"room_id"`
	Code            string             `json:"code"`
	Status          models.RoomStatus  `json:"status"`
	Players         []PlayerView       `json:"players"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard"`
	CurrentQuestion *SyncQuestion      `json:"current_question,omitempty"`
	TieBreakRound   int                `json:"tie_break_round,omitempty"`
	ServerTime      int64              `json:"server_time"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type RewardErrorPayload struct {
	WinnerWalletID string `json:"winner_wallet_id"`
	Message        string `json:"message"`
}

type PongPayload struct {
	ServerTime int64 `json:"server_time"`
}
