package models

import (
	"time"
)

// PlayerStatus defines the status of a player within a room.
type PlayerStatus string

const (
	PlayerStatusActive       PlayerStatus = "active"
	PlayerStatusWaiting      PlayerStatus = "waiting"
	PlayerStatusReady        PlayerStatus = "ready"
	PlayerStatusDisconnected PlayerStatus = "disconnected"
	PlayerStatusQuit         PlayerStatus = "quit"
	PlayerStatusEliminated   PlayerStatus = "eliminated"
	PlayerStatusWinner       PlayerStatus = "winner"
)

// IsPresent reports whether the player is connected and still in the game.
func (s PlayerStatus) IsPresent() bool {
	switch s {
	case PlayerStatusDisconnected, PlayerStatusQuit, PlayerStatusEliminated:
		return false
	}
	return true
}

// Player represents a participant in a room, identified by wallet.
type Player struct {
	WalletID string       `json:"wallet_id"`
	Username string       `json:"username"`
	Score    int          `json:"score"`
	Status   PlayerStatus `json:"status"`
	IsHost   bool         `json:"is_host"`
	IsWinner bool         `json:"is_winner"`
	JoinedAt time.Time    `json:"joined_at"`
	QuitAt   *time.Time   `json:"quit_at,omitempty"`
}

// PlayerStats is the cross-game record kept per wallet.
type PlayerStats struct {
	WalletID               string  `json:"wallet_id"`
	TotalGames             int     `json:"total_games"`
	TotalWins              int     `json:"total_wins"`
	TotalScore             int     `json:"total_score"`
	TotalCorrectAnswers    int     `json:"total_correct_answers"`
	TotalQuestionsAnswered int     `json:"total_questions_answered"`
	AverageAccuracy        float64 `json:"average_accuracy"`
	BestScore              int     `json:"best_score"`
	CurrentStreak          int     `json:"current_streak"`
	BestStreak             int     `json:"best_streak"`
}

// GameResult is one player's outcome for a finished game.
type GameResult struct {
	WalletID       string
	Score          int
	CorrectAnswers int
	TotalQuestions int
	IsWinner       bool
}

// Apply folds a game result into the running stats.
func (s *PlayerStats) Apply(r GameResult) {
	s.TotalGames++
	s.TotalScore += r.Score
	s.TotalCorrectAnswers += r.CorrectAnswers
	s.TotalQuestionsAnswered += r.TotalQuestions
	if r.IsWinner {
		s.TotalWins++
		s.CurrentStreak++
		if s.CurrentStreak > s.BestStreak {
			s.BestStreak = s.CurrentStreak
		}
	} else {
		s.CurrentStreak = 0
	}
	if r.Score > s.BestScore {
		s.BestScore = r.Score
	}
	if s.TotalQuestionsAnswered > 0 {
		s.AverageAccuracy = float64(s.TotalCorrectAnswers) / float64(s.TotalQuestionsAnswered)
	}
}
