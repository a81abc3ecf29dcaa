package models

import (
	"strings"
	"time"
)

// Difficulty defines the difficulty tier of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is immutable once selected into a room's plan.
type Question struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Difficulty    Difficulty `json:"difficulty"`
	Explanation   string     `json:"explanation,omitempty"`
}

// IsExactMatch reports whether answer is the correct answer as written.
// Main-game submissions come from the option buttons and are graded this way.
func (q *Question) IsExactMatch(answer string) bool {
	return answer != "" && answer == q.CorrectAnswer
}

// IsCorrect compares a submission against the correct answer, ignoring case
// and surrounding whitespace. Tie-break and sudden-death answers use it.
func (q *Question) IsCorrect(answer string) bool {
	if answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))
}

// AnswerType distinguishes submissions by game phase.
type AnswerType string

const (
	AnswerTypeRegular     AnswerType = "regular"
	AnswerTypeTieBreak    AnswerType = "tie_break"
	AnswerTypeSuddenDeath AnswerType = "sudden_death"
)

// Answer is one record per (room, question, player).
type Answer struct {
	ID            string        `json:"id"`
	RoomID        string        `json:"room_id"`
	QuestionID    string        `json:"question_id"`
	QuestionIndex int           `json:"question_index"`
	WalletID      string        `json:"wallet_id"`
	Answer        string        `json:"answer"`
	IsCorrect     bool          `json:"is_correct"`
	Points        int           `json:"points"`
	SpeedBonus    int           `json:"speed_bonus"`
	TimeBonus     int           `json:"time_bonus"`
	OrderBonus    int           `json:"order_bonus"`
	ResponseTime  time.Duration `json:"response_time"`
	SubmittedAt   time.Time     `json:"submitted_at"`
	Type          AnswerType    `json:"type"`
	TieBreakRound int           `json:"tie_break_round,omitempty"`
	// Synthetic marks the zero-score record written for a player who never answered.
	Synthetic bool `json:"synthetic"`
}
