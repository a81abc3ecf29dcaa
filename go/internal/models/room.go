package models

import (
	"sort"
	"time"
)

// RoomStatus defines the status of a quiz room.
type RoomStatus string

const (
	RoomStatusWaiting     RoomStatus = "WAITING"
	RoomStatusInProgress  RoomStatus = "IN_PROGRESS"
	RoomStatusTieBreak    RoomStatus = "TIE_BREAK"
	RoomStatusSuddenDeath RoomStatus = "SUDDEN_DEATH"
	RoomStatusFinished    RoomStatus = "FINISHED"
	RoomStatusCancelled   RoomStatus = "CANCELLED"
)

// roomTransitions is the legal transition graph. Nothing leads back into
// WAITING once a game has started.
var roomTransitions = map[RoomStatus][]RoomStatus{
	RoomStatusWaiting:     {RoomStatusInProgress, RoomStatusCancelled},
	RoomStatusInProgress:  {RoomStatusTieBreak, RoomStatusFinished, RoomStatusCancelled},
	RoomStatusTieBreak:    {RoomStatusSuddenDeath, RoomStatusFinished, RoomStatusCancelled},
	RoomStatusSuddenDeath: {RoomStatusFinished, RoomStatusCancelled},
}

// CanTransition reports whether a room may move from one status to another.
func CanTransition(from, to RoomStatus) bool {
	for _, next := range roomTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s RoomStatus) IsTerminal() bool {
	return s == RoomStatusFinished || s == RoomStatusCancelled
}

// IsActiveGame reports whether questions are being played in this status.
func (s RoomStatus) IsActiveGame() bool {
	return s == RoomStatusInProgress || s == RoomStatusTieBreak || s == RoomStatusSuddenDeath
}

// RoomSettings holds the per-room game configuration.
type RoomSettings struct {
	EasyCount          int `json:"easy_count"`
	MediumCount        int `json:"medium_count"`
	HardCount          int `json:"hard_count"`
	TimePerQuestionSec int `json:"time_per_question_sec"`
	CountdownSec       int `json:"countdown_sec"`
	MaxPlayers         int `json:"max_players"`
}

// Room is the aggregate root for a single match.
type Room struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Version int64  `json:"version"`

	Players  []Player     `json:"players"`
	Status   RoomStatus   `json:"status"`
	Settings RoomSettings `json:"settings"`

	Questions                []Question `json:"questions"`
	TotalQuestions           int        `json:"total_questions"`
	CurrentIndex             int        `json:"current_index"`
	CurrentQuestionStartedAt *time.Time `json:"current_question_started_at,omitempty"`

	TieBreakRound        int        `json:"tie_break_round"`
	TieBreakQuestions    []Question `json:"tie_break_questions,omitempty"`
	TieBreakIndex        int        `json:"tie_break_index"`
	SuddenDeathActivated bool       `json:"sudden_death_activated"`
	SuddenDeathCount     int        `json:"sudden_death_count"`
	// TieBreakWinners holds one entry per finished tie-break round; "" means no single winner.
	TieBreakWinners []string `json:"tie_break_winners,omitempty"`

	WinnerWalletID string     `json:"winner_wallet_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// Player returns a pointer into the roster for the given wallet, or nil.
func (r *Room) Player(walletID string) *Player {
	for i := range r.Players {
		if r.Players[i].WalletID == walletID {
			return &r.Players[i]
		}
	}
	return nil
}

// Host returns the current host, or nil when the roster is empty.
func (r *Room) Host() *Player {
	for i := range r.Players {
		if r.Players[i].IsHost {
			return &r.Players[i]
		}
	}
	return nil
}

// ActivePlayers returns the players still taking part in the game.
func (r *Room) ActivePlayers() []Player {
	active := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Status.IsPresent() {
			active = append(active, p)
		}
	}
	return active
}

// PresentCount counts players that have not quit or been removed.
func (r *Room) PresentCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Status != PlayerStatusQuit {
			n++
		}
	}
	return n
}

// RemovePlayer drops a player from the roster, handing the host role to the
// next remaining player if needed. It returns false if the player was unknown.
func (r *Room) RemovePlayer(walletID string) bool {
	idx := -1
	for i := range r.Players {
		if r.Players[i].WalletID == walletID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	wasHost := r.Players[idx].IsHost
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	if wasHost {
		r.TransferHost("")
	}
	return true
}

// TransferHost moves the host flag to the first eligible player other than
// exclude. With no eligible player the room is left without a host.
func (r *Room) TransferHost(exclude string) {
	for i := range r.Players {
		r.Players[i].IsHost = false
	}
	for i := range r.Players {
		p := &r.Players[i]
		if p.WalletID != exclude && p.Status != PlayerStatusQuit {
			p.IsHost = true
			return
		}
	}
}

// CurrentQuestion returns the main-game question at CurrentIndex.
func (r *Room) CurrentQuestion() *Question {
	if r.CurrentIndex < 0 || r.CurrentIndex >= len(r.Questions) {
		return nil
	}
	return &r.Questions[r.CurrentIndex]
}

// CurrentTieBreakQuestion returns the tie-break or sudden-death question in play.
func (r *Room) CurrentTieBreakQuestion() *Question {
	if r.TieBreakIndex < 0 || r.TieBreakIndex >= len(r.TieBreakQuestions) {
		return nil
	}
	return &r.TieBreakQuestions[r.TieBreakIndex]
}

// QuestionInPlay returns the question clients are currently answering for
// any active game status.
func (r *Room) QuestionInPlay() *Question {
	switch r.Status {
	case RoomStatusInProgress:
		return r.CurrentQuestion()
	case RoomStatusTieBreak, RoomStatusSuddenDeath:
		return r.CurrentTieBreakQuestion()
	}
	return nil
}

// Leaderboard returns the players ordered by score, highest first. Ties keep
// roster order.
func (r *Room) Leaderboard() []Player {
	board := make([]Player, len(r.Players))
	copy(board, r.Players)
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})
	return board
}

// AllScoresEqual reports whether at least two players are still in the game
// and all of them share the same score. Disconnected players keep their score
// and count; players who quit do not.
func (r *Room) AllScoresEqual() bool {
	var scores []int
	for _, p := range r.Players {
		if p.Status != PlayerStatusQuit {
			scores = append(scores, p.Score)
		}
	}
	if len(scores) < 2 {
		return false
	}
	for _, s := range scores[1:] {
		if s != scores[0] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so a handler can mutate freely and discard on failure.
func (r *Room) Clone() *Room {
	c := *r
	c.Players = append([]Player(nil), r.Players...)
	c.Questions = cloneQuestions(r.Questions)
	c.TieBreakQuestions = cloneQuestions(r.TieBreakQuestions)
	c.TieBreakWinners = append([]string(nil), r.TieBreakWinners...)
	if r.CurrentQuestionStartedAt != nil {
		t := *r.CurrentQuestionStartedAt
		c.CurrentQuestionStartedAt = &t
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	for i := range c.Players {
		if r.Players[i].QuitAt != nil {
			t := *r.Players[i].QuitAt
			c.Players[i].QuitAt = &t
		}
	}
	return &c
}

func cloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q
		out[i].Options = append([]string(nil), q.Options...)
	}
	return out
}
