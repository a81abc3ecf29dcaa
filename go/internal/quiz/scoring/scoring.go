// Package scoring turns a single answer into points. Everything here is pure.
package scoring

import (
	"time"
)

// Order bonus shares of MaxBonus, in thousandths, for the first three correct answers.
var orderBonusPerMille = []int64{300, 150, 50}

// Input describes one answer to be scored.
type Input struct {
	IsCorrect    bool
	ResponseTime time.Duration
	Config       DifficultyConfig
	// CorrectRank is the 1-based position of this answer among correct answers
	// to the same question. Zero or negative means unranked.
	CorrectRank int
}

// Result is the points breakdown for one answer.
type Result struct {
	Total      int `json:"total"`
	Base       int `json:"base"`
	SpeedBonus int `json:"speed_bonus"`
	TimeBonus  int `json:"time_bonus"`
	OrderBonus int `json:"order_bonus"`
}

// Score computes the points for an answer. Incorrect answers score zero. A
// correct answer after the time limit keeps its base score and order bonus
// but earns no speed or time bonus.
//
// All terms are floored. The arithmetic is done on integer nanoseconds so
// exact boundaries (for example 30 * 0.3) never round down by one.
func Score(in Input) Result {
	if !in.IsCorrect {
		return Result{}
	}

	cfg := in.Config
	limit := int64(cfg.TimeLimit())
	rt := int64(in.ResponseTime)
	if rt < 0 {
		rt = 0
	}
	if rt > limit {
		rt = limit
	}
	maxBonus := int64(cfg.MaxBonus)

	res := Result{Base: cfg.BaseScore}
	if limit > 0 {
		remaining := limit - rt
		if cfg.SpeedBonusEnabled {
			res.SpeedBonus = int(maxBonus * remaining / limit)
		}
		res.TimeBonus = int(maxBonus * remaining / (2 * limit))
	}
	res.OrderBonus = OrderBonus(cfg.MaxBonus, in.CorrectRank)

	res.Total = res.Base + res.SpeedBonus + res.TimeBonus + res.OrderBonus
	return res
}

// OrderBonus returns the bonus for the rank-th correct answer.
func OrderBonus(maxBonus, rank int) int {
	if rank < 1 || rank > len(orderBonusPerMille) {
		return 0
	}
	return int(int64(maxBonus) * orderBonusPerMille[rank-1] / 1000)
}
