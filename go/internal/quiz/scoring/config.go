package scoring

import (
	"fmt"
	"time"

	"github.com/mcdev12/quizarena/go/internal/models"
)

// DifficultyConfig holds the scoring and timing rules for one difficulty tier.
type DifficultyConfig struct {
	Quantity          int  `yaml:"quantity" json:"quantity"`
	TimePerQuestion   int  `yaml:"time_per_question" json:"time_per_question"`
	BaseScore         int  `yaml:"score" json:"score"`
	SpeedBonusEnabled bool `yaml:"speed_bonus_enabled" json:"speed_bonus_enabled"`
	MaxBonus          int  `yaml:"max_speed_bonus" json:"max_speed_bonus"`
}

// TimeLimit returns the time budget as a duration.
func (c DifficultyConfig) TimeLimit() time.Duration {
	return time.Duration(c.TimePerQuestion) * time.Second
}

// Table maps difficulty tiers to their config.
type Table map[models.Difficulty]DifficultyConfig

// DefaultTable returns the built-in difficulty table.
func DefaultTable() Table {
	return Table{
		models.DifficultyEasy: {
			Quantity:          5,
			TimePerQuestion:   15,
			BaseScore:         50,
			SpeedBonusEnabled: false,
			MaxBonus:          0,
		},
		models.DifficultyMedium: {
			Quantity:          3,
			TimePerQuestion:   20,
			BaseScore:         100,
			SpeedBonusEnabled: true,
			MaxBonus:          30,
		},
		models.DifficultyHard: {
			Quantity:          2,
			TimePerQuestion:   25,
			BaseScore:         150,
			SpeedBonusEnabled: true,
			MaxBonus:          50,
		},
	}
}

// Lookup returns the config for a difficulty, falling back to easy for
// unknown tiers.
func (t Table) Lookup(d models.Difficulty) DifficultyConfig {
	if cfg, ok := t[d]; ok {
		return cfg
	}
	return t[models.DifficultyEasy]
}

// Validate checks that every tier is present and sane.
func (t Table) Validate() error {
	for _, d := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
		cfg, ok := t[d]
		if !ok {
			return fmt.Errorf("missing difficulty %q", d)
		}
		if cfg.TimePerQuestion <= 0 {
			return fmt.Errorf("difficulty %q: time_per_question must be positive", d)
		}
		if cfg.BaseScore < 0 || cfg.MaxBonus < 0 {
			return fmt.Errorf("difficulty %q: scores must not be negative", d)
		}
	}
	return nil
}

// TierOverlay is a partial DifficultyConfig read from configuration. Nil
// fields keep the value already in the table.
type TierOverlay struct {
	Quantity          *int  `yaml:"quantity"`
	TimePerQuestion   *int  `yaml:"time_per_question"`
	BaseScore         *int  `yaml:"score"`
	SpeedBonusEnabled *bool `yaml:"speed_bonus_enabled"`
	MaxBonus          *int  `yaml:"max_speed_bonus"`
}

// Overlay maps difficulty tiers to partial overrides.
type Overlay map[models.Difficulty]TierOverlay

// Merge applies the set fields of overlay onto a copy of t.
func (t Table) Merge(overlay Overlay) Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overlay {
		base := out[k]
		if v.Quantity != nil {
			base.Quantity = *v.Quantity
		}
		if v.TimePerQuestion != nil {
			base.TimePerQuestion = *v.TimePerQuestion
		}
		if v.BaseScore != nil {
			base.BaseScore = *v.BaseScore
		}
		if v.SpeedBonusEnabled != nil {
			base.SpeedBonusEnabled = *v.SpeedBonusEnabled
		}
		if v.MaxBonus != nil {
			base.MaxBonus = *v.MaxBonus
		}
		out[k] = base
	}
	return out
}
