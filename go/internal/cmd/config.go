package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizarena/go/internal/quiz/orchestrator"
	"github.com/mcdev12/quizarena/go/internal/quiz/scoring"
)

// Config is the YAML game configuration. Zero values keep the built-in defaults.
type Config struct {
	Game struct {
		CountdownSeconds        int   `yaml:"countdown_seconds"`
		FallbackBufferSeconds   int   `yaml:"fallback_buffer_seconds"`
		ResultDelaySeconds      int   `yaml:"result_delay_seconds"`
		StaleQuestionSeconds    int   `yaml:"stale_question_seconds"`
		MinSyncRemainingSeconds int   `yaml:"min_sync_remaining_seconds"`
		IdleRoomSeconds         int   `yaml:"idle_room_seconds"`
		TeardownMinutes         int   `yaml:"teardown_minutes"`
		PurgeOnTeardown         bool  `yaml:"purge_on_teardown"`
		ShuffleQuestions        *bool `yaml:"shuffle_questions"`
	} `yaml:"game"`

	Players struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"players"`

	TieBreak struct {
		Questions        int `yaml:"questions"`
		SuddenDeathAfter int `yaml:"sudden_death_after_round"`
		RoundCeiling     int `yaml:"round_ceiling"`
	} `yaml:"tie_break"`

	Difficulties scoring.Overlay `yaml:"difficulties"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path. A missing file yields the defaults.
func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// orchestratorConfig overlays the file settings on the orchestrator defaults.
func (c *Config) orchestratorConfig() (orchestrator.Config, error) {
	out := orchestrator.DefaultConfig()

	out.Difficulties = scoring.DefaultTable().Merge(c.Difficulties)
	if err := out.Difficulties.Validate(); err != nil {
		return out, fmt.Errorf("invalid difficulty table: %w", err)
	}

	g := c.Game
	setSeconds(&out.Countdown, g.CountdownSeconds)
	setSeconds(&out.FallbackBuffer, g.FallbackBufferSeconds)
	setSeconds(&out.ResultDelay, g.ResultDelaySeconds)
	setSeconds(&out.StaleQuestionThreshold, g.StaleQuestionSeconds)
	setSeconds(&out.MinSyncRemaining, g.MinSyncRemainingSeconds)
	setSeconds(&out.IdleRoomTimeout, g.IdleRoomSeconds)
	if g.TeardownMinutes > 0 {
		out.TeardownDelay = time.Duration(g.TeardownMinutes) * time.Minute
	}
	out.PurgeOnTeardown = g.PurgeOnTeardown
	if g.ShuffleQuestions != nil {
		out.ShuffleQuestions = *g.ShuffleQuestions
	}

	setPositive(&out.MinPlayers, c.Players.Min)
	setPositive(&out.MaxPlayers, c.Players.Max)
	if out.MinPlayers > out.MaxPlayers {
		return out, fmt.Errorf("players.min (%d) exceeds players.max (%d)", out.MinPlayers, out.MaxPlayers)
	}

	setPositive(&out.TieBreakQuestions, c.TieBreak.Questions)
	setPositive(&out.SuddenDeathAfterRound, c.TieBreak.SuddenDeathAfter)
	setPositive(&out.TieBreakRoundCeiling, c.TieBreak.RoundCeiling)
	return out, nil
}

func setSeconds(d *time.Duration, seconds int) {
	if seconds > 0 {
		*d = time.Duration(seconds) * time.Second
	}
}

func setPositive(v *int, n int) {
	if n > 0 {
		*v = n
	}
}
