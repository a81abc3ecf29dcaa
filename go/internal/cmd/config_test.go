package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/orchestrator"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	config, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	got, err := config.orchestratorConfig()
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DefaultConfig(), got)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
game:
  countdown_seconds: 3
  teardown_minutes: 1
  shuffle_questions: false
players:
  min: 3
  max: 6
tie_break:
  questions: 5
difficulties:
  hard:
    quantity: 4
    time_per_question: 30
    speed_bonus_enabled: true
`)
	config, err := loadConfig(path)
	require.NoError(t, err)

	got, err := config.orchestratorConfig()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, got.Countdown)
	assert.Equal(t, time.Minute, got.TeardownDelay)
	assert.False(t, got.ShuffleQuestions)
	assert.Equal(t, 3, got.MinPlayers)
	assert.Equal(t, 6, got.MaxPlayers)
	assert.Equal(t, 5, got.TieBreakQuestions)
	assert.Equal(t, 2, got.SuddenDeathAfterRound)

	hard := got.Difficulties[models.DifficultyHard]
	assert.Equal(t, 4, hard.Quantity)
	assert.Equal(t, 30, hard.TimePerQuestion)
	assert.Equal(t, 150, hard.BaseScore)
	assert.Equal(t, 5, got.Difficulties[models.DifficultyEasy].Quantity)
}

func TestLoadConfig_TierScoreOnlyKeepsSpeedBonus(t *testing.T) {
	config, err := loadConfig(writeConfig(t, `
difficulties:
  hard:
    score: 120
`))
	require.NoError(t, err)

	got, err := config.orchestratorConfig()
	require.NoError(t, err)
	hard := got.Difficulties[models.DifficultyHard]
	assert.Equal(t, 120, hard.BaseScore)
	assert.True(t, hard.SpeedBonusEnabled)
	assert.Equal(t, 50, hard.MaxBonus)
	assert.Equal(t, 25, hard.TimePerQuestion)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "game: [not, a, map"))
	assert.Error(t, err)

	config, err := loadConfig(writeConfig(t, "players:\n  min: 5\n  max: 2\n"))
	require.NoError(t, err)
	_, err = config.orchestratorConfig()
	assert.Error(t, err)
}
