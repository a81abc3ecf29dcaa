package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizarena/go/internal/models"
)

func easyWithBonus() DifficultyConfig {
	return DifficultyConfig{
		TimePerQuestion:   15,
		BaseScore:         50,
		SpeedBonusEnabled: true,
		MaxBonus:          30,
	}
}

func TestScore_FirstCorrectAnswerAtThreeSeconds(t *testing.T) {
	res := Score(Input{
		IsCorrect:    true,
		ResponseTime: 3 * time.Second,
		Config:       easyWithBonus(),
		CorrectRank:  1,
	})

	assert.Equal(t, 50, res.Base)
	assert.Equal(t, 24, res.SpeedBonus)
	assert.Equal(t, 12, res.TimeBonus)
	assert.Equal(t, 9, res.OrderBonus)
	assert.Equal(t, 95, res.Total)
}

func TestScore_IncorrectIsZero(t *testing.T) {
	res := Score(Input{
		IsCorrect:    false,
		ResponseTime: time.Second,
		Config:       easyWithBonus(),
		CorrectRank:  1,
	})
	assert.Equal(t, Result{}, res)
}

func TestScore_LateCorrectAnswerKeepsBase(t *testing.T) {
	res := Score(Input{
		IsCorrect:    true,
		ResponseTime: 40 * time.Second,
		Config:       easyWithBonus(),
		CorrectRank:  4,
	})
	assert.Equal(t, 50, res.Total)
	assert.Zero(t, res.SpeedBonus)
	assert.Zero(t, res.TimeBonus)
	assert.Zero(t, res.OrderBonus)
}

func TestScore_NegativeResponseTimeIsClamped(t *testing.T) {
	res := Score(Input{
		IsCorrect:    true,
		ResponseTime: -2 * time.Second,
		Config:       easyWithBonus(),
	})
	assert.Equal(t, 30, res.SpeedBonus)
	assert.Equal(t, 15, res.TimeBonus)
	assert.Equal(t, 95, res.Total)
}

func TestScore_SpeedBonusDisabled(t *testing.T) {
	cfg := DefaultTable()[models.DifficultyEasy]
	res := Score(Input{
		IsCorrect:    true,
		ResponseTime: 5 * time.Second,
		Config:       cfg,
		CorrectRank:  1,
	})
	// easy tier has no bonus pool at all
	assert.Equal(t, 50, res.Total)
}

func TestScore_MediumTier(t *testing.T) {
	cfg := DefaultTable()[models.DifficultyMedium]
	res := Score(Input{
		IsCorrect:    true,
		ResponseTime: 5 * time.Second,
		Config:       cfg,
		CorrectRank:  2,
	})
	// 100 + floor(30*15/20) + floor(30*0.5*15/20) + floor(30*0.15)
	assert.Equal(t, 22, res.SpeedBonus)
	assert.Equal(t, 11, res.TimeBonus)
	assert.Equal(t, 4, res.OrderBonus)
	assert.Equal(t, 137, res.Total)
}

func TestOrderBonus(t *testing.T) {
	tests := []struct {
		rank int
		want int
	}{
		{0, 0},
		{1, 15},
		{2, 7},
		{3, 2},
		{4, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OrderBonus(50, tt.rank), "rank %d", tt.rank)
	}
}

func intPtr(v int) *int { return &v }
func boolPtr(v bool) *bool { return &v }

func TestTable_MergeAndValidate(t *testing.T) {
	table := DefaultTable().Merge(Overlay{
		models.DifficultyHard:   {TimePerQuestion: intPtr(30)},
		models.DifficultyMedium: {SpeedBonusEnabled: boolPtr(false), MaxBonus: intPtr(0)},
	})
	require.NoError(t, table.Validate())
	assert.Equal(t, 30, table[models.DifficultyHard].TimePerQuestion)
	assert.Equal(t, 150, table[models.DifficultyHard].BaseScore)
	assert.False(t, table[models.DifficultyMedium].SpeedBonusEnabled)
	assert.Equal(t, 0, table[models.DifficultyMedium].MaxBonus)

	broken := Table{models.DifficultyEasy: {TimePerQuestion: 10}}
	assert.Error(t, broken.Validate())
}

func TestTable_MergeScoreOnlyKeepsSpeedBonus(t *testing.T) {
	table := DefaultTable().Merge(Overlay{
		models.DifficultyMedium: {BaseScore: intPtr(120)},
	})
	medium := table[models.DifficultyMedium]
	assert.Equal(t, 120, medium.BaseScore)
	assert.True(t, medium.SpeedBonusEnabled)
	assert.Equal(t, 30, medium.MaxBonus)
	assert.Equal(t, 20, medium.TimePerQuestion)
	assert.Equal(t, 3, medium.Quantity)
}

func TestTable_LookupFallsBackToEasy(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, table[models.DifficultyEasy], table.Lookup("legendary"))
}
