package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizarena/go/internal/models"
)

func bank(d models.Difficulty, n int) []models.Question {
	out := make([]models.Question, n)
	for i := range out {
		out[i] = models.Question{
			ID:            fmt.Sprintf("%s-%d", d, i),
			Text:          "q",
			Options:       []string{"A", "B"},
			CorrectAnswer: "A",
			Difficulty:    d,
		}
	}
	return out
}

func TestMemoryStore_SaveRoomIsOptimistic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	room := &models.Room{ID: "r1", Status: models.RoomStatusWaiting}
	require.NoError(t, s.SaveRoom(ctx, room))
	assert.Equal(t, int64(1), room.Version)

	a, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	b, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)

	a.Status = models.RoomStatusInProgress
	require.NoError(t, s.SaveRoom(ctx, a))

	b.Status = models.RoomStatusCancelled
	err = s.SaveRoom(ctx, b)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusInProgress, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStore_GetRoomReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	require.NoError(t, s.SaveRoom(ctx, &models.Room{ID: "r1", Players: []models.Player{{WalletID: "w1"}}}))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	got.Players[0].Score = 999

	again, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, again.Players[0].Score)
}

func TestMemoryStore_MissingRoom(t *testing.T) {
	_, err := NewMemoryStore(nil).GetRoom(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryStore_SaveAnswerRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	a := &models.Answer{ID: "a1", RoomID: "r1", QuestionID: "q1", WalletID: "w1", SubmittedAt: time.Now()}
	require.NoError(t, s.SaveAnswer(ctx, a))
	assert.ErrorIs(t, s.SaveAnswer(ctx, &models.Answer{ID: "a2", RoomID: "r1", QuestionID: "q1", WalletID: "w1"}), ErrDuplicateAnswer)
	require.NoError(t, s.SaveAnswer(ctx, &models.Answer{ID: "a3", RoomID: "r1", QuestionID: "q1", WalletID: "w2"}))

	answers, err := s.GetAnswers(ctx, "r1", "q1")
	require.NoError(t, err)
	assert.Len(t, answers, 2)
}

func TestMemoryStore_RecordAnswerWritesBothOrNeither(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	require.NoError(t, s.SaveRoom(ctx, &models.Room{ID: "r1", Players: []models.Player{{WalletID: "w1"}}}))

	stale, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	fresh, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, s.SaveRoom(ctx, fresh))

	stale.Players[0].Score = 95
	err = s.RecordAnswer(ctx, &models.Answer{ID: "a1", RoomID: "r1", QuestionID: "q1", WalletID: "w1"}, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)
	answers, err := s.GetAnswers(ctx, "r1", "q1")
	require.NoError(t, err)
	assert.Empty(t, answers)

	fresh.Players[0].Score = 95
	require.NoError(t, s.RecordAnswer(ctx, &models.Answer{ID: "a2", RoomID: "r1", QuestionID: "q1", WalletID: "w1"}, fresh))
	assert.Equal(t, int64(3), fresh.Version)

	fresh.Players[0].Score = 190
	err = s.RecordAnswer(ctx, &models.Answer{ID: "a3", RoomID: "r1", QuestionID: "q1", WalletID: "w1"}, fresh)
	assert.ErrorIs(t, err, ErrDuplicateAnswer)
	assert.Equal(t, int64(3), fresh.Version)

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 95, got.Players[0].Score)
	answers, err = s.GetAnswers(ctx, "r1", "q1")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "a2", answers[0].ID)
}

func TestMemoryStore_RandomQuestionsHonoursExclude(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(bank(models.DifficultyHard, 3)).WithShuffle()

	qs, err := s.RandomQuestions(ctx, models.DifficultyHard, 2, []string{"hard-0"})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	for _, q := range qs {
		assert.NotEqual(t, "hard-0", q.ID)
	}

	_, err = s.RandomQuestions(ctx, models.DifficultyHard, 3, []string{"hard-0"})
	assert.ErrorIs(t, err, ErrNotEnoughQuestions)
}

func TestMemoryStore_RecordGameResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	require.NoError(t, s.RecordGameResult(ctx, models.GameResult{WalletID: "w1", Score: 120, CorrectAnswers: 3, TotalQuestions: 4, IsWinner: true}))
	require.NoError(t, s.RecordGameResult(ctx, models.GameResult{WalletID: "w1", Score: 80, CorrectAnswers: 1, TotalQuestions: 4}))

	st, err := s.GetPlayerStats(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalGames)
	assert.Equal(t, 1, st.TotalWins)
	assert.Equal(t, 120, st.BestScore)
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 1, st.BestStreak)
	assert.InDelta(t, 0.5, st.AverageAccuracy, 0.0001)
}
