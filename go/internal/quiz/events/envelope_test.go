package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizarena/go/internal/models"
)

func TestDecodeClientMessage(t *testing.T) {
	t.Run("submit answer", func(t *testing.T) {
		msg, err := DecodeClientMessage([]byte(`{"type":"submit_answer","payload":{"answer":"Paris","question_index":2}}`))
		require.NoError(t, err)
		assert.Equal(t, TypeSubmitAnswer, msg.Type)
		p, ok := msg.Payload.(*SubmitAnswerPayload)
		require.True(t, ok)
		assert.Equal(t, "Paris", p.Answer)
		require.NotNil(t, p.QuestionIndex)
		assert.Equal(t, 2, *p.QuestionIndex)
	})

	t.Run("start game without payload", func(t *testing.T) {
		msg, err := DecodeClientMessage([]byte(`{"type":"start_game"}`))
		require.NoError(t, err)
		p := msg.Payload.(*StartGamePayload)
		assert.Nil(t, p.Settings.Questions.Easy)
	})

	t.Run("start game with counts", func(t *testing.T) {
		msg, err := DecodeClientMessage([]byte(`{"type":"start_game","payload":{"settings":{"questions":{"easy":2,"hard":0}}}}`))
		require.NoError(t, err)
		p := msg.Payload.(*StartGamePayload)
		require.NotNil(t, p.Settings.Questions.Easy)
		assert.Equal(t, 2, *p.Settings.Questions.Easy)
		assert.Nil(t, p.Settings.Questions.Medium)
		require.NotNil(t, p.Settings.Questions.Hard)
		assert.Equal(t, 0, *p.Settings.Questions.Hard)
	})

	t.Run("ping has no payload", func(t *testing.T) {
		msg, err := DecodeClientMessage([]byte(`{"type":"ping"}`))
		require.NoError(t, err)
		assert.Nil(t, msg.Payload)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := DecodeClientMessage([]byte(`{"type":"next_question"}`))
		assert.ErrorIs(t, err, ErrUnknownMessageType)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeClientMessage([]byte(`{"type":`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("empty answer rejected", func(t *testing.T) {
		_, err := DecodeClientMessage([]byte(`{"type":"submit_tie_break_answer","payload":{"answer":"  "}}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("kick needs a target", func(t *testing.T) {
		_, err := DecodeClientMessage([]byte(`{"type":"kick_player","payload":{}}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("negative question count rejected", func(t *testing.T) {
		_, err := DecodeClientMessage([]byte(`{"type":"start_game","payload":{"settings":{"questions":{"medium":-1}}}}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestNewEnvelope_EpochMillis(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(TypePong, PongPayload{ServerTime: now.UnixMilli()}, now)
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "pong", raw["type"])
	assert.Equal(t, float64(now.UnixMilli()), raw["ts"])
	assert.Equal(t, float64(now.UnixMilli()), raw["payload"].(map[string]interface{})["server_time"])
}

func TestQuestionViewHidesCorrectAnswer(t *testing.T) {
	q := &models.Question{ID: "q1", Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris", Difficulty: models.DifficultyEasy}

	data, err := json.Marshal(NextQuestionPayload{Question: NewQuestionView(q)})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "correct_answer")

	view := NewQuestionView(q)
	view.Options[0] = "Lyon"
	assert.Equal(t, "Paris", q.Options[0])
}
