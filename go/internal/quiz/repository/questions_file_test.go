package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizarena/go/internal/models"
)

func TestParseQuestions(t *testing.T) {
	data := []byte(`
questions:
  - id: q-1
    text: Largest planet?
    options: [Mars, Jupiter, Venus, Earth]
    correct_answer: Jupiter
    difficulty: Easy
  - id: q-2
    text: 2 + 2?
    options: ["3", "4"]
    correct_answer: "4"
    difficulty: medium
    explanation: arithmetic
`)
	qs, err := ParseQuestions(data)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, models.DifficultyEasy, qs[0].Difficulty)
	assert.Equal(t, []string{"Mars", "Jupiter", "Venus", "Earth"}, qs[0].Options)
	assert.Equal(t, "arithmetic", qs[1].Explanation)
}

func TestParseQuestions_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown difficulty": `
questions:
  - {id: a, text: t, options: [x, y], correct_answer: x, difficulty: insane}`,
		"answer not an option": `
questions:
  - {id: a, text: t, options: [x, y], correct_answer: z, difficulty: easy}`,
		"duplicate id": `
questions:
  - {id: a, text: t, options: [x, y], correct_answer: x, difficulty: easy}
  - {id: a, text: u, options: [x, y], correct_answer: y, difficulty: hard}`,
		"missing id": `
questions:
  - {text: t, options: [x, y], correct_answer: x, difficulty: easy}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuestions([]byte(data))
			assert.Error(t, err)
		})
	}
}
