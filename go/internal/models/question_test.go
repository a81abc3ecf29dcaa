package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestion_Matching(t *testing.T) {
	q := &Question{CorrectAnswer: "Paris"}

	assert.True(t, q.IsExactMatch("Paris"))
	assert.False(t, q.IsExactMatch("paris"))
	assert.False(t, q.IsExactMatch(" Paris"))
	assert.False(t, q.IsExactMatch(""))

	assert.True(t, q.IsCorrect(" paris "))
	assert.True(t, q.IsCorrect("PARIS"))
	assert.False(t, q.IsCorrect("Lyon"))
	assert.False(t, q.IsCorrect(""))
}
