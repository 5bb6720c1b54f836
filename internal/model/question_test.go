package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	t.Run("adds all fields", func(t *testing.T) {
		t.Parallel()
		a := TokenUsage{InputTokens: 100, OutputTokens: 50, Cost: 0.01}
		b := TokenUsage{InputTokens: 200, OutputTokens: 100, Cost: 0.02}
		a.Add(b)
		assert.Equal(t, 300, a.InputTokens)
		assert.Equal(t, 150, a.OutputTokens)
		assert.InDelta(t, 0.03, a.Cost, 0.0001)
	})

	t.Run("add zero is no-op", func(t *testing.T) {
		t.Parallel()
		a := TokenUsage{InputTokens: 100, Cost: 0.01}
		a.Add(TokenUsage{})
		assert.Equal(t, 100, a.InputTokens)
		assert.InDelta(t, 0.01, a.Cost, 0.0001)
	})
}

func TestQuestionsByCategory(t *testing.T) {
	t.Parallel()

	qs := []Question{
		{ID: "q1", Category: "financial"},
		{ID: "q2", Category: "legal"},
		{ID: "q3", Category: "financial"},
		{ID: "q4"},
	}
	got := QuestionsByCategory(qs)
	assert.Len(t, got, 3)
	assert.Equal(t, []Question{qs[0], qs[2]}, got["financial"])
	assert.Equal(t, []Question{qs[1]}, got["legal"])
	assert.Equal(t, []Question{qs[3]}, got[""])
}

func TestAnswerStateTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state AnswerState
		want  bool
	}{
		{AnswerIdle, false},
		{AnswerLoading, false},
		{AnswerComplete, true},
		{AnswerError, true},
		{AnswerEdited, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.state.Terminal())
		})
	}
}

func TestSectionsEmpty(t *testing.T) {
	t.Parallel()
	assert.True(t, Sections{}.Empty())
	assert.False(t, Sections{Conclusion: "x"}.Empty())
}
