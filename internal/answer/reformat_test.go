package answer

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestReformat_UnstructuredText(t *testing.T) {
	raw := "Here are some thoughts. The market is fine."

	text, s, err := Reformat(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Source)
	assert.NotEmpty(t, s.Analysis)
	assert.NotEmpty(t, s.Conclusion)
	assert.Contains(t, text, "Source:")
	assert.Contains(t, text, "Analysis:")
	assert.Contains(t, text, "Conclusion:")
	assert.Contains(t, s.Conclusion, "The market is fine.")

	// The reformatted text parses cleanly.
	res := NewValidator(DefaultRules()).Validate(text)
	assert.Empty(t, res.Errors)
}

func TestReformat_KeepsParsedSections(t *testing.T) {
	raw := "Source: deck page 3\n\nThe company is growing.\n- Revenue doubled to $4M in 2024\n- Churn fell"

	_, s, err := Reformat(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.Source, "deck page 3"))
	assert.Equal(t, "- Revenue doubled to $4M in 2024\n- Churn fell", s.Analysis)
	assert.NotEmpty(t, s.Conclusion)
}

func TestReformat_LongestBulletsInOrder(t *testing.T) {
	var lines []string
	for i := 1; i <= 9; i++ {
		lines = append(lines, "- "+fmt.Sprintf("point %d ", i)+strings.Repeat("x", i))
	}
	_, s, err := Reformat(strings.Join(lines, "\n"))
	require.NoError(t, err)

	got := strings.Split(s.Analysis, "\n")
	require.Len(t, got, 7)
	assert.True(t, strings.HasPrefix(got[0], "- point 3 "))
	assert.True(t, strings.HasPrefix(got[6], "- point 9 "))
}

func TestReformat_DecimalsDoNotSplitSentences(t *testing.T) {
	_, s, err := Reformat("ARR reached $12.3M in 2024 after a strong year of expansion across enterprise accounts.")
	require.NoError(t, err)
	assert.Equal(t, "ARR reached $12.3M in 2024 after a strong year of expansion across enterprise accounts.", s.Conclusion)
}

func TestReformat_Unrecoverable(t *testing.T) {
	for _, raw := range []string{"", "   \n  ", "**Source:**"} {
		_, _, err := Reformat(raw)
		assert.ErrorIs(t, err, ErrUnrecoverable, "%q", raw)
	}
}
