package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/config"
)

// withConfig installs c as the package config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestPricing(t *testing.T) {
	got := pricing(map[string]config.ModelPricing{"gpt-4o": {Input: 2.5, Output: 10}})
	require.Contains(t, got, "gpt-4o")
	assert.InDelta(t, 2.5, got["gpt-4o"].Input, 0.0001)
	assert.InDelta(t, 10, got["gpt-4o"].Output, 0.0001)
	assert.Empty(t, pricing(nil))
}

func TestInitStore_SQLite(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "runs.db"),
	}})

	ctx := context.Background()
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, "Acme", "fast")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mysql"}})
	_, err := initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitCaller(t *testing.T) {
	for _, name := range []string{"openai", "anthropic"} {
		t.Run(name, func(t *testing.T) {
			withConfig(t, &config.Config{
				Provider: config.ProviderConfig{Name: name, Key: "test-key"},
				Remote:   config.RemoteConfig{TimeoutSecs: 5, MaxAttempts: 1, InitialBackoffMs: 10, MaxBackoffMs: 10, Multiplier: 1},
			})
			c, err := initCaller()
			require.NoError(t, err)
			assert.Equal(t, name, c.Provider())
		})
	}

	withConfig(t, &config.Config{Provider: config.ProviderConfig{Name: "ollama"}})
	_, err := initCaller()
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestInitValidator_RulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_bullets: 1\n"), 0o600))
	withConfig(t, &config.Config{Analysis: config.AnalysisConfig{RulesFile: path}})

	v, err := initValidator()
	require.NoError(t, err)

	res := v.Validate("Source: Pitch deck page 4\nAnalysis:\n- ARR grew 52% in 2024\nConclusion: ARR is $12.3M.")
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "bullet points")
	}
}

func TestInitValidator_MissingFile(t *testing.T) {
	withConfig(t, &config.Config{Analysis: config.AnalysisConfig{RulesFile: "/nonexistent/rules.yaml"}})
	_, err := initValidator()
	assert.Error(t, err)
}

func TestInitBudgeter(t *testing.T) {
	withConfig(t, &config.Config{Budget: config.BudgetConfig{HeadChars: 100}})
	b, err := initBudgeter()
	require.NoError(t, err)
	assert.NotNil(t, b)

	withConfig(t, &config.Config{Budget: config.BudgetConfig{RulesFile: "/nonexistent/keywords.yaml"}})
	_, err = initBudgeter()
	assert.Error(t, err)
}

func TestLoadQuestions_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`questions:
  - id: q1
    text: What is ARR?
    category: financial
  - id: q2
    text: Who are the founders?
    category: team
`), 0o600))
	withConfig(t, &config.Config{Questions: config.QuestionsConfig{Source: "file", File: path}})

	qs, err := loadQuestions(context.Background(), &appEnv{})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "team", qs[1].Category)
}

func TestLoadQuestions_NotionWithoutToken(t *testing.T) {
	withConfig(t, &config.Config{Questions: config.QuestionsConfig{Source: "notion"}})
	_, err := loadQuestions(context.Background(), &appEnv{})
	assert.ErrorContains(t, err, "notion.token")
}
