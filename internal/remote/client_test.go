package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/cost"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/resilience"
)

// scriptedProvider replays one step per call. A nil step with block set waits
// for the attempt context to end.
type scriptedProvider struct {
	name  string
	mu    sync.Mutex
	steps []step
	calls int
	reqs  []ProviderRequest
}

type step struct {
	text  string
	err   error
	block bool
}

func (p *scriptedProvider) Name() string {
	if p.name == "" {
		return "fake"
	}
	return p.name
}

func (p *scriptedProvider) Complete(ctx context.Context, req ProviderRequest) (*Completion, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.reqs = append(p.reqs, req)
	s := p.steps[min(i, len(p.steps)-1)]
	p.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Completion{Text: s.text, Usage: model.TokenUsage{InputTokens: 1000, OutputTokens: 100}}, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testConfig() Config {
	return Config{
		Timeout: 50 * time.Millisecond,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     4 * time.Millisecond,
			Multiplier:     2,
		},
	}
}

func testRequest() Request {
	return Request{
		Messages:    []model.Message{{Role: model.RoleUser, Content: "What is ARR?"}},
		Model:       ModelSpec{Name: "gpt-4o", Variant: VariantStandard},
		Temperature: 0.2,
		MaxTokens:   512,
	}
}

func TestCall_Success(t *testing.T) {
	p := &scriptedProvider{name: "openai", steps: []step{{text: "ARR is $12.3M"}}}
	rates := cost.Rates{OpenAI: map[string]cost.ModelRate{"gpt-4o": {Input: 2.5, Output: 10}}}
	c := New(p, testConfig(), WithCostCalculator(cost.NewCalculator(rates)))

	res, err := c.Call(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ARR is $12.3M", res.Text)
	assert.Equal(t, "ARR is $12.3M", res.Raw)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "gpt-4o", res.Model)
	assert.InDelta(t, 0.0035, res.Usage.Cost, 1e-9)

	require.Len(t, p.reqs, 1)
	assert.Equal(t, 512, p.reqs[0].MaxTokens)
	assert.Empty(t, p.reqs[0].ReasoningEffort)
}

func TestClient_UsageAccumulates(t *testing.T) {
	p := &scriptedProvider{name: "openai", steps: []step{
		{text: "ARR is $12.3M"},
		{err: &StatusError{StatusCode: 401}},
		{text: "Churn is 4%"},
	}}
	rates := cost.Rates{OpenAI: map[string]cost.ModelRate{"gpt-4o": {Input: 2.5, Output: 10}}}
	c := New(p, testConfig(), WithCostCalculator(cost.NewCalculator(rates)))

	_, err := c.Call(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = c.Call(context.Background(), testRequest())
	require.Error(t, err)
	_, err = c.Call(context.Background(), testRequest())
	require.NoError(t, err)

	u := c.Usage()
	assert.Equal(t, 2000, u.InputTokens)
	assert.Equal(t, 200, u.OutputTokens)
	assert.InDelta(t, 0.007, u.Cost, 1e-9)
}

func TestCall_UnauthorizedIsNotRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: &StatusError{StatusCode: 401, Body: "invalid api key"}}}}
	c := New(p, testConfig())

	_, err := c.Call(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, p.Calls())

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Attempts)
	assert.Equal(t, 401, re.StatusCode)
}

func TestCall_ReasoningVariantExtractsAnswer(t *testing.T) {
	p := &scriptedProvider{steps: []step{{text: "<rambling><answer>Final text</answer>"}}}
	c := New(p, testConfig())

	req := testRequest()
	req.Model = ModelSpec{
		Name:            "deepseek-reasoner",
		Variant:         VariantReasoning,
		AnswerOpen:      "<answer>",
		AnswerClose:     "</answer>",
		ReasoningEffort: "high",
		TopP:            0.95,
		ThinkingBudget:  2048,
	}
	res, err := c.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Final text", res.Text)
	assert.Equal(t, "<rambling><answer>Final text</answer>", res.Raw)

	require.Len(t, p.reqs, 1)
	assert.Equal(t, VariantReasoning, p.reqs[0].Variant)
	assert.Equal(t, "high", p.reqs[0].ReasoningEffort)
	assert.InDelta(t, 0.95, p.reqs[0].TopP, 1e-9)
	assert.Equal(t, 2048, p.reqs[0].ThinkingBudget)
}

func TestCall_StandardVariantKeepsDelimiters(t *testing.T) {
	p := &scriptedProvider{steps: []step{{text: "<rambling><answer>Final text</answer>"}}}
	c := New(p, testConfig())

	req := testRequest()
	req.Model.AnswerOpen = "<answer>"
	req.Model.ThinkingBudget = 100
	res, err := c.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "<rambling><answer>Final text</answer>", res.Text)
	assert.Zero(t, p.reqs[0].ThinkingBudget)
}

func TestCall_TimesOutTwiceThenSucceeds(t *testing.T) {
	p := &scriptedProvider{steps: []step{{block: true}, {block: true}, {text: "done"}}}
	c := New(p, testConfig())

	res, err := c.Call(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, p.Calls())
}

func TestCall_ExhaustsRetries(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"timeout", nil, ErrTimeout},
		{"rate limited", &StatusError{StatusCode: 429}, ErrRateLimited},
		{"server error", &StatusError{StatusCode: 503}, ErrProvider},
		{"gateway timeout", &StatusError{StatusCode: 504}, ErrTimeout},
		{"network", errors.New("read tcp: connection reset by peer"), ErrProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := step{err: tt.err}
			if tt.err == nil {
				s.block = true
			}
			p := &scriptedProvider{steps: []step{s}}
			c := New(p, testConfig())

			_, err := c.Call(context.Background(), testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 3, p.Calls())

			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 3, re.Attempts)
		})
	}
}

func TestCall_ClientErrorIsPermanent(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: &StatusError{StatusCode: 400, Body: "bad request"}}}}
	c := New(p, testConfig())

	_, err := c.Call(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, 1, p.Calls())
}

func TestCall_EmptyCompletionIsRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{{text: "  "}, {text: "ok"}}}
	c := New(p, testConfig())

	res, err := c.Call(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestCall_InvalidInput(t *testing.T) {
	p := &scriptedProvider{steps: []step{{text: "unused"}}}
	c := New(p, testConfig())

	_, err := c.Call(context.Background(), Request{Model: ModelSpec{Name: "gpt-4o"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	req := testRequest()
	req.Model.Name = ""
	_, err = c.Call(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, p.Calls())
}

func TestCall_CallerCancellationStopsRetries(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: &StatusError{StatusCode: 503}}}}
	cfg := testConfig()
	cfg.Retry.InitialBackoff = time.Hour
	cfg.Retry.MaxBackoff = time.Hour
	c := New(p, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Call(ctx, testRequest())
	require.Error(t, err)
	assert.Equal(t, 1, p.Calls())
}

func TestCall_CircuitBreakerOpens(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: &StatusError{StatusCode: 500}}}}
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = &resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}
	c := New(p, cfg)

	for i := 0; i < 2; i++ {
		_, err := c.Call(context.Background(), testRequest())
		require.ErrorIs(t, err, ErrProvider)
	}
	_, err := c.Call(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, p.Calls())
}

func TestCall_UnauthorizedDoesNotTripBreaker(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: &StatusError{StatusCode: 401}}}}
	cfg := testConfig()
	cfg.Breaker = &resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}
	c := New(p, cfg)

	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), testRequest())
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	assert.Equal(t, 3, p.Calls())
}

func TestCall_RateLimiter(t *testing.T) {
	p := &scriptedProvider{steps: []step{{text: "ok"}}}
	cfg := testConfig()
	cfg.RateLimit = 20
	cfg.Burst = 1
	c := New(p, cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), testRequest())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestExtractAnswer(t *testing.T) {
	tests := []struct {
		name, raw, open, close, want string
	}{
		{"tagged", "<rambling><answer>Final text</answer>", "<answer>", "</answer>", "Final text"},
		{"no delimiter", "plain answer", "<answer>", "</answer>", "plain answer"},
		{"unclosed", "thinking... <answer> Final", "<answer>", "</answer>", "Final"},
		{"last wins", "<answer>draft</answer> more <answer>final</answer>", "<answer>", "</answer>", "final"},
		{"empty answer falls back", "thoughts <answer></answer>", "<answer>", "</answer>", "thoughts <answer></answer>"},
		{"no open configured", "<answer>x</answer>", "", "", "<answer>x</answer>"},
		{"marker style", "Reasoning...\nFINAL ANSWER: 42", "FINAL ANSWER:", "", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAnswer(tt.raw, tt.open, tt.close))
		})
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantStandard, v)

	v, err = ParseVariant("Reasoning")
	require.NoError(t, err)
	assert.Equal(t, VariantReasoning, v)

	_, err = ParseVariant("thinking")
	assert.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		code      int
		want      Kind
		retryable bool
	}{
		{401, KindUnauthorized, false},
		{403, KindUnauthorized, false},
		{429, KindRateLimited, true},
		{408, KindTimeout, true},
		{504, KindTimeout, true},
		{500, KindProvider, true},
		{502, KindProvider, true},
		{404, KindProvider, false},
		{422, KindProvider, false},
	}
	for _, tt := range tests {
		re := classify(context.Background(), &StatusError{StatusCode: tt.code})
		assert.Equal(t, tt.want, re.Kind, tt.code)
		assert.Equal(t, tt.retryable, re.Retryable(), tt.code)
		assert.Equal(t, tt.want, KindOf(re))
	}
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
}
