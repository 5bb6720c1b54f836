// Package remote calls chat-completion model providers with a per-attempt
// timeout, bounded retries with backoff, and variant-aware post-processing.
package remote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/diligence-cli/internal/cost"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/resilience"
)

// Config controls timeouts, retries and throttling for a Client.
type Config struct {
	// Timeout bounds each attempt, independent of the caller's deadline.
	Timeout time.Duration
	Retry   resilience.RetryConfig
	// RateLimit is the steady request rate per second; 0 disables limiting.
	RateLimit float64
	Burst     int
	// Breaker enables a circuit breaker around the provider when non-nil.
	Breaker *resilience.CircuitBreakerConfig
}

// DefaultConfig returns a 60s timeout and three attempts.
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
		Retry:   resilience.DefaultRetryConfig(),
	}
}

// Request is one model call.
type Request struct {
	Messages    []model.Message
	Model       ModelSpec
	Temperature float64
	MaxTokens   int
}

// Result is a successful call. Text is the post-processed answer; Raw is
// what the provider returned.
type Result struct {
	Text     string
	Raw      string
	Attempts int
	Usage    model.TokenUsage
	Model    string
}

// Client sends requests to one provider. It is safe for concurrent use.
type Client struct {
	provider Provider
	cfg      Config
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	costs    *cost.Calculator

	mu    sync.Mutex
	usage model.TokenUsage
}

// Option configures a Client.
type Option func(*Client)

// WithCostCalculator attributes an estimated cost to every successful call.
func WithCostCalculator(c *cost.Calculator) Option {
	return func(cl *Client) { cl.costs = c }
}

// New creates a Client for provider p.
func New(p Provider, cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	c := &Client{provider: p, cfg: cfg}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.Breaker != nil {
		bc := *cfg.Breaker
		bc.ShouldTrip = tripsBreaker
		bc.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("remote: circuit breaker state change",
				zap.String("provider", p.Name()),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		c.breaker = resilience.NewCircuitBreaker(bc)
	}

	for _, o := range opts {
		o(c)
	}
	return c
}

// Usage returns the tokens and estimated cost of every successful call so far.
func (c *Client) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Provider returns the name of the underlying provider.
func (c *Client) Provider() string { return c.provider.Name() }

// Call sends req and returns the answer text.
//
// Unauthorized and invalid-input failures are returned after the first
// attempt. Rate limiting, timeouts and provider failures are retried up to
// Retry.MaxAttempts; the last error is returned once attempts run out. Every
// returned error is an *Error carrying the attempt count, except when ctx
// itself ends.
func (c *Client) Call(ctx context.Context, req Request) (*Result, error) {
	if len(req.Messages) == 0 {
		return nil, &Error{Kind: KindInvalidInput, Attempts: 0, Err: eris.New("no messages")}
	}
	if req.Model.Name == "" {
		return nil, &Error{Kind: KindInvalidInput, Attempts: 0, Err: eris.New("no model")}
	}

	preq := ProviderRequest{
		Model:       req.Model.Name,
		Variant:     req.Model.Variant,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Model.Variant == VariantReasoning {
		preq.ReasoningEffort = req.Model.ReasoningEffort
		preq.TopP = req.Model.TopP
		preq.ThinkingBudget = req.Model.ThinkingBudget
	}

	retry := c.cfg.Retry
	retry.ShouldRetry = isRetryable
	retry.OnRetry = resilience.RetryLogger(c.provider.Name(), req.Model.Name)

	start := time.Now()
	comp, attempts, err := resilience.DoAttempts(ctx, retry, func(ctx context.Context, _ int) (*Completion, error) {
		return c.attempt(ctx, preq)
	})
	elapsed := time.Since(start)
	callDuration.WithLabelValues(c.provider.Name()).Observe(elapsed.Seconds())
	callAttempts.Observe(float64(attempts))

	if err != nil {
		outcome := "cancelled"
		var re *Error
		if errors.As(err, &re) {
			re.Attempts = attempts
			outcome = string(re.Kind)
		}
		callsTotal.WithLabelValues(c.provider.Name(), outcome).Inc()
		zap.L().Warn("remote: call failed",
			zap.String("provider", c.provider.Name()),
			zap.String("model", req.Model.Name),
			zap.Int("attempts", attempts),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.Error(err),
		)
		return nil, err
	}
	callsTotal.WithLabelValues(c.provider.Name(), "ok").Inc()

	text := comp.Text
	if req.Model.Variant == VariantReasoning {
		text = ExtractAnswer(text, req.Model.AnswerOpen, req.Model.AnswerClose)
	}

	usage := comp.Usage
	modelName := comp.Model
	if modelName == "" {
		modelName = req.Model.Name
	}
	if c.costs != nil {
		usage.Cost = c.costs.Estimate(c.provider.Name(), req.Model.Name, usage.InputTokens, usage.OutputTokens)
	}
	c.mu.Lock()
	c.usage.Add(usage)
	c.mu.Unlock()
	zap.L().Debug("remote: cost attribution",
		zap.String("provider", c.provider.Name()),
		zap.String("model", modelName),
		zap.Int("attempts", attempts),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost_usd", usage.Cost),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	)

	return &Result{
		Text:     text,
		Raw:      comp.Text,
		Attempts: attempts,
		Usage:    usage,
		Model:    modelName,
	}, nil
}

// attempt performs one provider call under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, req ProviderRequest) (*Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "remote: wait for rate limiter")
			}
			return nil, &Error{Kind: KindRateLimited, Err: err}
		}
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	call := func(ctx context.Context) (*Completion, error) {
		return c.provider.Complete(ctx, req)
	}

	var comp *Completion
	var err error
	if c.breaker != nil {
		comp, err = resilience.ExecuteVal(actx, c.breaker, call)
	} else {
		comp, err = call(actx)
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "remote: call cancelled")
		}
		return nil, classify(actx, err)
	}
	if comp == nil || strings.TrimSpace(comp.Text) == "" {
		return nil, &Error{Kind: KindProvider, Err: eris.New("empty completion")}
	}
	return comp, nil
}
