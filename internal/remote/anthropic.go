package remote

import (
	"context"
	"strings"

	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/pkg/anthropic"
)

// AnthropicProvider adapts the Anthropic Messages API. The reasoning variant
// maps to extended thinking.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider wraps an anthropic.Client.
func NewAnthropicProvider(client anthropic.Client) *AnthropicProvider {
	return &AnthropicProvider{client: client}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req ProviderRequest) (*Completion, error) {
	var system []string
	msgs := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, anthropic.Message{Role: m.Role, Content: m.Content})
	}

	temp := req.Temperature
	mreq := anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   int64(req.MaxTokens),
		System:      strings.Join(system, "\n\n"),
		Messages:    msgs,
		Temperature: &temp,
	}
	if req.Variant == VariantReasoning && req.ThinkingBudget > 0 {
		mreq.ThinkingBudget = int64(req.ThinkingBudget)
		// max_tokens must leave room for the answer after thinking.
		if mreq.MaxTokens <= mreq.ThinkingBudget {
			mreq.MaxTokens += mreq.ThinkingBudget
		}
	}

	resp, err := p.client.CreateMessage(ctx, mreq)
	if err != nil {
		if code := anthropic.StatusCode(err); code > 0 {
			return nil, &StatusError{StatusCode: code, Err: err}
		}
		return nil, err
	}

	return &Completion{
		Text:  resp.Text(),
		Model: resp.Model,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
