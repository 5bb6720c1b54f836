package remote

import (
	"context"
	"net/http"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/pkg/anthropic"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAnthropicProvider_SplitsSystem(t *testing.T) {
	m := &mockAnthropic{}
	m.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.System == "rules\n\nmore rules" &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == model.RoleUser &&
			req.MaxTokens == 512 &&
			req.ThinkingBudget == 0 &&
			req.Temperature != nil && *req.Temperature == 0.2
	})).Return(&anthropic.MessageResponse{
		Model:   "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlock{{Type: "text", Text: "answer"}},
		Usage:   anthropic.TokenUsage{InputTokens: 50, OutputTokens: 7},
	}, nil)

	p := NewAnthropicProvider(m)
	comp, err := p.Complete(context.Background(), ProviderRequest{
		Model: "claude-sonnet-4-5-20250929",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "rules"},
			{Role: model.RoleSystem, Content: "more rules"},
			{Role: model.RoleUser, Content: "Q"},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", comp.Text)
	assert.Equal(t, 50, comp.Usage.InputTokens)
	assert.Equal(t, 7, comp.Usage.OutputTokens)
	m.AssertExpectations(t)
}

func TestAnthropicProvider_ThinkingBudget(t *testing.T) {
	m := &mockAnthropic{}
	m.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.ThinkingBudget == 2048 && req.MaxTokens == 2048+1024
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{
			{Type: "thinking", Thinking: "hmm"},
			{Type: "text", Text: "<answer>Final</answer>"},
		},
	}, nil)

	p := NewAnthropicProvider(m)
	comp, err := p.Complete(context.Background(), ProviderRequest{
		Model:          "claude-sonnet-4-5-20250929",
		Variant:        VariantReasoning,
		Messages:       []model.Message{{Role: model.RoleUser, Content: "Q"}},
		MaxTokens:      1024,
		ThinkingBudget: 2048,
	})
	require.NoError(t, err)
	assert.Equal(t, "<answer>Final</answer>", comp.Text)
	m.AssertExpectations(t)
}

func TestAnthropicProvider_StatusError(t *testing.T) {
	httpReq, err := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	require.NoError(t, err)
	apiErr := &sdk.Error{
		StatusCode: http.StatusUnauthorized,
		Request:    httpReq,
		Response:   &http.Response{StatusCode: http.StatusUnauthorized, Request: httpReq},
	}

	m := &mockAnthropic{}
	m.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, apiErr)

	p := NewAnthropicProvider(m)
	_, err = p.Complete(context.Background(), ProviderRequest{
		Model:    "claude-sonnet-4-5-20250929",
		Messages: []model.Message{{Role: model.RoleUser, Content: "Q"}},
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.ErrorIs(t, classify(context.Background(), err), ErrUnauthorized)
}
