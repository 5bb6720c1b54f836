package remote

import (
	"context"

	"github.com/sells-group/diligence-cli/internal/model"
)

// ProviderRequest is one chat-completion request as a provider sees it.
// Variant fields are only set for the reasoning variant.
type ProviderRequest struct {
	Model       string
	Variant     Variant
	Messages    []model.Message
	Temperature float64
	MaxTokens   int

	ReasoningEffort string
	TopP            float64
	ThinkingBudget  int
}

// Completion is a provider's raw answer.
type Completion struct {
	Text  string
	Model string
	Usage model.TokenUsage
}

// Provider performs a single chat-completion request. Implementations report
// non-2xx responses as *StatusError and must not retry.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req ProviderRequest) (*Completion, error)
}
