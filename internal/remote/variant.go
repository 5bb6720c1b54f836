package remote

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/config"
)

// Variant is an explicit model capability tag.
type Variant string

const (
	// VariantStandard returns its answer directly.
	VariantStandard Variant = "standard"
	// VariantReasoning emits deliberation before a delimited final answer.
	VariantReasoning Variant = "reasoning"
)

// ParseVariant resolves a configured variant name. Empty means standard.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case "", VariantStandard:
		return VariantStandard, nil
	case VariantReasoning:
		return VariantReasoning, nil
	default:
		return "", eris.Errorf("remote: unknown model variant %q", s)
	}
}

// ModelSpec is a model identifier together with its resolved capabilities.
type ModelSpec struct {
	Name            string
	Variant         Variant
	AnswerOpen      string
	AnswerClose     string
	ReasoningEffort string
	TopP            float64
	ThinkingBudget  int
}

// SpecFromConfig builds a ModelSpec once from configuration.
func SpecFromConfig(cfg config.ModelConfig) (ModelSpec, error) {
	v, err := ParseVariant(cfg.Variant)
	if err != nil {
		return ModelSpec{}, err
	}
	if cfg.Name == "" {
		return ModelSpec{}, eris.New("remote: model name is required")
	}
	return ModelSpec{
		Name:            cfg.Name,
		Variant:         v,
		AnswerOpen:      cfg.AnswerOpen,
		AnswerClose:     cfg.AnswerClose,
		ReasoningEffort: cfg.ReasoningEffort,
		TopP:            cfg.TopP,
		ThinkingBudget:  cfg.ThinkingBudget,
	}, nil
}

// ExtractAnswer returns the text after the last open delimiter, cut at the
// following close delimiter when there is one. Without an open delimiter, or
// when the delimited answer is empty, raw is returned unchanged.
func ExtractAnswer(raw, open, close string) string {
	if open == "" {
		return raw
	}
	idx := strings.LastIndex(raw, open)
	if idx < 0 {
		return raw
	}
	rest := raw[idx+len(open):]
	if close != "" {
		if j := strings.Index(rest, close); j >= 0 {
			rest = rest[:j]
		}
	}
	if rest = strings.TrimSpace(rest); rest == "" {
		return raw
	}
	return rest
}
