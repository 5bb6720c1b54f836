package review

import (
	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/remote"
)

// Stage names, in pipeline order.
const (
	StageAnalyst   = "analyst"
	StageAssociate = "associate"
	StageFollowUp  = "followUp"
	StageDecision  = "decision"
)

// DomainPlaceholder in an instruction is replaced with the stage's domain.
const DomainPlaceholder = "{domain}"

// StageConfig configures one review stage.
type StageConfig struct {
	Name        string
	Instruction string
	Model       remote.ModelSpec
	Temperature float64
	MaxTokens   int
	// Shape selects the answer contract applied to the output. Free text
	// keeps the output as returned.
	Shape answer.Shape
	// CrossDomain stages consume every domain's prior output and produce a
	// single result with an empty domain.
	CrossDomain bool
}

// DefaultStages returns analyst → associate → followUp → decision.
func DefaultStages(m remote.ModelSpec) []StageConfig {
	return []StageConfig{
		{
			Name: StageAnalyst,
			Instruction: "You are the analyst on this deal. Write a review memo for the " + DomainPlaceholder +
				" domain from the question answers below. Ground every claim in the answers and flag answers that are missing or weak.",
			Model:       m,
			Temperature: 0.2,
			MaxTokens:   2048,
			Shape:       answer.ShapeSections,
		},
		{
			Name: StageAssociate,
			Instruction: "You are the associate reviewing the analyst's memo for the " + DomainPlaceholder +
				" domain. Challenge unsupported claims, note contradictions with the answers, and list what must be verified.",
			Model:       m,
			Temperature: 0.3,
			MaxTokens:   2048,
			Shape:       answer.ShapeFreeText,
		},
		{
			Name:        StageFollowUp,
			Instruction: "Consolidate the associate reviews from every domain into one list of follow-up questions for management, most important first. Merge duplicates and say which domain raised each question.",
			Model:       m,
			Temperature: 0.2,
			MaxTokens:   2048,
			Shape:       answer.ShapeFreeText,
			CrossDomain: true,
		},
		{
			Name:        StageDecision,
			Instruction: "You are the investment committee. Using the consolidated follow-ups, give a final recommendation: invest, pass, or proceed subject to conditions, with the deciding figures.",
			Model:       m,
			Temperature: 0.1,
			MaxTokens:   2048,
			Shape:       answer.ShapeSections,
			CrossDomain: true,
		},
	}
}
