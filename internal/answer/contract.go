// Package answer turns free-text model output into structured answers. Two
// shapes are supported as independent contracts: the informal Summary/Details
// split and the document-grounded Source/Analysis/Conclusion sections.
package answer

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/model"
)

// Shape names an answer contract.
type Shape string

const (
	ShapeSummaryDetails Shape = "summary_details"
	ShapeSections       Shape = "source_analysis_conclusion"
	// ShapeFreeText applies no contract; the raw text is the answer.
	ShapeFreeText Shape = "free_text"
)

// ParseShape resolves a configured shape name. Empty means summary/details.
func ParseShape(s string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShapeSummaryDetails:
		return ShapeSummaryDetails, nil
	case ShapeSections:
		return ShapeSections, nil
	case ShapeFreeText:
		return ShapeFreeText, nil
	default:
		return "", eris.Errorf("answer: unknown shape %q", s)
	}
}

// ErrUnrecoverable means no non-empty answer could be recovered from the text.
var ErrUnrecoverable = eris.New("answer: response could not be interpreted")

// Interpretation is the structured form of one model response.
type Interpretation struct {
	Summary string
	Details string
	// Validation is set by the section contract.
	Validation  *model.ValidationResult
	Reformatted bool
	Warnings    []string
}

// Contract interprets raw model text in one answer shape.
type Contract interface {
	Shape() Shape
	// Instructions is the formatting paragraph appended to prompts.
	Instructions() string
	Interpret(raw string) (Interpretation, error)
}

// ContractFor returns the contract for shape. v is used by the section
// contract; nil means NewValidator(DefaultRules()).
func ContractFor(shape Shape, v *Validator) (Contract, error) {
	switch shape {
	case ShapeSummaryDetails, "":
		return SummaryDetailsContract{}, nil
	case ShapeSections:
		return NewSectionContract(v), nil
	case ShapeFreeText:
		return FreeTextContract{}, nil
	default:
		return nil, eris.Errorf("answer: unknown shape %q", shape)
	}
}

// Instructions returns the formatting instructions for shape.
func Instructions(shape Shape) string {
	switch shape {
	case ShapeSections:
		return sectionInstructions
	case ShapeFreeText:
		return ""
	default:
		return summaryDetailsInstructions
	}
}

const summaryDetailsInstructions = `Format your answer in two parts:
Summary: one or two sentences that directly answer the question.
Details: the supporting evidence, with figures and the documents they come from.
If the documents do not contain the information, say so plainly in the summary.`

const sectionInstructions = `Format your answer in exactly three sections:
Source: the document name and the page, sheet, or cell the evidence comes from.
Analysis: 3-7 bullet points of specific findings with figures, time periods, and trends.
Conclusion: at most two sentences with the key figure.
Do not write generic statements such as "analysis was performed on available documents".`

// SummaryDetailsContract parses the Summary/Details shape.
type SummaryDetailsContract struct{}

func (SummaryDetailsContract) Shape() Shape { return ShapeSummaryDetails }

func (SummaryDetailsContract) Instructions() string { return summaryDetailsInstructions }

// Interpret fails with ErrUnrecoverable only when both fields come out empty.
func (SummaryDetailsContract) Interpret(raw string) (Interpretation, error) {
	summary, details := ParseSummaryDetails(raw)
	if summary == "" && details == "" {
		return Interpretation{}, ErrUnrecoverable
	}
	return Interpretation{Summary: summary, Details: details}, nil
}

// SectionContract validates the Source/Analysis/Conclusion shape and falls
// back to Reformat when strict validation fails.
type SectionContract struct {
	validator *Validator
}

// NewSectionContract creates a SectionContract. A nil validator uses the
// default rules.
func NewSectionContract(v *Validator) SectionContract {
	if v == nil {
		v = NewValidator(DefaultRules())
	}
	return SectionContract{validator: v}
}

func (SectionContract) Shape() Shape { return ShapeSections }

func (SectionContract) Instructions() string { return sectionInstructions }

// WarnStillInvalid marks an answer that failed validation even after
// reformatting, such as one whose Analysis is boilerplate.
const WarnStillInvalid = "answer is still invalid after reformatting"

// Interpret returns the conclusion as summary and the rendered sections as
// details. Invalid text is reformatted; the reformatted text is validated
// again and the original errors are carried as warnings. When the reformatted
// text is still invalid, WarnStillInvalid and its errors are added too.
func (c SectionContract) Interpret(raw string) (Interpretation, error) {
	res := c.validator.Validate(raw)
	if res.IsValid {
		return Interpretation{
			Summary:    res.Sections.Conclusion,
			Details:    Render(res.Sections),
			Validation: &res,
			Warnings:   res.Warnings,
		}, nil
	}

	text, sections, err := Reformat(raw)
	if err != nil {
		return Interpretation{}, err
	}
	again := c.validator.Validate(text)

	warnings := make([]string, 0, len(res.Errors)+len(again.Warnings))
	for _, e := range res.Errors {
		warnings = append(warnings, "reformatted: "+e)
	}
	warnings = append(warnings, again.Warnings...)
	if !again.IsValid {
		warnings = append(warnings, WarnStillInvalid)
		for _, e := range again.Errors {
			warnings = append(warnings, "unresolved: "+e)
		}
	}

	return Interpretation{
		Summary:     sections.Conclusion,
		Details:     text,
		Validation:  &again,
		Reformatted: true,
		Warnings:    warnings,
	}, nil
}

// FreeTextContract accepts any non-empty text unchanged.
type FreeTextContract struct{}

func (FreeTextContract) Shape() Shape { return ShapeFreeText }

func (FreeTextContract) Instructions() string { return "" }

func (FreeTextContract) Interpret(raw string) (Interpretation, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Interpretation{}, ErrUnrecoverable
	}
	return Interpretation{Summary: firstParagraph(text), Details: text}, nil
}
