package answer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/model"
)

var (
	bulletLine   = regexp.MustCompile(`(?m)^[ \t]*(?:[-*•]|\d{1,2}[.)])[ \t]+\S`)
	digit        = regexp.MustCompile(`\d`)
	yearPattern  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	sentenceEnd  = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	fileName     = regexp.MustCompile(`(?i)\b[\w-]+\.(?:pdf|xlsx|xls|csv|docx|doc|pptx|ppt|txt|md)\b`)
	cellRef      = regexp.MustCompile(`(?i)\bcells?\s+[A-Z]{1,3}\d{1,6}\b|\brows?\s+\d+|\b[A-Z]{1,3}\d{1,6}:[A-Z]{1,3}\d{1,6}\b|![A-Z]{1,3}\d{1,6}\b`)
	pageRef      = regexp.MustCompile(`(?i)\bp{1,2}\.\s*\d`)
	citationWord = regexp.MustCompile(`[\p{L}\p{N}.]+`)
)

// Validator checks text against the Source/Analysis/Conclusion contract. It is
// stateless after construction and safe for concurrent use.
type Validator struct {
	rules       Rules
	boilerplate []*regexp.Regexp
}

// NewValidator compiles rules. Boilerplate patterns that fail to compile are
// logged and skipped.
func NewValidator(rules Rules) *Validator {
	v := &Validator{rules: rules}
	for _, p := range rules.Boilerplate {
		re, err := compileAll([]string{p})
		if err != nil {
			zap.L().Warn("answer: skipping boilerplate pattern", zap.String("pattern", p), zap.Error(err))
			continue
		}
		v.boilerplate = append(v.boilerplate, re...)
	}
	return v
}

// Validate parses text and runs the three section checks independently.
// IsValid is true iff there are no errors; warnings never affect validity.
func (v *Validator) Validate(text string) model.ValidationResult {
	s := ParseSections(text)
	res := model.ValidationResult{
		Sections: s,
		Errors:   []string{},
		Warnings: []string{},
	}

	v.checkSource(s.Source, &res)
	v.checkAnalysis(s.Analysis, &res)
	v.checkConclusion(s.Conclusion, &res)

	res.Citation = v.ScoreCitation(s.Source)
	res.IsValid = len(res.Errors) == 0
	return res
}

func (v *Validator) checkSource(src string, res *model.ValidationResult) {
	if src == "" {
		res.Errors = append(res.Errors, "Source section is missing or empty")
		return
	}
	if !v.namesDocument(src) {
		res.Warnings = append(res.Warnings, "Source does not name a document type")
	}
	if !v.hasLocator(src) {
		res.Warnings = append(res.Warnings, "Source does not cite a page, sheet, or cell")
	}
}

func (v *Validator) checkAnalysis(analysis string, res *model.ValidationResult) {
	if analysis == "" {
		res.Errors = append(res.Errors, "Analysis section is missing or empty")
		return
	}
	for _, re := range v.boilerplate {
		if re.MatchString(analysis) {
			res.Errors = append(res.Errors, "Analysis contains generic boilerplate instead of specific findings")
			break
		}
	}

	n := len(bulletLine.FindAllStringIndex(analysis, -1))
	if n < v.rules.MinBullets || n > v.rules.MaxBullets {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Analysis has %d bullet points, expected %d-%d", n, v.rules.MinBullets, v.rules.MaxBullets))
	}
	if !digit.MatchString(analysis) {
		res.Warnings = append(res.Warnings, "Analysis contains no numeric figures")
	}
	if !yearPattern.MatchString(analysis) && !containsKeyword(analysis, v.rules.TimeKeywords) {
		res.Warnings = append(res.Warnings, "Analysis contains no time reference")
	}
	if !containsKeyword(analysis, v.rules.InsightKeywords) {
		res.Warnings = append(res.Warnings, "Analysis contains no trend or comparison language")
	}
}

func (v *Validator) checkConclusion(conclusion string, res *model.ValidationResult) {
	if conclusion == "" {
		res.Errors = append(res.Errors, "Conclusion section is missing or empty")
		return
	}
	if n := countSentences(conclusion); n > v.rules.MaxConclusionSentences {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Conclusion has %d sentences, expected at most %d", n, v.rules.MaxConclusionSentences))
	}
	if !digit.MatchString(conclusion) {
		res.Warnings = append(res.Warnings, "Conclusion contains no numeric figure")
	}
}

// ScoreCitation grades a Source section: high when it names a document, a
// locator and a specific cell or row; medium with a document and a locator;
// low otherwise.
func (v *Validator) ScoreCitation(source string) model.CitationQuality {
	if strings.TrimSpace(source) == "" {
		return model.CitationLow
	}
	doc := v.namesDocument(source)
	loc := v.hasLocator(source)
	cell := cellRef.MatchString(source)
	switch {
	case doc && loc && cell:
		return model.CitationHigh
	case doc && loc:
		return model.CitationMedium
	default:
		return model.CitationLow
	}
}

func (v *Validator) namesDocument(s string) bool {
	return fileName.MatchString(s) || containsKeyword(s, v.rules.DocumentKeywords)
}

func (v *Validator) hasLocator(s string) bool {
	return cellRef.MatchString(s) || pageRef.MatchString(s) || containsKeyword(s, v.rules.LocatorKeywords)
}

// containsKeyword reports whether any keyword occurs in s. Keywords made only
// of letters and digits must match whole words; others match as substrings.
func containsKeyword(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	var words map[string]bool
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if !isWord(kw) {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		if words == nil {
			words = make(map[string]bool)
			for _, w := range citationWord.FindAllString(lower, -1) {
				words[strings.Trim(w, ".")] = true
			}
		}
		if words[kw] {
			return true
		}
	}
	return false
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func countSentences(s string) int {
	n := 0
	for _, part := range sentenceEnd.Split(strings.TrimSpace(s), -1) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}
