package answer

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules are the keyword tables and thresholds used by the Validator.
type Rules struct {
	DocumentKeywords []string `yaml:"document_keywords"`
	LocatorKeywords  []string `yaml:"locator_keywords"`
	TimeKeywords     []string `yaml:"time_keywords"`
	InsightKeywords  []string `yaml:"insight_keywords"`
	// Boilerplate patterns mark evasive non-answers in the Analysis section.
	Boilerplate []string `yaml:"boilerplate"`

	MinBullets             int `yaml:"min_bullets"`
	MaxBullets             int `yaml:"max_bullets"`
	MaxConclusionSentences int `yaml:"max_conclusion_sentences"`
}

// DefaultRules returns the built-in validation tables.
func DefaultRules() Rules {
	return Rules{
		DocumentKeywords: []string{
			"pitch deck", "deck", "presentation", "financial statement", "financials",
			"income statement", "balance sheet", "cash flow", "spreadsheet", "workbook",
			"model", "memo", "report", "agreement", "contract", "cap table", "filing",
			"data room", ".pdf", ".xlsx", ".csv", ".docx",
		},
		LocatorKeywords: []string{
			"page", "pages", "slide", "sheet", "tab", "cell", "row", "column",
			"section", "appendix", "exhibit", "schedule", "line",
		},
		TimeKeywords: []string{
			"year", "quarter", "month", "annual", "annually", "monthly", "ytd", "yoy",
			"fy", "ttm", "ltm", "q1", "q2", "q3", "q4", "h1", "h2",
			"january", "february", "march", "april", "may", "june", "july",
			"august", "september", "october", "november", "december",
		},
		InsightKeywords: []string{
			"growth", "grew", "grow", "increase", "increased", "decrease", "decreased",
			"decline", "declined", "trend", "compared", "comparison", "versus", "vs",
			"higher", "lower", "improve", "improved", "outpace", "exceed", "margin",
			"ratio", "share", "relative", "benchmark", "cagr",
		},
		Boilerplate: []string{
			`analysis (?:was|were|has been|have been) (?:performed|conducted|carried out|done) (?:on|using|across) (?:the )?(?:available|provided|uploaded|supplied) (?:documents|files|materials|data)`,
			`based on (?:the )?(?:available|provided) (?:documents|information),? (?:an )?analysis (?:was|were) (?:performed|conducted)`,
			`(?:the )?documents (?:were|have been) (?:reviewed|analyzed|analysed) (?:thoroughly|carefully)?\.?$`,
		},
		MinBullets:             3,
		MaxBullets:             7,
		MaxConclusionSentences: 2,
	}
}

// LoadRules reads a YAML rules file. Lists in the file replace the defaults;
// zero thresholds keep them.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "answer: read rules %s", path)
	}
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, eris.Wrapf(err, "answer: parse rules %s", path)
	}

	r := DefaultRules()
	if len(file.DocumentKeywords) > 0 {
		r.DocumentKeywords = file.DocumentKeywords
	}
	if len(file.LocatorKeywords) > 0 {
		r.LocatorKeywords = file.LocatorKeywords
	}
	if len(file.TimeKeywords) > 0 {
		r.TimeKeywords = file.TimeKeywords
	}
	if len(file.InsightKeywords) > 0 {
		r.InsightKeywords = file.InsightKeywords
	}
	if len(file.Boilerplate) > 0 {
		r.Boilerplate = file.Boilerplate
	}
	if file.MinBullets > 0 {
		r.MinBullets = file.MinBullets
	}
	if file.MaxBullets > 0 {
		r.MaxBullets = file.MaxBullets
	}
	if file.MaxConclusionSentences > 0 {
		r.MaxConclusionSentences = file.MaxConclusionSentences
	}
	if _, err := compileAll(r.Boilerplate); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?im)" + p)
		if err != nil {
			return nil, eris.Wrapf(err, "answer: compile pattern %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}
