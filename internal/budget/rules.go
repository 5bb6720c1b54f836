package budget

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/diligence-cli/internal/config"
	"github.com/sells-group/diligence-cli/internal/model"
)

// DefaultSheetDelimiter matches the sheet headers written by the document
// source when it renders a workbook to text.
const DefaultSheetDelimiter = `(?m)^=== Sheet: (.+?) ===[ \t]*$`

// Budget bounds the excerpt built for one question.
type Budget struct {
	MaxChars int
	MaxFiles int
}

// ModeBudget returns the fast or thorough budget from config. Unknown modes
// get the thorough budget.
func ModeBudget(cfg config.BudgetConfig, mode string) Budget {
	if mode == "fast" {
		return Budget{MaxChars: cfg.Fast.MaxChars, MaxFiles: cfg.Fast.MaxFiles}
	}
	return Budget{MaxChars: cfg.Thorough.MaxChars, MaxFiles: cfg.Thorough.MaxFiles}
}

// ClassifierRule assigns Kind to a document when any of its extensions,
// name fragments or content phrases match. Rules are evaluated in order.
type ClassifierRule struct {
	Kind            model.DocumentKind `yaml:"kind"`
	Extensions      []string           `yaml:"extensions"`
	NameContains    []string           `yaml:"name_contains"`
	ContentContains []string           `yaml:"content_contains"`
}

// Rules holds the keyword tables and window geometry used by the Budgeter.
type Rules struct {
	// CategoryKeywords maps a question category to the terms that mark a
	// window of text as relevant.
	CategoryKeywords map[string][]string
	// DefaultKeywords apply to every question.
	DefaultKeywords []string
	// SpreadsheetPriority ranks sheets; matching sheets fill the budget first.
	SpreadsheetPriority []string
	// CategoryKinds lists the document kinds most useful for a category.
	CategoryKinds  map[string][]model.DocumentKind
	Classifiers    []ClassifierRule
	SheetDelimiter *regexp.Regexp

	HeadChars           int
	TailChars           int
	WindowChars         int
	MinPriorityFraction float64
	RoundRobinChunk     int
	// MinShareChars is the smallest per-document share worth sending. Lower
	// ranked documents are dropped until every kept document gets at least this.
	MinShareChars int
}

// DefaultRules returns the built-in keyword tables and geometry.
func DefaultRules() Rules {
	return Rules{
		CategoryKeywords: map[string][]string{
			"financial": {"revenue", "arr", "mrr", "ebitda", "margin", "burn", "runway", "cash flow", "profit", "forecast"},
			"market":    {"market", "tam", "sam", "som", "competitor", "competition", "customer", "segment", "share"},
			"team":      {"founder", "ceo", "cto", "cfo", "team", "experience", "advisor", "hire", "headcount"},
			"legal":     {"litigation", "patent", "trademark", "agreement", "liability", "compliance", "license", "regulatory"},
			"product":   {"product", "roadmap", "technology", "platform", "feature", "architecture", "pipeline"},
			"traction":  {"customers", "users", "retention", "churn", "pipeline", "bookings", "growth", "cohort"},
		},
		DefaultKeywords:     []string{"revenue", "growth", "customer", "risk"},
		SpreadsheetPriority: []string{"financial", "cash flow", "kpi", "p&l", "income", "balance", "revenue", "metrics", "summary"},
		CategoryKinds: map[string][]model.DocumentKind{
			"financial": {model.KindFinancialStatement, model.KindSpreadsheet},
			"market":    {model.KindPitchDeck},
			"team":      {model.KindPitchDeck},
			"legal":     {model.KindLegal},
			"product":   {model.KindPitchDeck},
			"traction":  {model.KindSpreadsheet, model.KindPitchDeck},
		},
		Classifiers: []ClassifierRule{
			{
				Kind:       model.KindSpreadsheet,
				Extensions: []string{".xlsx", ".xls", ".csv", ".tsv"},
			},
			{
				Kind:            model.KindFinancialStatement,
				NameContains:    []string{"financial", "p&l", "income statement", "balance sheet", "audit"},
				ContentContains: []string{"balance sheet", "income statement", "statement of cash flows", "total liabilities"},
			},
			{
				Kind:            model.KindLegal,
				NameContains:    []string{"agreement", "contract", "nda", "term sheet", "bylaws", "charter"},
				ContentContains: []string{"hereinafter", "whereas", "governing law", "indemnif"},
			},
			{
				Kind:            model.KindPitchDeck,
				Extensions:      []string{".pptx", ".ppt", ".key"},
				NameContains:    []string{"deck", "pitch", "presentation", "investor"},
				ContentContains: []string{"our mission", "the problem", "the solution", "why now", "the ask"},
			},
		},
		SheetDelimiter:      regexp.MustCompile(DefaultSheetDelimiter),
		HeadChars:           4000,
		TailChars:           2000,
		WindowChars:         1500,
		MinPriorityFraction: 0.3,
		RoundRobinChunk:     1200,
		MinShareChars:       500,
	}
}

// WithConfig returns a copy of r with the geometry from cfg applied. Zero
// values in cfg leave the existing geometry unchanged.
func (r Rules) WithConfig(cfg config.BudgetConfig) Rules {
	if cfg.HeadChars > 0 {
		r.HeadChars = cfg.HeadChars
	}
	if cfg.TailChars > 0 {
		r.TailChars = cfg.TailChars
	}
	if cfg.WindowChars > 0 {
		r.WindowChars = cfg.WindowChars
	}
	if cfg.MinPriorityFraction > 0 {
		r.MinPriorityFraction = cfg.MinPriorityFraction
	}
	if cfg.RoundRobinChunk > 0 {
		r.RoundRobinChunk = cfg.RoundRobinChunk
	}
	return r
}

type rulesFile struct {
	CategoryKeywords    map[string][]string             `yaml:"category_keywords"`
	DefaultKeywords     []string                        `yaml:"default_keywords"`
	SpreadsheetPriority []string                        `yaml:"spreadsheet_priority"`
	CategoryKinds       map[string][]model.DocumentKind `yaml:"category_kinds"`
	Classifiers         []ClassifierRule                `yaml:"classifiers"`
	SheetDelimiter      string                          `yaml:"sheet_delimiter"`
}

// LoadRules reads a YAML override file and merges it over base. Category
// maps are merged per key; lists and the delimiter replace the base value
// when present.
func LoadRules(path string, base Rules) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "budget: read rules %s", path)
	}
	return ParseRules(data, base)
}

// ParseRules merges YAML rule overrides over base.
func ParseRules(data []byte, base Rules) (Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return base, eris.Wrap(err, "budget: parse rules")
	}

	out := base
	out.CategoryKeywords = mergeLists(base.CategoryKeywords, f.CategoryKeywords)
	out.CategoryKinds = mergeLists(base.CategoryKinds, f.CategoryKinds)
	if len(f.DefaultKeywords) > 0 {
		out.DefaultKeywords = f.DefaultKeywords
	}
	if len(f.SpreadsheetPriority) > 0 {
		out.SpreadsheetPriority = f.SpreadsheetPriority
	}
	if len(f.Classifiers) > 0 {
		out.Classifiers = f.Classifiers
	}
	if f.SheetDelimiter != "" {
		re, err := regexp.Compile(f.SheetDelimiter)
		if err != nil {
			return base, eris.Wrap(err, "budget: compile sheet delimiter")
		}
		out.SheetDelimiter = re
	}
	return out, nil
}

func mergeLists[T any](base, over map[string][]T) map[string][]T {
	out := make(map[string][]T, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
