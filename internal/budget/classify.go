package budget

import (
	"path/filepath"
	"strings"

	"github.com/sells-group/diligence-cli/internal/model"
)

// classifyScanChars bounds how much of a document is inspected for content
// phrases.
const classifyScanChars = 4000

var defaultRules = DefaultRules()

// Classify assigns a coarse kind to doc using the default rules.
func Classify(doc model.Document) model.DocumentKind {
	return classify(doc, defaultRules)
}

// Classify assigns a coarse kind to doc using the budgeter's rules.
func (b *Budgeter) Classify(doc model.Document) model.DocumentKind {
	return classify(doc, b.rules)
}

func classify(doc model.Document, r Rules) model.DocumentKind {
	name := fold(doc.Name)
	ext := strings.ToLower(filepath.Ext(doc.Name))

	head := doc.TextContent
	if len(head) > classifyScanChars {
		head = head[:floorBoundary(head, classifyScanChars)]
	}
	content := fold(head)

	if r.SheetDelimiter != nil && r.SheetDelimiter.MatchString(doc.TextContent) {
		return model.KindSpreadsheet
	}

	for _, rule := range r.Classifiers {
		for _, e := range rule.Extensions {
			if ext == strings.ToLower(e) {
				return rule.Kind
			}
		}
		if containsAny(name, rule.NameContains) || containsAny(content, rule.ContentContains) {
			return rule.Kind
		}
	}
	return model.KindGeneral
}

// relevance scores how useful a document kind is for a question category.
func (r Rules) relevance(kind model.DocumentKind, category string) int {
	for i, k := range r.CategoryKinds[strings.ToLower(category)] {
		if k == kind {
			// Earlier entries are preferred.
			return len(r.CategoryKinds[strings.ToLower(category)]) - i + 1
		}
	}
	if kind == model.KindGeneral {
		return 0
	}
	return 1
}

func containsAny(folded string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(folded, fold(p)) {
			return true
		}
	}
	return false
}
