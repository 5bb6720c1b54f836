package budget

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/sells-group/diligence-cli/internal/model"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "been": true, "have": true, "has": true, "had": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"how": true, "does": true, "which": true, "where": true, "when": true,
	"who": true, "why": true, "can": true, "will": true, "not": true,
	"company": true, "its": true, "their": true, "there": true, "any": true,
	"describe": true, "provide": true, "about": true, "into": true,
}

// fold case-folds s for keyword matching. A Caser is stateful, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// questionKeywords returns folded words of 3+ characters from text,
// excluding stop words.
func questionKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(fold(text)) {
		w = strings.Trim(w, "?.,!;:'\"()[]{}")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// keywordsFor merges question words with the category and default tables.
func (r Rules) keywordsFor(q model.Question) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(words ...string) {
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w == "" || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	add(questionKeywords(q.Text)...)
	add(questionKeywords(q.Description)...)
	add(r.CategoryKeywords[strings.ToLower(q.Category)]...)
	add(r.DefaultKeywords...)
	return out
}

// countHits counts keyword occurrences in already-folded text.
func countHits(folded string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		n += strings.Count(folded, kw)
	}
	return n
}

// floorBoundary moves i back to the start of a rune.
func floorBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	if i <= 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// ceilBoundary moves i forward to the start of a rune.
func ceilBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	if i > len(s) {
		return len(s)
	}
	return i
}

// cutAt truncates s to at most n bytes on a rune boundary.
func cutAt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:floorBoundary(s, n)]
}
