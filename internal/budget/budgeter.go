// Package budget selects and truncates document text into a bounded context
// excerpt for a single question.
package budget

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/diligence-cli/internal/model"
)

const (
	gapMarker    = "\n[...]\n"
	docSeparator = "\n\n"
)

// Budgeter builds ContextBundles. It is safe for concurrent use; documents
// are only read.
type Budgeter struct {
	rules    Rules
	priority []string
}

// New creates a Budgeter. Zero geometry values fall back to DefaultRules.
func New(rules Rules) *Budgeter {
	def := DefaultRules()
	if rules.SheetDelimiter == nil {
		rules.SheetDelimiter = def.SheetDelimiter
	}
	if rules.HeadChars <= 0 {
		rules.HeadChars = def.HeadChars
	}
	if rules.TailChars <= 0 {
		rules.TailChars = def.TailChars
	}
	if rules.WindowChars <= 0 {
		rules.WindowChars = def.WindowChars
	}
	if rules.RoundRobinChunk <= 0 {
		rules.RoundRobinChunk = def.RoundRobinChunk
	}
	if rules.MinShareChars <= 0 {
		rules.MinShareChars = def.MinShareChars
	}

	priority := make([]string, 0, len(rules.SpreadsheetPriority))
	for _, p := range rules.SpreadsheetPriority {
		if p = fold(strings.TrimSpace(p)); p != "" {
			priority = append(priority, p)
		}
	}
	return &Budgeter{rules: rules, priority: priority}
}

type rankedDoc struct {
	doc   model.Document
	kind  model.DocumentKind
	score int
}

// Select builds the context excerpt for q from docs within bud.
//
// The excerpt never exceeds bud.MaxChars and Truncated is set whenever any
// source text was left out, including whole documents beyond MaxFiles. When
// no document has usable text the bundle is marked NoContent and the excerpt
// is empty.
func (b *Budgeter) Select(docs []model.Document, q model.Question, bud Budget) model.ContextBundle {
	bundle := model.ContextBundle{QuestionID: q.ID}

	var usable []model.Document
	for _, d := range docs {
		if strings.TrimSpace(d.TextContent) != "" {
			usable = append(usable, d)
		}
	}
	if len(usable) == 0 {
		bundle.NoContent = true
		return bundle
	}
	if bud.MaxChars <= 0 {
		bundle.NoContent = true
		bundle.Truncated = true
		return bundle
	}

	keywords := b.rules.keywordsFor(q)
	ranked := b.rank(usable, q.Category, keywords)

	truncated := false
	if bud.MaxFiles > 0 && len(ranked) > bud.MaxFiles {
		ranked = ranked[:bud.MaxFiles]
		truncated = true
	}
	for len(ranked) > 1 && available(ranked, bud.MaxChars)/len(ranked) < b.rules.MinShareChars {
		ranked = ranked[:len(ranked)-1]
		truncated = true
	}

	limits := allocate(ranked, available(ranked, bud.MaxChars))
	parts := make([]string, 0, len(ranked))
	for i, rd := range ranked {
		body, cut := b.excerpt(rd.doc.TextContent, keywords, limits[i])
		if cut {
			truncated = true
		}
		if body == "" {
			continue
		}
		parts = append(parts, docHeader(rd.doc)+body)
		bundle.SourceDocumentIDs = append(bundle.SourceDocumentIDs, rd.doc.ID)
	}

	excerpt := strings.Join(parts, docSeparator)
	if len(excerpt) > bud.MaxChars {
		excerpt = cutAt(excerpt, bud.MaxChars)
		truncated = true
	}
	bundle.Excerpt = excerpt
	bundle.Truncated = truncated
	if excerpt == "" {
		bundle.NoContent = true
		bundle.SourceDocumentIDs = nil
	}
	return bundle
}

func docHeader(d model.Document) string {
	return fmt.Sprintf("### Document: %s\n", d.Name)
}

// available is the character budget left for document bodies once headers
// and separators are paid for.
func available(ranked []rankedDoc, maxChars int) int {
	n := maxChars - (len(ranked)-1)*len(docSeparator)
	for _, rd := range ranked {
		n -= len(docHeader(rd.doc))
	}
	if n < 0 {
		return 0
	}
	return n
}

// rank orders documents by kind relevance to the category, then keyword hits.
// Ties keep the caller's order.
func (b *Budgeter) rank(docs []model.Document, category string, keywords []string) []rankedDoc {
	out := make([]rankedDoc, len(docs))
	for i, d := range docs {
		kind := classify(d, b.rules)
		hits := countHits(fold(d.TextContent), keywords)
		if hits > 50 {
			hits = 50
		}
		out[i] = rankedDoc{doc: d, kind: kind, score: b.rules.relevance(kind, category)*10 + hits}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// allocate splits total across documents. Documents shorter than an equal
// share keep their full length and the surplus goes to the longer ones.
func allocate(ranked []rankedDoc, total int) []int {
	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, c int) bool {
		return len(ranked[order[a]].doc.TextContent) < len(ranked[order[c]].doc.TextContent)
	})

	limits := make([]int, len(ranked))
	remaining := total
	for k, idx := range order {
		share := remaining / (len(order) - k)
		if l := len(ranked[idx].doc.TextContent); l < share {
			share = l
		}
		limits[idx] = share
		remaining -= share
	}
	return limits
}

// excerpt fits one document's text into limit. cut reports whether any text
// was left out.
func (b *Budgeter) excerpt(text string, keywords []string, limit int) (body string, cut bool) {
	if len(text) <= limit {
		return text, false
	}
	if limit <= 0 {
		return "", true
	}
	if segs, ok := ParseSegments(text, b.rules.SheetDelimiter); ok {
		return b.selectSegments(segs, limit), true
	}
	return b.windowed(text, keywords, limit), true
}

type window struct {
	start, end int
	hits       int
}

// windowed keeps a fixed head and tail of text and, between them, only the
// fixed-size windows that contain a keyword. The highest-scoring windows are
// kept when they do not all fit. Omitted stretches are marked with [...].
func (b *Budgeter) windowed(text string, keywords []string, limit int) string {
	head := min(b.rules.HeadChars, limit/3)
	tail := min(b.rules.TailChars, limit/3)

	headEnd := floorBoundary(text, head)
	tailStart := ceilBoundary(text, len(text)-tail)
	if tailStart < headEnd {
		tailStart = headEnd
	}

	var candidates []window
	for start := headEnd; start < tailStart; {
		end := floorBoundary(text, min(start+b.rules.WindowChars, tailStart))
		if end <= start {
			end = ceilBoundary(text, start+1)
		}
		if hits := countHits(fold(text[start:end]), keywords); hits > 0 {
			candidates = append(candidates, window{start: start, end: end, hits: hits})
		}
		start = end
	}

	budget := limit - headEnd - (len(text) - tailStart) - len(gapMarker)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].hits > candidates[j].hits })
	var kept []window
	for _, w := range candidates {
		cost := w.end - w.start + len(gapMarker)
		if cost > budget {
			continue
		}
		kept = append(kept, w)
		budget -= cost
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	var sb strings.Builder
	sb.WriteString(text[:headEnd])
	prev := headEnd
	for _, w := range kept {
		if w.start != prev {
			sb.WriteString(gapMarker)
		}
		sb.WriteString(text[w.start:w.end])
		prev = w.end
	}
	if tailStart != prev {
		sb.WriteString(gapMarker)
	}
	sb.WriteString(text[tailStart:])
	return cutAt(sb.String(), limit)
}
