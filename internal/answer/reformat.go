package answer

import (
	"regexp"
	"slices"
	"strings"

	"github.com/sells-group/diligence-cli/internal/model"
)

var bulletPrefix = regexp.MustCompile(`^[ \t]*(?:[-*•]|\d{1,2}[.)])[ \t]+`)

// maxFallbackBullets caps the analysis bullets taken from unstructured text.
const maxFallbackBullets = 7

// Reformat reconstructs the three-section shape from arbitrary text. Sections
// that already parse are kept. Otherwise the first usable paragraph becomes
// the source, the longest bullet-like lines (or sentences) the analysis, and
// the last one or two sentences the conclusion. It returns ErrUnrecoverable
// only when no section could be produced.
func Reformat(text string) (string, model.Sections, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	s := ParseSections(text)
	body := stripEmphasis(unmarkedText(text))

	if s.Source == "" {
		s.Source = firstUsableParagraph(body)
	}
	if s.Analysis == "" {
		s.Analysis = fallbackAnalysis(body)
	}
	if s.Conclusion == "" {
		s.Conclusion = lastSentences(body)
	}

	if s.Empty() {
		return "", s, ErrUnrecoverable
	}
	return Render(s), s, nil
}

// unmarkedText returns text with recognized section markers removed, so the
// fallback heuristics see only content.
func unmarkedText(text string) string {
	return strings.TrimSpace(sectionMarker.ReplaceAllString(text, ""))
}

func stripEmphasis(s string) string {
	for {
		next := boldStars.ReplaceAllString(s, "${1}")
		next = boldUnders.ReplaceAllString(next, "${1}")
		next = strings.ReplaceAll(next, "**", "")
		if next == s {
			return s
		}
		s = next
	}
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// firstUsableParagraph prefers a paragraph that is not a bullet list.
func firstUsableParagraph(text string) string {
	ps := paragraphs(text)
	for _, p := range ps {
		if !bulletPrefix.MatchString(p) {
			return p
		}
	}
	if len(ps) > 0 {
		return ps[0]
	}
	return ""
}

func fallbackAnalysis(text string) string {
	type item struct {
		pos  int
		text string
	}
	var items []item
	for i, line := range strings.Split(text, "\n") {
		if bulletPrefix.MatchString(line) {
			if t := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, "")); t != "" {
				items = append(items, item{i, t})
			}
		}
	}
	if len(items) == 0 {
		for i, sent := range sentences(text) {
			items = append(items, item{i, sent})
		}
	}
	if len(items) == 0 {
		return ""
	}

	// Longest first, then back to reading order.
	slices.SortStableFunc(items, func(a, b item) int { return len(b.text) - len(a.text) })
	items = items[:min(len(items), maxFallbackBullets)]
	slices.SortFunc(items, func(a, b item) int { return a.pos - b.pos })

	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it.text
	}
	return strings.Join(lines, "\n")
}

func sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		start := 0
		for _, loc := range sentenceEnd.FindAllStringIndex(line, -1) {
			out = appendSentence(out, line[start:loc[1]])
			start = loc[1]
		}
		out = appendSentence(out, line[start:])
	}
	return out
}

// appendSentence keeps sentences with at least one letter or digit.
func appendSentence(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" && strings.ContainsFunc(s, isAlnum) {
		out = append(out, s)
	}
	return out
}

// lastSentences returns the final sentence, or the final two when the last
// one is short.
func lastSentences(text string) string {
	ss := sentences(text)
	switch {
	case len(ss) == 0:
		return ""
	case len(ss) == 1 || len(ss[len(ss)-1]) >= 60:
		return ss[len(ss)-1]
	default:
		return ss[len(ss)-2] + " " + ss[len(ss)-1]
	}
}

func isAlnum(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') || r > 127
}
