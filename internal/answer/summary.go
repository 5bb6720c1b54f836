package answer

import (
	"regexp"
	"strings"
)

var (
	// summaryMarker and detailsMarker match a marker at the start of a line,
	// optionally as a markdown heading or in bold: "Summary:", "## Details",
	// "**Summary:**".
	summaryMarker = regexp.MustCompile(`(?im)^[ \t>]*(?:#{1,6}[ \t]*)?[*_]*summary[*_]*[ \t]*(?::|$)[*_]*[ \t]*`)
	detailsMarker = regexp.MustCompile(`(?im)^[ \t>]*(?:#{1,6}[ \t]*)?[*_]*details[*_]*[ \t]*(?::|$)[*_]*[ \t]*`)

	leftoverMarker = regexp.MustCompile(`(?im)^[ \t>]*(?:#{1,6}[ \t]*)?[*_]*(?:summary|details)[*_]*[ \t]*:[*_]*[ \t]*`)
	headingMarker  = regexp.MustCompile(`(?im)^[ \t]*#{1,6}[ \t]*(?:summary|details)[ \t]*$`)
	boldStars      = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	boldUnders     = regexp.MustCompile(`__([^_\n]+?)__`)
	italicStars    = regexp.MustCompile(`\*([^*\s\n][^*\n]*?)\*`)
	italicUnders   = regexp.MustCompile(`(^|[\s(])_([^_\s\n][^_\n]*?)_`)
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
)

// ParseSummaryDetails splits text into a summary and details.
//
// When both markers are present the text after each marker, up to the other,
// forms that field. With only a Details marker the text before it is the
// summary. With only a Summary marker, or no markers, the first paragraph is
// the summary and the rest is details. Both fields are passed through Clean.
func ParseSummaryDetails(text string) (summary, details string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	s := summaryMarker.FindStringIndex(text)
	d := detailsMarker.FindStringIndex(text)

	switch {
	case s != nil && d != nil && s[0] < d[0]:
		summary = text[s[1]:d[0]]
		details = text[d[1]:]
	case s != nil && d != nil:
		details = text[d[1]:s[0]]
		summary = text[s[1]:]
	case d != nil:
		summary = text[:d[0]]
		details = text[d[1]:]
	case s != nil:
		summary, details = splitFirstParagraph(text[s[1]:])
	default:
		summary, details = splitFirstParagraph(text)
	}

	summary, details = Clean(summary), Clean(details)
	if summary == "" && details != "" {
		summary, details = splitFirstParagraph(details)
		summary, details = Clean(summary), Clean(details)
	}
	return summary, details
}

// Clean strips leftover Summary/Details marker tokens and markdown emphasis.
// Clean(Clean(s)) == Clean(s) for every s.
func Clean(s string) string {
	for {
		next := cleanPass(s)
		if next == s {
			return s
		}
		s = next
	}
}

// cleanPass only ever deletes characters, so repeating it reaches a fixpoint.
func cleanPass(s string) string {
	s = headingMarker.ReplaceAllString(s, "")
	s = leftoverMarker.ReplaceAllString(s, "")
	s = boldStars.ReplaceAllString(s, "${1}")
	s = boldUnders.ReplaceAllString(s, "${1}")
	s = italicStars.ReplaceAllString(s, "${1}")
	s = italicUnders.ReplaceAllString(s, "${1}${2}")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}

func splitFirstParagraph(text string) (string, string) {
	text = strings.TrimSpace(text)
	loc := paragraphBreak.FindStringIndex(text)
	if loc == nil {
		return text, ""
	}
	return text[:loc[0]], text[loc[1]:]
}

func firstParagraph(text string) string {
	p, _ := splitFirstParagraph(text)
	return p
}
