package answer

import (
	"regexp"
	"strings"

	"github.com/sells-group/diligence-cli/internal/model"
)

// sectionMarker matches "Source:", "**Analysis:**", "## Conclusion" and
// similar at the start of a line. A bare word needs a colon or to end the line.
var sectionMarker = regexp.MustCompile(`(?im)^[ \t>]*(?:#{1,6}[ \t]*)?[*_]*(source|analysis|conclusion)s?[*_]*[ \t]*(?::|$)[*_]*[ \t]*`)

// ParseSections extracts the Source, Analysis and Conclusion sections. Text
// before the first marker is ignored; a repeated marker keeps the first
// occurrence.
func ParseSections(text string) model.Sections {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	matches := sectionMarker.FindAllStringSubmatchIndex(text, -1)

	var out model.Sections
	seen := make(map[string]bool, 3)
	for i, m := range matches {
		name := strings.ToLower(text[m[2]:m[3]])
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		body := strings.TrimSpace(text[m[1]:end])
		switch name {
		case "source":
			out.Source = body
		case "analysis":
			out.Analysis = body
		case "conclusion":
			out.Conclusion = body
		}
	}
	return out
}

// placeholder fills a section that could not be recovered.
const placeholder = "Not stated in the response."

// Render writes sections in the canonical three-heading form. Empty sections
// are rendered with a placeholder so all three headings are always present.
func Render(s model.Sections) string {
	var b strings.Builder
	write := func(heading, body string) {
		if body == "" {
			body = placeholder
		}
		b.WriteString(heading)
		b.WriteString(":\n")
		b.WriteString(body)
	}
	write("Source", s.Source)
	b.WriteString("\n\n")
	write("Analysis", s.Analysis)
	b.WriteString("\n\n")
	write("Conclusion", s.Conclusion)
	return b.String()
}
