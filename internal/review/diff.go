package review

import (
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sells-group/diligence-cli/internal/model"
)

// StageDiff is the line diff between two stage outputs.
type StageDiff struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	// Unified is the diff in unified format with one line of context.
	Unified string `json:"unified,omitempty"`
}

// Changed reports whether the outputs differ in any line.
func (d StageDiff) Changed() bool { return len(d.Added) > 0 || len(d.Removed) > 0 }

// Diff compares the outputs of a and b line by line, ignoring blank lines and
// surrounding whitespace. Added and Removed keep the order the lines appear in.
func Diff(a, b model.StageResult) StageDiff {
	from := lines(a.OutputText)
	to := lines(b.OutputText)

	d := StageDiff{From: a.ID, To: b.ID, Added: []string{}, Removed: []string{}}
	m := difflib.NewMatcher(from, to)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'd':
			d.Removed = append(d.Removed, from[op.I1:op.I2]...)
		case 'i':
			d.Added = append(d.Added, to[op.J1:op.J2]...)
		case 'r':
			d.Removed = append(d.Removed, from[op.I1:op.I2]...)
			d.Added = append(d.Added, to[op.J1:op.J2]...)
		}
	}
	if !d.Changed() {
		return d
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withEOL(from),
		B:        withEOL(to),
		FromFile: label(a),
		ToFile:   label(b),
		Context:  1,
	})
	if err == nil {
		d.Unified = unified
	}
	return d
}

func label(r model.StageResult) string {
	if r.StageName == "" {
		return r.ID
	}
	name := r.StageName
	if r.Domain != "" {
		name += "/" + r.Domain
	}
	return name + "#" + strconv.Itoa(r.Iteration)
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func withEOL(ls []string) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l + "\n"
	}
	return out
}
