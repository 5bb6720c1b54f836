package budget

import (
	"regexp"
	"sort"
	"strings"
)

// Segment is one named sheet of a sheet-delimited text export. Text starts
// with the delimiter line.
type Segment struct {
	Name string
	Text string
}

// ParseSegments splits text on the sheet delimiter. found is false when the
// text carries no delimiter at all; callers must then treat it as plain text.
// Text before the first delimiter becomes an unnamed segment.
func ParseSegments(text string, delim *regexp.Regexp) (segments []Segment, found bool) {
	if delim == nil {
		return nil, false
	}
	locs := delim.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil, false
	}

	if pre := strings.TrimSpace(text[:locs[0][0]]); pre != "" {
		segments = append(segments, Segment{Text: pre})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		var name string
		if len(loc) >= 4 && loc[2] >= 0 {
			name = strings.TrimSpace(text[loc[2]:loc[3]])
		}
		segments = append(segments, Segment{
			Name: name,
			Text: strings.TrimSpace(text[loc[0]:end]),
		})
	}
	return segments, true
}

const (
	segmentSeparator = "\n\n"
	segmentCut       = "\n[...]"
	// segmentScanChars bounds how much of a sheet body is searched for
	// priority keywords.
	segmentScanChars = 2000
)

// selectSegments fills limit with sheet text. Sheets matching the priority
// keywords are filled first. When the priority sheets are too small to
// justify the budget, the remainder is sampled round-robin across the other
// sheets in RoundRobinChunk pieces so every sheet is represented.
func (b *Budgeter) selectSegments(segs []Segment, limit int) string {
	if limit <= 0 || len(segs) == 0 {
		return ""
	}

	priority := make(map[int]int)
	for i, s := range segs {
		body := s.Text
		if len(body) > segmentScanChars {
			body = body[:floorBoundary(body, segmentScanChars)]
		}
		score := countHits(fold(s.Name), b.priority)*3 + countHits(fold(body), b.priority)
		if score > 0 {
			priority[i] = score
		}
	}

	var prio, rest []int
	prioTotal := 0
	for i := range segs {
		if _, ok := priority[i]; ok {
			prio = append(prio, i)
			prioTotal += len(segs[i].Text)
		} else {
			rest = append(rest, i)
		}
	}
	sort.SliceStable(prio, func(a, c int) bool { return priority[prio[a]] > priority[prio[c]] })

	// Reserve room for separators and cut markers so the assembled text
	// stays within limit.
	overhead := len(segs) * (len(segmentSeparator) + len(segmentCut))
	if overhead > limit/4 {
		overhead = limit / 4
	}
	remaining := limit - overhead

	taken := make([]int, len(segs))
	give := func(i, n int) {
		if n > remaining {
			n = remaining
		}
		if left := len(segs[i].Text) - taken[i]; n > left {
			n = left
		}
		if n > 0 {
			taken[i] += n
			remaining -= n
		}
	}

	for _, i := range prio {
		give(i, len(segs[i].Text))
	}

	if float64(prioTotal) >= b.rules.MinPriorityFraction*float64(limit) {
		for _, i := range rest {
			give(i, len(segs[i].Text))
		}
	} else {
		chunk := b.rules.RoundRobinChunk
		for remaining > 0 {
			progressed := false
			for _, i := range rest {
				if remaining <= 0 {
					break
				}
				if taken[i] < len(segs[i].Text) {
					give(i, chunk)
					progressed = true
				}
			}
			if !progressed {
				break
			}
		}
	}

	var parts []string
	for _, i := range append(prio, rest...) {
		if taken[i] == 0 {
			continue
		}
		t := segs[i].Text
		if taken[i] < len(t) {
			parts = append(parts, t[:floorBoundary(t, taken[i])]+segmentCut)
			continue
		}
		parts = append(parts, t)
	}
	return cutAt(strings.Join(parts, segmentSeparator), limit)
}
