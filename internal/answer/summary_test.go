package answer

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSummaryDetails(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantSummary string
		wantDetails string
	}{
		{
			name:        "plain markers",
			input:       "Summary: ARR is $12.3M.\n\nDetails: The deck shows **ARR** of $12.3M in 2024.",
			wantSummary: "ARR is $12.3M.",
			wantDetails: "The deck shows ARR of $12.3M in 2024.",
		},
		{
			name:        "bold markers",
			input:       "**Summary:** Revenue grew 40%.\n**Details:** *Strong* growth in _enterprise_ segment.",
			wantSummary: "Revenue grew 40%.",
			wantDetails: "Strong growth in enterprise segment.",
		},
		{
			name:        "heading markers",
			input:       "## Summary\nARR is 12.\n## Details\nFrom the deck.",
			wantSummary: "ARR is 12.",
			wantDetails: "From the deck.",
		},
		{
			name:        "case insensitive",
			input:       "SUMMARY: x\nDETAILS: y",
			wantSummary: "x",
			wantDetails: "y",
		},
		{
			name:        "details before summary",
			input:       "Details: from the model\nSummary: burn is $400k per month",
			wantSummary: "burn is $400k per month",
			wantDetails: "from the model",
		},
		{
			name:        "no markers",
			input:       "ARR is $12.3M.\n\nThe deck lists it on slide 4.\n\nSee appendix.",
			wantSummary: "ARR is $12.3M.",
			wantDetails: "The deck lists it on slide 4.\n\nSee appendix.",
		},
		{
			name:        "only details marker",
			input:       "ARR is 12.\nDetails: from the deck",
			wantSummary: "ARR is 12.",
			wantDetails: "from the deck",
		},
		{
			name:        "only summary marker",
			input:       "Summary: Team of 12.\n\nFounders previously at Stripe.",
			wantSummary: "Team of 12.",
			wantDetails: "Founders previously at Stripe.",
		},
		{
			name:        "empty summary promotes details",
			input:       "Summary:\nDetails: First point.\n\nSecond point.",
			wantSummary: "First point.",
			wantDetails: "Second point.",
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := ParseSummaryDetails(tt.input)
			assert.Equal(t, tt.wantSummary, s)
			assert.Equal(t, tt.wantDetails, d)
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"**bold** and *italic* and __under__ and _it_", "bold and italic and under and it"},
		{"Summary: **x**", "x"},
		{"***x***", "x"},
		{"## Details\nbody", "body"},
		{"snake_case_name stays", "snake_case_name stays"},
		{"2 * 3 = 6", "2 * 3 = 6"},
		{"  padded  ", "padded"},
		{"- item one\n- item two", "- item one\n- item two"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.input), tt.input)
	}
}

func TestClean_Idempotent(t *testing.T) {
	pieces := []string{
		"*", "**", "_", "__", "#", "## ", ":", " ", "\n", "\n\n",
		"Summary", "summary:", "Details", "DETAILS:", "ARR", "$12.3M", "a", "1", "(", ">",
	}
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		var b strings.Builder
		n := rng.IntN(24)
		for j := 0; j < n; j++ {
			b.WriteString(pieces[rng.IntN(len(pieces))])
		}
		in := b.String()
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}
