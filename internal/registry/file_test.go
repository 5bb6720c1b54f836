package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQuestionsFromFile(t *testing.T) {
	want := []model.Question{
		{ID: "arr", Text: "What is current ARR?", Category: "financial"},
		{ID: "team", Text: "Who are the founders?", Description: "Prior exits matter.", Category: "team"},
	}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml list",
			file: "questions.yaml",
			content: `- id: arr
  text: What is current ARR?
  category: financial
- id: team
  text: Who are the founders?
  description: Prior exits matter.
  category: team
`,
		},
		{
			name: "yaml document",
			file: "questions.yml",
			content: `questions:
  - id: arr
    text: "  What is current ARR?  "
    category: financial
  - id: team
    text: Who are the founders?
    description: Prior exits matter.
    category: team
`,
		},
		{
			name: "json",
			file: "questions.json",
			content: `[{"id":"arr","text":"What is current ARR?","category":"financial"},
{"id":"team","text":"Who are the founders?","description":"Prior exits matter.","category":"team"}]`,
		},
		{
			name: "csv",
			file: "questions.csv",
			content: "ID,Text,Category,Description\n" +
				"arr,What is current ARR?,financial,\n" +
				"team,Who are the founders?,team,Prior exits matter.\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadQuestionsFromFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadQuestionsFromFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unsupported", "questions.txt", "arr", "unsupported questions file type"},
		{"empty", "questions.yaml", "", "no questions"},
		{"duplicate", "questions.yaml", "- {id: a, text: x}\n- {id: a, text: y}\n", "duplicate question id a"},
		{"blank text", "questions.yaml", "- {id: a, text: '  '}\n", "question a has no text"},
		{"missing id", "questions.json", `[{"text":"x"}]`, "question 1 has no id"},
		{"csv missing column", "questions.csv", "id,question\na,x\n", `csv header is missing "text"`},
		{"malformed", "questions.yaml", "questions: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadQuestionsFromFile(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadQuestionsFromFile_Missing(t *testing.T) {
	_, err := LoadQuestionsFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
