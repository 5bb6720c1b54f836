package registry

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/diligence-cli/internal/model"
)

// questionFile is the on-disk layout: either a bare list or a document with
// a top-level questions key.
type questionFile struct {
	Questions []model.Question `yaml:"questions"`
}

// LoadQuestionsFromFile reads questions from a YAML, JSON or CSV file. CSV
// files need a header row with id and text columns; description and
// category are optional.
func LoadQuestionsFromFile(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read questions file %s", path)
	}

	var questions []model.Question
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		questions, err = parseCSV(data)
	case ".yaml", ".yml", ".json":
		questions, err = parseYAML(data)
	default:
		return nil, eris.Errorf("registry: unsupported questions file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}

	for i := range questions {
		questions[i].ID = strings.TrimSpace(questions[i].ID)
		questions[i].Text = strings.TrimSpace(questions[i].Text)
	}
	if err := Check(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// parseYAML also handles JSON, which is valid YAML.
func parseYAML(data []byte) ([]model.Question, error) {
	var list []model.Question
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc questionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "unmarshal questions")
	}
	return doc.Questions, nil
}

func parseCSV(data []byte) ([]model.Question, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "read csv")
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "text"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("csv header is missing %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	questions := make([]model.Question, 0, len(records)-1)
	for _, row := range records[1:] {
		questions = append(questions, model.Question{
			ID:          field(row, "id"),
			Text:        field(row, "text"),
			Description: field(row, "description"),
			Category:    field(row, "category"),
		})
	}
	return questions, nil
}

// Check rejects an empty set, blank ids or text, and duplicate ids.
func Check(questions []model.Question) error {
	if len(questions) == 0 {
		return eris.New("registry: no questions")
	}
	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return eris.Errorf("registry: question %d has no id", i+1)
		}
		if q.Text == "" {
			return eris.Errorf("registry: question %s has no text", q.ID)
		}
		if seen[q.ID] {
			return eris.Errorf("registry: duplicate question id %s", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}
