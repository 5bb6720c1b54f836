package model

// Question is a due-diligence question from the question registry.
// Category doubles as the review domain.
type Question struct {
	ID          string `json:"id" yaml:"id"`
	Text        string `json:"text" yaml:"text"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
}

// QuestionsByCategory groups questions by category, preserving input order
// within each group.
func QuestionsByCategory(questions []Question) map[string][]Question {
	out := make(map[string][]Question)
	for _, q := range questions {
		out[q.Category] = append(out[q.Category], q)
	}
	return out
}

// Message is a single chat-style message sent to a model provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
