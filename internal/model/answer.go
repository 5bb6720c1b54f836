package model

import "time"

// AnswerState is the lifecycle state of one question's answer.
type AnswerState string

const (
	AnswerIdle     AnswerState = "idle"
	AnswerLoading  AnswerState = "loading"
	AnswerComplete AnswerState = "complete"
	AnswerError    AnswerState = "error"
	AnswerEdited   AnswerState = "edited"
)

// Terminal reports whether the state is a resolved (non-loading) state.
func (s AnswerState) Terminal() bool {
	return s == AnswerComplete || s == AnswerError || s == AnswerEdited
}

// AnswerRecord is the current answer for a question, keyed by QuestionID.
type AnswerRecord struct {
	QuestionID string      `json:"question_id"`
	State      AnswerState `json:"state"`
	Summary    string      `json:"summary"`
	Details    string      `json:"details"`
	IsEdited   bool        `json:"is_edited"`
	IsLoading  bool        `json:"is_loading"`
	ModelUsed  string      `json:"model_used,omitempty"`
	Error      string      `json:"error,omitempty"`
	Attempts   int         `json:"attempts,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`

	// ErrorDetail keeps the underlying failure for logs; it is never
	// rendered to users.
	ErrorDetail string `json:"-"`
}

// Sections holds the three parts of a Source/Analysis/Conclusion answer.
type Sections struct {
	Source     string `json:"source,omitempty"`
	Analysis   string `json:"analysis,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
}

// Empty reports whether no section has content.
func (s Sections) Empty() bool {
	return s.Source == "" && s.Analysis == "" && s.Conclusion == ""
}

// CitationQuality grades how precisely a Source section points at evidence.
type CitationQuality string

const (
	CitationHigh   CitationQuality = "high"
	CitationMedium CitationQuality = "medium"
	CitationLow    CitationQuality = "low"
)

// ValidationResult is derived fresh every time raw answer text is parsed.
type ValidationResult struct {
	Sections Sections        `json:"sections"`
	Errors   []string        `json:"errors"`
	Warnings []string        `json:"warnings"`
	IsValid  bool            `json:"is_valid"`
	Citation CitationQuality `json:"citation"`
}
