package model

import "time"

// StageResult is the immutable output of one review pipeline stage run.
type StageResult struct {
	ID          string    `json:"id"`
	StageName   string    `json:"stage_name"`
	Domain      string    `json:"domain,omitempty"`
	Iteration   int       `json:"iteration"`
	InputRefs   []string  `json:"input_refs"`
	OutputText  string    `json:"output_text"`
	Model       string    `json:"model"`
	Reformatted bool      `json:"reformatted,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
