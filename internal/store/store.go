package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Mode   string `json:"mode,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs. Answers are
// kept as the latest record per (run, question); stage results are
// append-only and never updated.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, name, mode string) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Answers
	SaveAnswer(ctx context.Context, runID string, rec model.AnswerRecord) error
	ListAnswers(ctx context.Context, runID string) ([]model.AnswerRecord, error)

	// Stage results
	SaveStageResult(ctx context.Context, runID string, r model.StageResult) error
	ListStageResults(ctx context.Context, runID string) ([]model.StageResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
