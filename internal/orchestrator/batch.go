package orchestrator

import (
	"context"

	"github.com/sells-group/diligence-cli/internal/budget"
)

// Batch is one dispatch of questions. Progress is observed per question
// through Get, Snapshot or Subscribe; Done only signals that every question
// in the batch has resolved.
type Batch struct {
	ID          string
	QuestionIDs []string
	// Skipped lists requested ids that were already loading.
	Skipped []string
	// Edited lists requested ids whose edited answers were kept.
	Edited []string

	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the batch. Questions that have not resolved move to error with
// MsgCancelled; completed answers are untouched.
func (b *Batch) Cancel() { b.cancel() }

// Done is closed once every question in the batch has resolved.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait blocks until the batch is done or ctx ends.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type batchOptions struct {
	override string
	budget   *budget.Budget
}

// BatchOption configures a single batch.
type BatchOption func(*batchOptions)

// WithOverride replaces the prompt instruction for every question in the batch.
func WithOverride(instruction string) BatchOption {
	return func(o *batchOptions) { o.override = instruction }
}

// WithBudget overrides the configured context budget for the batch.
func WithBudget(b budget.Budget) BatchOption {
	return func(o *batchOptions) { o.budget = &b }
}
