package orchestrator

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/remote"
)

var (
	// ErrQuestionsNotFound rejects a batch naming an unknown question id.
	ErrQuestionsNotFound = eris.New("orchestrator: some questions not found")
	// ErrInFlight rejects a regenerate or edit while the question is loading.
	ErrInFlight = eris.New("orchestrator: question is already being analyzed")
	// ErrNoQuestions rejects an empty batch.
	ErrNoQuestions = eris.New("orchestrator: no questions requested")
)

// errCancelled marks a question whose batch was cancelled before it resolved.
var errCancelled = eris.New("orchestrator: batch cancelled")

// User-facing messages stored on errored AnswerRecords.
const (
	MsgUnauthorized = "The model provider rejected the credentials. Check the API key, then regenerate."
	MsgRateLimited  = "The model provider is rate limiting requests. Regenerate in a moment."
	MsgTimeout      = "The model took too long to respond. Regenerate to try again."
	MsgProvider     = "The model provider returned an error. Regenerate to try again."
	MsgValidation   = "The model response could not be interpreted. Regenerate to try again."
	MsgCancelled    = "Analysis was cancelled."
	MsgDocuments    = "The documents could not be loaded. Regenerate to try again."
	MsgInternal     = "Something went wrong while analyzing this question. Regenerate to try again."
)

// Answer recorded without a model call when no document has usable text.
const (
	InsufficientSummary = "Insufficient information: the documents contain no usable content for this question."
	InsufficientDetails = "No readable text was found in the data room documents, so the question was not sent to the model."
)

// UserMessage maps an analysis failure to a short message safe to show users.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, errCancelled), errors.Is(err, context.Canceled):
		return MsgCancelled
	case errors.Is(err, remote.ErrUnauthorized):
		return MsgUnauthorized
	case errors.Is(err, remote.ErrRateLimited):
		return MsgRateLimited
	case errors.Is(err, remote.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	case errors.Is(err, answer.ErrUnrecoverable):
		return MsgValidation
	case errors.Is(err, errDocuments):
		return MsgDocuments
	case errors.Is(err, errPanic):
		return MsgInternal
	default:
		return MsgProvider
	}
}

var (
	errDocuments = eris.New("orchestrator: list documents")
	errPanic     = eris.New("orchestrator: analysis panicked")
)
