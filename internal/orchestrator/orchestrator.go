// Package orchestrator fans questions out to the model, one independent call
// per question, and owns every per-question answer state transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/budget"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/prompt"
	"github.com/sells-group/diligence-cli/internal/remote"
)

// DocumentSource lists the corpus with text already extracted.
type DocumentSource interface {
	ListFiles(ctx context.Context) ([]model.Document, error)
}

// Caller sends one model request.
type Caller interface {
	Call(ctx context.Context, req remote.Request) (*remote.Result, error)
}

// Recorder persists resolved answers. Failures are logged, never surfaced.
type Recorder interface {
	SaveAnswer(ctx context.Context, runID string, rec model.AnswerRecord) error
}

// Config holds the per-call model settings.
type Config struct {
	Model       remote.ModelSpec
	Temperature float64
	MaxTokens   int
	Budget      budget.Budget
	// Concurrency caps in-flight calls per batch. Values < 1 mean 5.
	Concurrency int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder persists every resolved answer under the run id.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPrompt replaces the default prompt builder.
func WithPrompt(b prompt.Builder) Option {
	return func(o *Orchestrator) { o.prompt = b }
}

// WithRunID sets the run id answers are recorded under.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// Orchestrator tracks one AnswerRecord per question. At most one call per
// question is in flight at any time.
type Orchestrator struct {
	questions []model.Question
	byID      map[string]model.Question
	docs      DocumentSource
	budgeter  *budget.Budgeter
	caller    Caller
	contract  answer.Contract
	cfg       Config
	prompt    prompt.Builder
	recorder  Recorder
	runID     string

	mu       sync.Mutex
	records  map[string]*model.AnswerRecord
	inflight map[string]string // question id -> batch id
	batches  map[string]*Batch
	subs     map[int]chan model.AnswerRecord
	nextSub  int

	now func() time.Time
}

// New creates an Orchestrator. Every question starts idle.
func New(questions []model.Question, docs DocumentSource, budgeter *budget.Budgeter, caller Caller, contract answer.Contract, cfg Config, opts ...Option) (*Orchestrator, error) {
	if len(questions) == 0 {
		return nil, eris.New("orchestrator: no questions")
	}
	if docs == nil || budgeter == nil || caller == nil || contract == nil {
		return nil, eris.New("orchestrator: documents, budgeter, caller and contract are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 5
	}

	o := &Orchestrator{
		questions: questions,
		byID:      make(map[string]model.Question, len(questions)),
		docs:      docs,
		budgeter:  budgeter,
		caller:    caller,
		contract:  contract,
		cfg:       cfg,
		prompt:    prompt.Default,
		records:   make(map[string]*model.AnswerRecord, len(questions)),
		inflight:  make(map[string]string),
		batches:   make(map[string]*Batch),
		subs:      make(map[int]chan model.AnswerRecord),
		now:       time.Now,
	}
	for _, q := range questions {
		if q.ID == "" {
			return nil, eris.New("orchestrator: question with empty id")
		}
		if _, dup := o.byID[q.ID]; dup {
			return nil, eris.Errorf("orchestrator: duplicate question id %q", q.ID)
		}
		o.byID[q.ID] = q
		o.records[q.ID] = &model.AnswerRecord{QuestionID: q.ID, State: model.AnswerIdle}
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o, nil
}

// RunID returns the run id answers are recorded under.
func (o *Orchestrator) RunID() string { return o.runID }

// Questions returns the known questions in order.
func (o *Orchestrator) Questions() []model.Question {
	return append([]model.Question(nil), o.questions...)
}

// AnalyzeAll analyzes every question.
func (o *Orchestrator) AnalyzeAll(ctx context.Context, opts ...BatchOption) (*Batch, error) {
	ids := make([]string, len(o.questions))
	for i, q := range o.questions {
		ids[i] = q.ID
	}
	return o.AnalyzeSubset(ctx, ids, opts...)
}

// AnalyzeSubset dispatches ids concurrently and returns without waiting. If
// any id is unknown the whole batch is rejected with ErrQuestionsNotFound and
// no state changes. Ids already loading are skipped and listed in
// Batch.Skipped; edited answers are kept and listed in Batch.Edited.
//
// The batch keeps running after ctx ends; use Batch.Cancel to stop it.
func (o *Orchestrator) AnalyzeSubset(ctx context.Context, ids []string, opts ...BatchOption) (*Batch, error) {
	return o.start(ctx, ids, false, opts)
}

// Regenerate re-analyzes one question, replacing an edited answer. It
// returns ErrInFlight if that question is loading and leaves every other
// question untouched.
func (o *Orchestrator) Regenerate(ctx context.Context, id, override string) (*Batch, error) {
	return o.start(ctx, []string{id}, true, []BatchOption{WithOverride(override)})
}

// EditAnswer replaces an answer with user-provided text. The answer stays
// edited until it is regenerated.
func (o *Orchestrator) EditAnswer(ctx context.Context, id, summary, details string) error {
	o.mu.Lock()
	rec, ok := o.records[id]
	if !ok {
		o.mu.Unlock()
		return eris.Wrapf(ErrQuestionsNotFound, "orchestrator: unknown question %q", id)
	}
	if rec.State == model.AnswerLoading {
		o.mu.Unlock()
		return eris.Wrapf(ErrInFlight, "orchestrator: edit %q", id)
	}
	rec.State = model.AnswerEdited
	rec.IsEdited = true
	rec.IsLoading = false
	rec.Summary = summary
	rec.Details = details
	rec.Error = ""
	rec.ErrorDetail = ""
	rec.Warnings = nil
	rec.UpdatedAt = o.now()
	snap := *rec
	o.publishLocked(snap)
	o.mu.Unlock()

	answerTransitions.WithLabelValues(string(model.AnswerEdited)).Inc()
	o.record(ctx, snap)
	return nil
}

// Get returns the current record for id.
func (o *Orchestrator) Get(id string) (model.AnswerRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return model.AnswerRecord{}, false
	}
	return *rec, true
}

// Snapshot returns every record in question order.
func (o *Orchestrator) Snapshot() []model.AnswerRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.AnswerRecord, 0, len(o.questions))
	for _, q := range o.questions {
		out = append(out, *o.records[q.ID])
	}
	return out
}

// Subscribe returns a channel receiving every record change, and a function
// that unsubscribes and closes the channel. Updates are dropped for a
// subscriber whose buffer is full; Snapshot always has the current state.
func (o *Orchestrator) Subscribe() (<-chan model.AnswerRecord, func()) {
	ch := make(chan model.AnswerRecord, 4*len(o.questions)+16)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

// Batch returns a batch that has not finished yet.
func (o *Orchestrator) Batch(id string) (*Batch, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.batches[id]
	return b, ok
}

// CancelAll cancels every running batch.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	batches := make([]*Batch, 0, len(o.batches))
	for _, b := range o.batches {
		batches = append(batches, b)
	}
	o.mu.Unlock()
	for _, b := range batches {
		b.Cancel()
	}
}

func (o *Orchestrator) start(ctx context.Context, ids []string, rejectInFlight bool, opts []BatchOption) (*Batch, error) {
	if len(ids) == 0 {
		return nil, ErrNoQuestions
	}
	bo := batchOptions{}
	for _, opt := range opts {
		opt(&bo)
	}
	bud := o.cfg.Budget
	if bo.budget != nil {
		bud = *bo.budget
	}

	seen := make(map[string]bool, len(ids))
	var unique, missing []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := o.byID[id]; !ok {
			missing = append(missing, id)
			continue
		}
		unique = append(unique, id)
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrQuestionsNotFound, "orchestrator: unknown ids %s", strings.Join(missing, ", "))
	}

	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := &Batch{ID: uuid.NewString(), cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if rejectInFlight {
		for _, id := range unique {
			if o.records[id].State == model.AnswerLoading {
				o.mu.Unlock()
				cancel()
				return nil, eris.Wrapf(ErrInFlight, "orchestrator: regenerate %q", id)
			}
		}
	}
	now := o.now()
	for _, id := range unique {
		rec := o.records[id]
		if rec.State == model.AnswerLoading {
			b.Skipped = append(b.Skipped, id)
			continue
		}
		if rec.State == model.AnswerEdited && !rejectInFlight {
			b.Edited = append(b.Edited, id)
			continue
		}
		*rec = model.AnswerRecord{
			QuestionID: id,
			State:      model.AnswerLoading,
			IsLoading:  true,
			UpdatedAt:  now,
		}
		o.inflight[id] = b.ID
		b.QuestionIDs = append(b.QuestionIDs, id)
		o.publishLocked(*rec)
	}
	if len(b.QuestionIDs) > 0 {
		o.batches[b.ID] = b
	}
	o.mu.Unlock()

	if len(b.QuestionIDs) == 0 {
		cancel()
		close(b.done)
		return b, nil
	}
	answerTransitions.WithLabelValues(string(model.AnswerLoading)).Add(float64(len(b.QuestionIDs)))

	zap.L().Info("orchestrator: batch started",
		zap.String("batch", b.ID),
		zap.Int("questions", len(b.QuestionIDs)),
		zap.Int("skipped", len(b.Skipped)),
		zap.Int("edited", len(b.Edited)),
	)
	go o.run(bctx, b, bud, bo.override)
	return b, nil
}

// run resolves every question of b. It never returns an error: each
// question's failure is converted to that question's error state.
func (o *Orchestrator) run(ctx context.Context, b *Batch, bud budget.Budget, override string) {
	start := time.Now()
	defer func() {
		o.mu.Lock()
		delete(o.batches, b.ID)
		o.mu.Unlock()
		b.cancel()
		close(b.done)
		batchDuration.Observe(time.Since(start).Seconds())
		zap.L().Info("orchestrator: batch finished",
			zap.String("batch", b.ID),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}()

	docs, err := o.docs.ListFiles(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = errCancelled
		} else {
			err = eris.Wrap(errDocuments, err.Error())
		}
		for _, id := range b.QuestionIDs {
			o.fail(b.ID, id, err, 0)
		}
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, id := range b.QuestionIDs {
		if ctx.Err() != nil {
			o.fail(b.ID, id, errCancelled, 0)
			continue
		}
		q := o.byID[id]
		g.Go(func() error {
			o.analyze(ctx, b.ID, q, docs, bud, override)
			return nil
		})
	}
	_ = g.Wait()
}

// analyze runs one question end to end and records its terminal state.
func (o *Orchestrator) analyze(ctx context.Context, batchID string, q model.Question, docs []model.Document, bud budget.Budget, override string) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(batchID, q.ID, eris.Wrap(errPanic, fmt.Sprint(r)), 0)
		}
	}()

	if ctx.Err() != nil {
		o.fail(batchID, q.ID, errCancelled, 0)
		return
	}

	bundle := o.budgeter.Select(docs, q, bud)
	if bundle.NoContent {
		o.finish(batchID, model.AnswerRecord{
			QuestionID: q.ID,
			State:      model.AnswerComplete,
			Summary:    InsufficientSummary,
			Details:    InsufficientDetails,
			Warnings:   []string{"no usable document content"},
		}, nil)
		return
	}
	msgs := o.prompt(q, bundle, override, o.contract.Shape())

	res, err := o.caller.Call(ctx, remote.Request{
		Messages:    msgs,
		Model:       o.cfg.Model,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			err = errCancelled
		}
		o.fail(batchID, q.ID, err, attemptsOf(err))
		return
	}

	interp, err := o.contract.Interpret(res.Text)
	if err != nil {
		o.fail(batchID, q.ID, err, res.Attempts)
		return
	}

	o.finish(batchID, model.AnswerRecord{
		QuestionID: q.ID,
		State:      model.AnswerComplete,
		Summary:    interp.Summary,
		Details:    interp.Details,
		ModelUsed:  res.Model,
		Attempts:   res.Attempts,
		Warnings:   interp.Warnings,
	}, nil)
}

func attemptsOf(err error) int {
	var re *remote.Error
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 0
}

func (o *Orchestrator) fail(batchID, id string, err error, attempts int) {
	msg := UserMessage(err)
	o.finish(batchID, model.AnswerRecord{
		QuestionID:  id,
		State:       model.AnswerError,
		Summary:     msg,
		Error:       msg,
		ErrorDetail: err.Error(),
		Attempts:    attempts,
		ModelUsed:   o.cfg.Model.Name,
	}, err)
}

// finish writes a terminal record if batchID still owns the question.
func (o *Orchestrator) finish(batchID string, rec model.AnswerRecord, cause error) {
	rec.UpdatedAt = o.now()

	o.mu.Lock()
	if o.inflight[rec.QuestionID] != batchID {
		o.mu.Unlock()
		return
	}
	delete(o.inflight, rec.QuestionID)
	*o.records[rec.QuestionID] = rec
	o.publishLocked(rec)
	o.mu.Unlock()

	answerTransitions.WithLabelValues(string(rec.State)).Inc()
	if cause != nil {
		zap.L().Warn("orchestrator: question failed",
			zap.String("batch", batchID),
			zap.String("question", rec.QuestionID),
			zap.String("kind", string(remote.KindOf(cause))),
			zap.Int("attempts", rec.Attempts),
			zap.Error(cause),
		)
	} else {
		zap.L().Debug("orchestrator: question complete",
			zap.String("batch", batchID),
			zap.String("question", rec.QuestionID),
			zap.Int("attempts", rec.Attempts),
		)
	}
	o.record(context.Background(), rec)
}

func (o *Orchestrator) publishLocked(rec model.AnswerRecord) {
	for _, ch := range o.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, rec model.AnswerRecord) {
	if o.recorder == nil || rec.State == model.AnswerLoading {
		return
	}
	if err := o.recorder.SaveAnswer(ctx, o.runID, rec); err != nil {
		zap.L().Error("orchestrator: save answer",
			zap.String("question", rec.QuestionID),
			zap.Error(err),
		)
	}
}
