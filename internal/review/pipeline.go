// Package review runs the ordered review stages over a completed answer set.
// Every stage is one model call; results are appended, never modified.
package review

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/prompt"
	"github.com/sells-group/diligence-cli/internal/remote"
)

var (
	// ErrUnknownStage is returned for a stage name that is not configured.
	ErrUnknownStage = eris.New("review: unknown stage")
	// ErrStageInput is returned when a stage's prerequisite output is missing.
	ErrStageInput = eris.New("review: stage input missing")
)

// Caller sends one model request.
type Caller interface {
	Call(ctx context.Context, req remote.Request) (*remote.Result, error)
}

// Recorder persists stage results. It must only ever insert.
type Recorder interface {
	SaveStageResult(ctx context.Context, runID string, r model.StageResult) error
}

// Inputs is what a stage consumes besides prior stage output.
type Inputs struct {
	Domain    string
	Answers   []model.AnswerRecord
	Questions []model.Question
	// PriorIDs replaces the default prior stage results with these.
	PriorIDs []string
	// Reference is passed through to the prompt unmodified.
	Reference string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder persists every stage result.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithRunID sets the run id results are recorded under.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// WithHistory seeds the pipeline with previously produced results.
func WithHistory(results []model.StageResult) Option {
	return func(p *Pipeline) { p.results = append(p.results, results...) }
}

// WithValidator sets the validator used by section-shaped stages.
func WithValidator(v *answer.Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// Pipeline sequences review stages. It is safe for concurrent use.
type Pipeline struct {
	caller    Caller
	stages    []StageConfig
	index     map[string]int
	recorder  Recorder
	runID     string
	validator *answer.Validator

	mu      sync.Mutex
	results []model.StageResult

	now func() time.Time
}

// New creates a Pipeline over stages, which must have unique names.
func New(caller Caller, stages []StageConfig, opts ...Option) (*Pipeline, error) {
	if caller == nil {
		return nil, eris.New("review: caller is required")
	}
	if len(stages) == 0 {
		return nil, eris.New("review: no stages")
	}
	p := &Pipeline{
		caller: caller,
		stages: stages,
		index:  make(map[string]int, len(stages)),
		now:    time.Now,
	}
	for i, s := range stages {
		if s.Name == "" {
			return nil, eris.New("review: stage with empty name")
		}
		if _, dup := p.index[s.Name]; dup {
			return nil, eris.Errorf("review: duplicate stage %q", s.Name)
		}
		p.index[s.Name] = i
	}
	for _, o := range opts {
		o(p)
	}
	if p.validator == nil {
		p.validator = answer.NewValidator(answer.DefaultRules())
	}
	return p, nil
}

// Stages returns the configured stages in order.
func (p *Pipeline) Stages() []StageConfig { return slices.Clone(p.stages) }

// RunStage runs one stage and appends its result. Running a stage again
// appends a new result with the next iteration number.
//
// The first stage consumes the complete answers of in.Domain. Later stages
// consume the latest result of the previous stage: for the same domain, for
// every domain when the stage is cross-domain, or the single latest result
// when the previous stage is cross-domain. ErrStageInput is returned when
// that input does not exist yet.
func (p *Pipeline) RunStage(ctx context.Context, name string, in Inputs) (*model.StageResult, error) {
	i, ok := p.index[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownStage, "review: %q", name)
	}
	cfg := p.stages[i]
	domain := in.Domain
	if cfg.CrossDomain {
		domain = ""
	}

	sections, refs, err := p.inputs(i, in)
	if err != nil {
		stageRuns.WithLabelValues(name, "missing_input").Inc()
		return nil, err
	}

	instruction := strings.ReplaceAll(cfg.Instruction, DomainPlaceholder, domainLabel(in.Domain))
	msgs := prompt.StageMessages(instruction, sections, in.Reference, cfg.Shape)

	start := time.Now()
	res, err := p.caller.Call(ctx, remote.Request{
		Messages:    msgs,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		stageRuns.WithLabelValues(name, "error").Inc()
		return nil, eris.Wrapf(err, "review: run stage %s", name)
	}

	output, reformatted, warnings, err := p.interpret(cfg, res.Text)
	if err != nil {
		stageRuns.WithLabelValues(name, "invalid").Inc()
		return nil, eris.Wrapf(err, "review: run stage %s", name)
	}

	p.mu.Lock()
	iteration := 1
	for _, r := range p.results {
		if r.StageName == name && r.Domain == domain {
			iteration = max(iteration, r.Iteration+1)
		}
	}
	result := model.StageResult{
		ID:          uuid.NewString(),
		StageName:   name,
		Domain:      domain,
		Iteration:   iteration,
		InputRefs:   refs,
		OutputText:  output,
		Model:       res.Model,
		Reformatted: reformatted,
		Warnings:    warnings,
		CreatedAt:   p.now(),
	}
	p.results = append(p.results, result)
	p.mu.Unlock()

	outcome := "ok"
	if reformatted {
		outcome = "reformatted"
	}
	stageRuns.WithLabelValues(name, outcome).Inc()
	zap.L().Info("review: stage complete",
		zap.String("stage", name),
		zap.String("domain", domain),
		zap.Int("iteration", iteration),
		zap.Bool("reformatted", reformatted),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if p.recorder != nil {
		if err := p.recorder.SaveStageResult(ctx, p.runID, result); err != nil {
			zap.L().Error("review: save stage result", zap.String("stage", name), zap.Error(err))
		}
	}
	return &result, nil
}

func (p *Pipeline) interpret(cfg StageConfig, raw string) (string, bool, []string, error) {
	if cfg.Shape == "" || cfg.Shape == answer.ShapeFreeText {
		text := strings.TrimSpace(raw)
		if text == "" {
			return "", false, nil, answer.ErrUnrecoverable
		}
		return text, false, nil, nil
	}
	contract, err := answer.ContractFor(cfg.Shape, p.validator)
	if err != nil {
		return "", false, nil, err
	}
	interp, err := contract.Interpret(raw)
	if err != nil {
		return "", false, nil, err
	}
	return interp.Details, interp.Reformatted, interp.Warnings, nil
}

// inputs assembles the prompt sections and input references for stage i.
func (p *Pipeline) inputs(i int, in Inputs) ([]prompt.Section, []string, error) {
	cfg := p.stages[i]
	var sections []prompt.Section
	var refs []string

	var prior []model.StageResult
	switch {
	case len(in.PriorIDs) > 0:
		for _, id := range in.PriorIDs {
			r, ok := p.byID(id)
			if !ok {
				return nil, nil, eris.Wrapf(ErrStageInput, "review: %s: unknown prior result %s", cfg.Name, id)
			}
			prior = append(prior, r)
		}
	case i == 0:
	case p.stages[i-1].CrossDomain:
		r, ok := p.Latest(p.stages[i-1].Name, "")
		if !ok {
			return nil, nil, eris.Wrapf(ErrStageInput, "review: %s needs a %s result", cfg.Name, p.stages[i-1].Name)
		}
		prior = []model.StageResult{r}
	case cfg.CrossDomain:
		prior = p.latestPerDomain(p.stages[i-1].Name)
		if len(prior) == 0 {
			return nil, nil, eris.Wrapf(ErrStageInput, "review: %s needs %s results", cfg.Name, p.stages[i-1].Name)
		}
	default:
		r, ok := p.Latest(p.stages[i-1].Name, in.Domain)
		if !ok {
			return nil, nil, eris.Wrapf(ErrStageInput, "review: %s needs a %s result for %s", cfg.Name, p.stages[i-1].Name, domainLabel(in.Domain))
		}
		prior = []model.StageResult{r}
	}

	for _, r := range prior {
		title := stageTitle(r.StageName)
		if r.Domain != "" {
			title += " (" + r.Domain + ")"
		}
		sections = append(sections, prompt.Section{Title: title, Body: r.OutputText})
		refs = append(refs, "stage:"+r.ID)
	}

	if !cfg.CrossDomain {
		qs, recs := domainAnswers(in)
		if i == 0 && len(recs) == 0 {
			return nil, nil, eris.Wrapf(ErrStageInput, "review: %s needs complete answers for %s", cfg.Name, domainLabel(in.Domain))
		}
		if len(recs) > 0 {
			sections = append(sections, prompt.Section{
				Title: "Question answers (" + domainLabel(in.Domain) + ")",
				Body:  prompt.FormatAnswers(qs, recs),
			})
			for _, q := range qs {
				if _, ok := recs[q.ID]; ok {
					refs = append(refs, "answer:"+q.ID)
				}
			}
		}
	}
	return sections, refs, nil
}

// domainAnswers returns the questions of in.Domain and their complete or
// edited answers. An empty domain selects every question.
func domainAnswers(in Inputs) ([]model.Question, map[string]model.AnswerRecord) {
	var qs []model.Question
	for _, q := range in.Questions {
		if in.Domain == "" || strings.EqualFold(q.Category, in.Domain) {
			qs = append(qs, q)
		}
	}
	wanted := make(map[string]bool, len(qs))
	for _, q := range qs {
		wanted[q.ID] = true
	}
	recs := make(map[string]model.AnswerRecord)
	for _, r := range in.Answers {
		if !wanted[r.QuestionID] {
			continue
		}
		if r.State == model.AnswerComplete || r.State == model.AnswerEdited {
			recs[r.QuestionID] = r
		}
	}
	return qs, recs
}

// History returns every result of a stage for a domain, oldest first.
func (p *Pipeline) History(name, domain string) []model.StageResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.StageResult
	for _, r := range p.results {
		if r.StageName == name && r.Domain == domain {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b model.StageResult) int { return a.Iteration - b.Iteration })
	return out
}

// Latest returns the highest iteration of a stage for a domain.
func (p *Pipeline) Latest(name, domain string) (model.StageResult, bool) {
	h := p.History(name, domain)
	if len(h) == 0 {
		return model.StageResult{}, false
	}
	return h[len(h)-1], true
}

// Results returns every result in the order it was produced.
func (p *Pipeline) Results() []model.StageResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.results)
}

// Result returns the result with the given id.
func (p *Pipeline) Result(id string) (model.StageResult, bool) { return p.byID(id) }

func (p *Pipeline) byID(id string) (model.StageResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.results {
		if r.ID == id {
			return r, true
		}
	}
	return model.StageResult{}, false
}

// latestPerDomain returns the latest result of a stage for each domain,
// ordered by domain.
func (p *Pipeline) latestPerDomain(name string) []model.StageResult {
	p.mu.Lock()
	latest := make(map[string]model.StageResult)
	for _, r := range p.results {
		if r.StageName != name {
			continue
		}
		if cur, ok := latest[r.Domain]; !ok || r.Iteration > cur.Iteration {
			latest[r.Domain] = r
		}
	}
	p.mu.Unlock()

	out := make([]model.StageResult, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.StageResult) int { return strings.Compare(a.Domain, b.Domain) })
	return out
}

func domainLabel(d string) string {
	if d == "" {
		return "all"
	}
	return d
}

func stageTitle(name string) string {
	switch name {
	case StageAnalyst:
		return "Analyst memo"
	case StageAssociate:
		return "Associate review"
	case StageFollowUp:
		return "Follow-up consolidation"
	case StageDecision:
		return "Decision"
	default:
		return name
	}
}
