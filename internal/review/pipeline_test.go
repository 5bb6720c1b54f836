package review

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/remote"
)

const analystText = `Source: Pitch deck page 4
Analysis:
- ARR grew 52% in 2024
- Burn fell to $400k per month
- Gross margin of 78%
Conclusion: Strong financial profile with $12.3M ARR.`

type fakeCaller struct {
	mu       sync.Mutex
	requests []remote.Request
	err      error
	override map[string]string
}

func (f *fakeCaller) Call(_ context.Context, req remote.Request) (*remote.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	user := req.Messages[len(req.Messages)-1].Content
	for marker, text := range f.override {
		if strings.Contains(user, marker) {
			return &remote.Result{Text: text, Model: req.Model.Name}, nil
		}
	}
	var text string
	switch {
	case strings.Contains(user, "analyst on this deal"):
		text = analystText
	case strings.Contains(user, "associate reviewing"):
		text = "The memo overstates growth.\nVerify churn figures."
	case strings.Contains(user, "Consolidate"):
		text = "1. Verify churn (financial)\n2. Check references (team)"
	case strings.Contains(user, "investment committee"):
		text = "Proceed subject to conditions. Verify churn."
	}
	return &remote.Result{Text: text, Model: req.Model.Name}, nil
}

func (f *fakeCaller) last() remote.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type memRecorder struct {
	mu      sync.Mutex
	results []model.StageResult
}

func (m *memRecorder) SaveStageResult(_ context.Context, _ string, r model.StageResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func fixture() Inputs {
	return Inputs{
		Questions: []model.Question{
			{ID: "q1", Text: "What is ARR?", Category: "financial"},
			{ID: "q2", Text: "What is burn?", Category: "financial"},
			{ID: "q3", Text: "Who are the founders?", Category: "team"},
			{ID: "q4", Text: "What is churn?", Category: "financial"},
		},
		Answers: []model.AnswerRecord{
			{QuestionID: "q1", State: model.AnswerComplete, Summary: "$12.3M"},
			{QuestionID: "q2", State: model.AnswerEdited, Summary: "$400k/month", IsEdited: true},
			{QuestionID: "q3", State: model.AnswerComplete, Summary: "Two repeat founders"},
			{QuestionID: "q4", State: model.AnswerError, Summary: "The model took too long to respond."},
		},
	}
}

func withDomain(in Inputs, domain string) Inputs {
	in.Domain = domain
	return in
}

func newPipeline(t *testing.T, c Caller, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(c, DefaultStages(remote.ModelSpec{Name: "review-model"}), opts...)
	require.NoError(t, err)
	return p
}

func TestRunStage_FullChain(t *testing.T) {
	c := &fakeCaller{}
	rec := &memRecorder{}
	p := newPipeline(t, c, WithRecorder(rec), WithRunID("run-1"))
	ctx := context.Background()
	in := fixture()

	fin, err := p.RunStage(ctx, StageAnalyst, withDomain(in, "financial"))
	require.NoError(t, err)
	assert.Equal(t, "financial", fin.Domain)
	assert.Equal(t, 1, fin.Iteration)
	assert.Equal(t, []string{"answer:q1", "answer:q2"}, fin.InputRefs)
	assert.False(t, fin.Reformatted)
	assert.Contains(t, fin.OutputText, "Conclusion:\nStrong financial profile")
	assert.Equal(t, "review-model", fin.Model)

	user := c.last().Messages[1].Content
	assert.Contains(t, user, "for the financial domain")
	assert.Contains(t, user, "Q: What is ARR?\nA: $12.3M")
	assert.NotContains(t, user, "What is churn?")
	assert.NotContains(t, user, "founders")

	team, err := p.RunStage(ctx, StageAnalyst, withDomain(in, "team"))
	require.NoError(t, err)

	finAssoc, err := p.RunStage(ctx, StageAssociate, withDomain(in, "financial"))
	require.NoError(t, err)
	assert.Equal(t, []string{"stage:" + fin.ID, "answer:q1", "answer:q2"}, finAssoc.InputRefs)
	assert.Contains(t, c.last().Messages[1].Content, "## Analyst memo (financial)")

	teamAssoc, err := p.RunStage(ctx, StageAssociate, withDomain(in, "team"))
	require.NoError(t, err)
	assert.Equal(t, "stage:"+team.ID, teamAssoc.InputRefs[0])

	follow, err := p.RunStage(ctx, StageFollowUp, Inputs{})
	require.NoError(t, err)
	assert.Empty(t, follow.Domain)
	assert.Equal(t, []string{"stage:" + finAssoc.ID, "stage:" + teamAssoc.ID}, follow.InputRefs)

	decision, err := p.RunStage(ctx, StageDecision, Inputs{Reference: "Sector median ARR multiple: 8x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"stage:" + follow.ID}, decision.InputRefs)
	assert.True(t, decision.Reformatted)
	assert.NotEmpty(t, decision.Warnings)
	assert.Contains(t, decision.OutputText, "Source:")
	assert.Contains(t, decision.OutputText, "Conclusion:")
	assert.Contains(t, c.last().Messages[1].Content, "## Reference material\nSector median ARR multiple: 8x")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.results, 6)
	assert.Len(t, p.Results(), 6)
}

func TestRunStage_MissingInput(t *testing.T) {
	p := newPipeline(t, &fakeCaller{})
	ctx := context.Background()

	_, err := p.RunStage(ctx, StageAssociate, withDomain(fixture(), "financial"))
	assert.ErrorIs(t, err, ErrStageInput)

	_, err = p.RunStage(ctx, StageFollowUp, Inputs{})
	assert.ErrorIs(t, err, ErrStageInput)

	_, err = p.RunStage(ctx, StageDecision, Inputs{})
	assert.ErrorIs(t, err, ErrStageInput)

	_, err = p.RunStage(ctx, StageAnalyst, withDomain(fixture(), "legal"))
	assert.ErrorIs(t, err, ErrStageInput)

	_, err = p.RunStage(ctx, StageAnalyst, Inputs{PriorIDs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrStageInput)

	assert.Empty(t, p.Results())
}

func TestRunStage_UnknownStage(t *testing.T) {
	p := newPipeline(t, &fakeCaller{})
	_, err := p.RunStage(context.Background(), "partner", Inputs{})
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestRunStage_RerunAppends(t *testing.T) {
	c := &fakeCaller{}
	p := newPipeline(t, c)
	ctx := context.Background()
	in := withDomain(fixture(), "financial")

	first, err := p.RunStage(ctx, StageAnalyst, in)
	require.NoError(t, err)
	firstText := first.OutputText

	c.override = map[string]string{"analyst on this deal": strings.Replace(analystText, "ARR grew 52% in 2024", "ARR grew 48% in 2024", 1)}
	second, err := p.RunStage(ctx, StageAnalyst, in)
	require.NoError(t, err)

	assert.Equal(t, 2, second.Iteration)
	assert.NotEqual(t, first.ID, second.ID)

	h := p.History(StageAnalyst, "financial")
	require.Len(t, h, 2)
	assert.Equal(t, firstText, h[0].OutputText)
	assert.Equal(t, 1, h[0].Iteration)

	latest, ok := p.Latest(StageAnalyst, "financial")
	require.True(t, ok)
	assert.Equal(t, second.ID, latest.ID)

	d := Diff(h[0], h[1])
	assert.True(t, d.Changed())
	assert.Equal(t, []string{"- ARR grew 48% in 2024"}, d.Added)
	assert.Equal(t, []string{"- ARR grew 52% in 2024"}, d.Removed)

	got, ok := p.Result(first.ID)
	require.True(t, ok)
	assert.Equal(t, firstText, got.OutputText)
}

func TestRunStage_CallerError(t *testing.T) {
	c := &fakeCaller{err: &remote.Error{Kind: remote.KindRateLimited, Attempts: 3, Err: errors.New("429")}}
	p := newPipeline(t, c)

	_, err := p.RunStage(context.Background(), StageAnalyst, withDomain(fixture(), "financial"))
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrRateLimited)
	assert.Empty(t, p.Results())
}

func TestRunStage_EmptyOutput(t *testing.T) {
	c := &fakeCaller{override: map[string]string{"analyst on this deal": "   "}}
	p := newPipeline(t, c)

	_, err := p.RunStage(context.Background(), StageAnalyst, withDomain(fixture(), "financial"))
	assert.Error(t, err)
	assert.Empty(t, p.Results())
}

func TestRunStage_PriorIDs(t *testing.T) {
	p := newPipeline(t, &fakeCaller{})
	ctx := context.Background()

	a1, err := p.RunStage(ctx, StageAnalyst, withDomain(fixture(), "financial"))
	require.NoError(t, err)
	_, err = p.RunStage(ctx, StageAnalyst, withDomain(fixture(), "financial"))
	require.NoError(t, err)

	in := withDomain(fixture(), "financial")
	in.PriorIDs = []string{a1.ID}
	assoc, err := p.RunStage(ctx, StageAssociate, in)
	require.NoError(t, err)
	assert.Equal(t, "stage:"+a1.ID, assoc.InputRefs[0])
}

func TestWithHistory(t *testing.T) {
	seed := model.StageResult{
		ID: "old-1", StageName: StageFollowUp, Iteration: 3,
		OutputText: "1. Verify churn", CreatedAt: time.Now().Add(-time.Hour),
	}
	p := newPipeline(t, &fakeCaller{}, WithHistory([]model.StageResult{seed}))

	latest, ok := p.Latest(StageFollowUp, "")
	require.True(t, ok)
	assert.Equal(t, "old-1", latest.ID)

	dec, err := p.RunStage(context.Background(), StageDecision, Inputs{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stage:old-1"}, dec.InputRefs)

	r, err := p.RunStage(context.Background(), StageFollowUp, Inputs{})
	assert.ErrorIs(t, err, ErrStageInput)
	assert.Nil(t, r)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultStages(remote.ModelSpec{}))
	assert.Error(t, err)

	_, err = New(&fakeCaller{}, nil)
	assert.Error(t, err)

	_, err = New(&fakeCaller{}, []StageConfig{{Name: "a"}, {Name: "a"}})
	assert.ErrorContains(t, err, "duplicate")

	p, err := New(&fakeCaller{}, DefaultStages(remote.ModelSpec{Name: "m"}))
	require.NoError(t, err)
	names := make([]string, 0, 4)
	for _, s := range p.Stages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StageAnalyst, StageAssociate, StageFollowUp, StageDecision}, names)
}

func TestDiff(t *testing.T) {
	a := model.StageResult{ID: "a", OutputText: "one\ntwo\n\ntwo\nthree"}
	b := model.StageResult{ID: "b", OutputText: "  one\ntwo\nfour\nfour"}

	d := Diff(a, b)
	assert.Equal(t, "a", d.From)
	assert.Equal(t, "b", d.To)
	assert.Equal(t, []string{"four", "four"}, d.Added)
	assert.Equal(t, []string{"two", "three"}, d.Removed)

	assert.Contains(t, d.Unified, "--- a\n+++ b\n")
	assert.Contains(t, d.Unified, "-three\n")
	assert.Contains(t, d.Unified, "+four\n")

	same := Diff(a, a)
	assert.False(t, same.Changed())
	assert.Empty(t, same.Unified)
}

func TestDiff_MovedLine(t *testing.T) {
	a := model.StageResult{ID: "a", StageName: "analyst", Domain: "financial", Iteration: 1,
		OutputText: "Source: deck p.3\n- ARR $12M\n- churn 4%\n- NRR 110%"}
	b := model.StageResult{ID: "b", StageName: "analyst", Domain: "financial", Iteration: 2,
		OutputText: "Source: deck p.3\n- NRR 110%\n- ARR $12M\n- churn 5%"}

	d := Diff(a, b)
	assert.Equal(t, []string{"- churn 4%", "- NRR 110%"}, d.Removed)
	assert.Equal(t, []string{"- NRR 110%", "- churn 5%"}, d.Added)
	assert.Contains(t, d.Unified, "--- analyst/financial#1\n+++ analyst/financial#2\n")
}
