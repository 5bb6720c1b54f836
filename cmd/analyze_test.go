package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/diligence-cli/internal/model"
)

type countingBar struct{ n int }

func (c *countingBar) Add(n int) error {
	c.n += n
	return nil
}

func TestTrackProgress(t *testing.T) {
	updates := make(chan model.AnswerRecord, 10)
	updates <- model.AnswerRecord{QuestionID: "q1", State: model.AnswerLoading}
	updates <- model.AnswerRecord{QuestionID: "q2", State: model.AnswerLoading}
	updates <- model.AnswerRecord{QuestionID: "q1", State: model.AnswerComplete}
	updates <- model.AnswerRecord{QuestionID: "other", State: model.AnswerComplete}
	updates <- model.AnswerRecord{QuestionID: "q1", State: model.AnswerEdited}
	updates <- model.AnswerRecord{QuestionID: "q2", State: model.AnswerError}

	bar := &countingBar{}
	resolved := trackProgress(updates, []string{"q1", "q2"}, bar)

	assert.Equal(t, 2, resolved)
	assert.Equal(t, 2, bar.n)
}

func TestTrackProgress_ClosedEarly(t *testing.T) {
	updates := make(chan model.AnswerRecord, 2)
	updates <- model.AnswerRecord{QuestionID: "q1", State: model.AnswerComplete}
	close(updates)

	bar := &countingBar{}
	assert.Equal(t, 1, trackProgress(updates, []string{"q1", "q2"}, bar))
}

func TestFormatAnswers(t *testing.T) {
	questions := []model.Question{
		{ID: "q1", Text: "What is ARR?"},
		{ID: "q2", Text: "What is burn?"},
		{ID: "q3", Text: "Not analyzed"},
	}
	records := []model.AnswerRecord{
		{QuestionID: "q2", State: model.AnswerError, Summary: "ignored", Error: "The model took too long to respond. Regenerate to try again.", Attempts: 3},
		{QuestionID: "q1", State: model.AnswerComplete, Summary: "ARR is $12.3M\nper the deck", Attempts: 1},
	}

	var buf bytes.Buffer
	formatAnswers(&buf, questions, records)
	out := buf.String()

	assert.Contains(t, out, "QUESTION")
	assert.Contains(t, out, "ARR is $12.3M per the deck")
	assert.Contains(t, out, "The model took too long")
	assert.NotContains(t, out, "ignored")
	assert.NotContains(t, out, "q3")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("q1")), bytes.Index(buf.Bytes(), []byte("q2")))
}

func TestReportUsage(t *testing.T) {
	var buf bytes.Buffer
	reportUsage(&buf, model.TokenUsage{InputTokens: 2000, OutputTokens: 200, Cost: 0.007})
	assert.Equal(t, "Tokens: 2000 in, 200 out (est. $0.0070)\n", buf.String())
}
