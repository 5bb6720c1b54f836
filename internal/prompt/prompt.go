// Package prompt builds chat messages for question analysis and review stages.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/model"
)

// Builder turns a question and its context bundle into request messages.
// A non-empty override replaces the default instruction paragraph.
type Builder func(q model.Question, bundle model.ContextBundle, override string, shape answer.Shape) []model.Message

const systemText = "You are a due-diligence analyst reviewing a company's data room. Answer only from the document excerpts provided. Quote figures exactly as written and name the document they come from. If the excerpts do not contain the information, say that the information is insufficient rather than guessing."

const questionPrompt = `Question: %s
%s
Document excerpts:
%s

%s

%s`

const defaultInstruction = "Answer the question using only the document excerpts above."

const noContentText = "No document content was available for this question."

const truncatedNote = "\n\n(Excerpts were shortened to fit the context budget; [...] marks omitted text.)"

// Default is the standard question Builder.
func Default(q model.Question, bundle model.ContextBundle, override string, shape answer.Shape) []model.Message {
	var description string
	if q.Description != "" {
		description = fmt.Sprintf("Context: %s\n", q.Description)
	}

	excerpt := bundle.Excerpt
	switch {
	case bundle.NoContent || strings.TrimSpace(excerpt) == "":
		excerpt = noContentText
	case bundle.Truncated:
		excerpt += truncatedNote
	}

	instruction := defaultInstruction
	if o := strings.TrimSpace(override); o != "" {
		instruction = o
	}

	user := fmt.Sprintf(questionPrompt, q.Text, description, excerpt, instruction, answer.Instructions(shape))
	return []model.Message{
		{Role: model.RoleSystem, Content: systemText},
		{Role: model.RoleUser, Content: strings.TrimRight(user, "\n")},
	}
}

// Section is one titled block of stage input.
type Section struct {
	Title string
	Body  string
}

const stageSystemText = "You are part of an investment committee reviewing due-diligence findings. Work only from the material provided and be specific: cite figures, name the questions they answer, and call out gaps."

// StageMessages concatenates sections under a stage instruction. reference is
// passed through unmodified when non-empty.
func StageMessages(instruction string, sections []Section, reference string, shape answer.Shape) []model.Message {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instruction))
	for _, s := range sections {
		fmt.Fprintf(&b, "\n\n## %s\n%s", s.Title, strings.TrimSpace(s.Body))
	}
	if reference != "" {
		b.WriteString("\n\n## Reference material\n")
		b.WriteString(reference)
	}
	if inst := answer.Instructions(shape); inst != "" {
		b.WriteString("\n\n")
		b.WriteString(inst)
	}
	return []model.Message{
		{Role: model.RoleSystem, Content: stageSystemText},
		{Role: model.RoleUser, Content: b.String()},
	}
}

// FormatAnswers renders question/answer pairs in question order for stage
// input. Questions without a record are skipped.
func FormatAnswers(questions []model.Question, records map[string]model.AnswerRecord) string {
	var b strings.Builder
	for _, q := range questions {
		rec, ok := records[q.ID]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s", q.Text, rec.Summary)
		if rec.Details != "" {
			fmt.Fprintf(&b, "\n%s", rec.Details)
		}
		if rec.IsEdited {
			b.WriteString("\n(edited by reviewer)")
		}
	}
	return b.String()
}
