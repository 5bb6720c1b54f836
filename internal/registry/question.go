// Package registry loads the due-diligence question set from a local file or
// a Notion database.
package registry

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/pkg/notion"
)

// ActiveStatus is the Status value of questions that are part of the set.
const ActiveStatus = "Active"

// LoadQuestionRegistry queries the Notion question database for all active
// questions. Malformed pages are logged and skipped.
func LoadQuestionRegistry(ctx context.Context, client notion.Client, dbID string) ([]model.Question, error) {
	pages, err := notion.QueryByStatus(ctx, client, dbID, ActiveStatus)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load question registry")
	}

	var questions []model.Question
	for _, p := range pages {
		q, err := parseQuestionPage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed question page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		questions = append(questions, q)
	}

	if err := Check(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// parseQuestionPage reads Question (title), Key, Description (rich text) and
// Category (select). Key falls back to the page id.
func parseQuestionPage(p notionapi.Page) (model.Question, error) {
	q := model.Question{ID: string(p.ID)}

	if prop, ok := p.Properties["Question"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			q.Text = strings.TrimSpace(notion.PlainText(tp.Title))
		}
	}

	if prop, ok := p.Properties["Key"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			if key := strings.TrimSpace(notion.PlainText(rtp.RichText)); key != "" {
				q.ID = key
			}
		}
	}

	if prop, ok := p.Properties["Description"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			q.Description = strings.TrimSpace(notion.PlainText(rtp.RichText))
		}
	}

	if prop, ok := p.Properties["Category"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			q.Category = sp.Select.Name
		}
	}

	if q.Text == "" {
		return q, eris.New("missing Question property")
	}
	return q, nil
}
