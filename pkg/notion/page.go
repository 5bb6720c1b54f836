package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxRichText is Notion's per-rich-text content limit.
const maxRichText = 2000

// Memo is a titled text document published as a database page.
type Memo struct {
	Title  string
	Body   string
	Domain string
	Stage  string
}

// PublishMemo creates a page in dbID with Name (title), optional Stage and
// Domain (rich text) properties, and the body rendered as paragraph blocks.
func PublishMemo(ctx context.Context, c Client, dbID string, m Memo) (*notionapi.Page, error) {
	if strings.TrimSpace(m.Title) == "" {
		return nil, eris.New("notion: memo title is required")
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{textRun(m.Title)},
		},
	}
	if m.Stage != "" {
		props["Stage"] = richTextProperty(m.Stage)
	}
	if m.Domain != "" {
		props["Domain"] = richTextProperty(m.Domain)
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
		Children:   paragraphs(m.Body),
	}

	page, err := c.CreatePage(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: publish memo %q", m.Title)
	}
	return page, nil
}

func textRun(s string) notionapi.RichText {
	return notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}
}

func richTextProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{textRun(s)},
	}
}

// paragraphs splits body on blank lines into paragraph blocks, chunking any
// paragraph longer than maxRichText runes.
func paragraphs(body string) []notionapi.Block {
	var blocks []notionapi.Block
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		var runs []notionapi.RichText
		for _, chunk := range chunkRunes(para, maxRichText) {
			runs = append(runs, textRun(chunk))
		}
		blocks = append(blocks, &notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeParagraph,
			},
			Paragraph: notionapi.Paragraph{RichText: runs},
		})
	}
	return blocks
}

func chunkRunes(s string, n int) []string {
	r := []rune(s)
	var out []string
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return append(out, string(r))
}
