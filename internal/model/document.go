package model

// DocumentKind is the coarse classification assigned to a document by the
// context budgeter.
type DocumentKind string

const (
	KindPitchDeck          DocumentKind = "pitch_deck"
	KindSpreadsheet        DocumentKind = "spreadsheet"
	KindFinancialStatement DocumentKind = "financial_statement"
	KindLegal              DocumentKind = "legal"
	KindGeneral            DocumentKind = "general"
)

// Document is a file from the data room with its already-extracted text.
// Documents are never mutated once listed.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TextContent string `json:"text_content"`
	SizeBytes   int64  `json:"size_bytes"`
}

// ContextBundle is the bounded excerpt built for a single question. It is
// owned by the remote call it feeds and discarded afterwards.
type ContextBundle struct {
	QuestionID        string   `json:"question_id"`
	Excerpt           string   `json:"excerpt"`
	Truncated         bool     `json:"truncated"`
	SourceDocumentIDs []string `json:"source_document_ids"`
	NoContent         bool     `json:"no_content"`
}
