package domain

// PageUnit is a contiguous slice of a document's text. Page numbers are
// 1-based and dense per document.
type PageUnit struct {
	PageNumber int
	Text       string
}

type ScoredUnit struct {
	PageUnit
	Score    float64
	Document string
}

// RankedDocument is one document's top-K units in rank order.
type RankedDocument struct {
	DisplayName string
	Units       []ScoredUnit
}

type AskRequest struct {
	Uploads  []Upload
	UploadID string
	// Question is nil when the caller sent no question field at all.
	Question *string
}

type PageScore struct {
	Page  int     `json:"page"`
	Score float64 `json:"score"`
}

type Source struct {
	Filename string      `json:"filename"`
	Pages    []PageScore `json:"pages"`
}

type AskResult struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	UploadID *string  `json:"uploadId"`
}
