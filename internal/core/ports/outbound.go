package ports

import (
	"context"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

// SessionStorage owns session-scoped storage areas.
type SessionStorage interface {
	// Create makes a new, empty storage area for sessionID.
	Create(ctx context.Context, sessionID string) error
	// Adopt moves an upload's temporary file into the session area.
	Adopt(ctx context.Context, sessionID string, upload domain.Upload) (domain.Document, error)
	// List enumerates stored documents. A missing area yields ok=false.
	List(ctx context.Context, sessionID string) (docs []domain.Document, ok bool, err error)
	// Remove deletes the storage area and its files.
	Remove(ctx context.Context, sessionID string) error
}

// SessionEvents announces session lifecycle transitions.
type SessionEvents interface {
	PublishSession(ctx context.Context, branch domain.SessionBranch, session domain.Session) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.Document) (string, error)
}

// Segmenter splits extracted text into page units.
type Segmenter interface {
	Segment(text string) []domain.PageUnit
}

// Embedder maps one provider batch of texts to vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces an answer for a fully assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AskObserver receives pipeline measurements.
type AskObserver interface {
	ObserveSession(branch domain.SessionBranch)
	ObserveDocument(pagesSegmented, pagesRanked int)
}
