package ports

import (
	"context"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

// DocumentAsker is the inbound contract for question answering over uploaded PDFs.
type DocumentAsker interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResult, error)
}

// SessionReader is the inbound read model for an existing upload session.
type SessionReader interface {
	Lookup(ctx context.Context, sessionID string) (*domain.Session, error)
}
