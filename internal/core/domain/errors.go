package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingInput       = errors.New("no files and no upload id")
	ErrMissingQuestion    = errors.New("question is required")
	ErrNoDocuments        = errors.New("no documents available")
	ErrExtraction         = errors.New("text extraction failed")
	ErrEmbeddingProvider  = errors.New("embedding provider failed")
	ErrCompletionProvider = errors.New("completion provider failed")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
