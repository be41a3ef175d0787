package httpadapter

import (
	"net/http"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrMissingInput),
		domain.IsKind(err, domain.ErrMissingQuestion),
		domain.IsKind(err, domain.ErrNoDocuments),
		domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrMissingInput):
		return "Upload at least one PDF or provide an uploadId."
	case domain.IsKind(err, domain.ErrMissingQuestion):
		return "Question is required."
	case domain.IsKind(err, domain.ErrNoDocuments):
		return "No documents found for this uploadId."
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "Invalid request."
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return "Session not found."
	case domain.IsKind(err, domain.ErrExtraction):
		return "Failed to read PDF."
	case domain.IsKind(err, domain.ErrEmbeddingProvider):
		return "Embedding request failed."
	case domain.IsKind(err, domain.ErrCompletionProvider):
		return "Answer generation failed."
	default:
		return "Internal server error."
	}
}
