package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

func TestNewSessionEventTypes(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	session := domain.Session{
		ID:        "id-1",
		Documents: []domain.Document{{DisplayName: "a.pdf"}, {DisplayName: "b.pdf"}},
	}

	created := newSessionEvent(domain.BranchNewUpload, session, at)
	if created.Type != "session.created" || created.UploadID != "id-1" {
		t.Fatalf("unexpected created event %+v", created)
	}
	if len(created.Documents) != 2 || created.Documents[1] != "b.pdf" {
		t.Fatalf("unexpected document names %v", created.Documents)
	}

	resolved := newSessionEvent(domain.BranchFollowUp, session, at)
	if resolved.Type != "session.resolved" {
		t.Fatalf("expected session.resolved, got %s", resolved.Type)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if !classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)).Retryable {
		t.Fatalf("closed connection should be retryable")
	}
	if classifyNATSError(errors.New("bad subject")).Retryable {
		t.Fatalf("unknown errors should not be retryable")
	}
	if classifyNATSError(context.Canceled).RecordFailure {
		t.Fatalf("cancellation must not count as breaker failure")
	}
}

func TestNoopPublisher(t *testing.T) {
	if err := (Noop{}).PublishSession(context.Background(), domain.BranchNewUpload, domain.Session{ID: "x"}); err != nil {
		t.Fatalf("Noop.PublishSession() error = %v", err)
	}
}
