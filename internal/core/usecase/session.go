package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
	"github.com/kirillkom/pdf-qa/internal/core/ports"
)

// SessionManager maps upload ids to documents stored on disk. New uploads
// always get a freshly minted id, so a request never writes into a session
// that already exists.
type SessionManager struct {
	storage ports.SessionStorage
	events  ports.SessionEvents
	newID   func() string
}

func NewSessionManager(storage ports.SessionStorage, events ports.SessionEvents) *SessionManager {
	return &SessionManager{
		storage: storage,
		events:  events,
		newID:   uuid.NewString,
	}
}

// Branch classifies a request without touching storage.
func (m *SessionManager) Branch(uploads []domain.Upload, uploadID string) (domain.SessionBranch, error) {
	switch {
	case len(uploads) > 0:
		return domain.BranchNewUpload, nil
	case strings.TrimSpace(uploadID) != "":
		return domain.BranchFollowUp, nil
	default:
		return "", domain.WrapError(domain.ErrMissingInput, "resolve session", errors.New("request has neither files nor upload id"))
	}
}

// Resolve returns the session for a request. A follow-up against an unknown
// id resolves to an empty document set; callers decide whether that is fatal.
func (m *SessionManager) Resolve(ctx context.Context, uploads []domain.Upload, uploadID string) (*domain.Session, domain.SessionBranch, error) {
	branch, err := m.Branch(uploads, uploadID)
	if err != nil {
		return nil, "", err
	}

	var session *domain.Session
	if branch == domain.BranchNewUpload {
		session, err = m.createSession(ctx, uploads, uploadID)
	} else {
		session, err = m.resolveSession(ctx, strings.TrimSpace(uploadID))
	}
	if err != nil {
		return nil, branch, err
	}

	if branch == domain.BranchNewUpload || len(session.Documents) > 0 {
		m.publish(ctx, branch, *session)
	}
	return session, branch, nil
}

// Lookup reads an existing session for the read-only session endpoint.
func (m *SessionManager) Lookup(ctx context.Context, sessionID string) (*domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if !validSessionID(sessionID) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "lookup session", fmt.Errorf("malformed upload id %q", sessionID))
	}
	docs, ok, err := m.storage.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session documents: %w", err)
	}
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", fmt.Errorf("id=%s", sessionID))
	}
	return &domain.Session{ID: sessionID, Documents: docs}, nil
}

func (m *SessionManager) createSession(ctx context.Context, uploads []domain.Upload, requestedID string) (*domain.Session, error) {
	id := m.newID()
	if requestedID != "" {
		slog.Info("upload_id_ignored_for_new_files", "requested_upload_id", requestedID, "upload_id", id)
	}

	if err := m.storage.Create(ctx, id); err != nil {
		return nil, fmt.Errorf("create session storage: %w", err)
	}

	docs := make([]domain.Document, 0, len(uploads))
	for _, upload := range uploads {
		doc, err := m.storage.Adopt(ctx, id, upload)
		if err != nil {
			m.discard(ctx, id)
			return nil, fmt.Errorf("store upload %q: %w", upload.Filename, err)
		}
		docs = append(docs, doc)
	}

	slog.Info("session_created", "upload_id", id, "documents", len(docs))
	return &domain.Session{ID: id, Documents: docs}, nil
}

func (m *SessionManager) resolveSession(ctx context.Context, id string) (*domain.Session, error) {
	if !validSessionID(id) {
		slog.Warn("session_id_rejected", "upload_id", id)
		return &domain.Session{ID: id, Documents: []domain.Document{}}, nil
	}

	docs, ok, err := m.storage.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list session documents: %w", err)
	}
	if !ok {
		docs = []domain.Document{}
	}

	slog.Info("session_resolved", "upload_id", id, "found", ok, "documents", len(docs))
	return &domain.Session{ID: id, Documents: docs}, nil
}

// discard drops a session whose id never reached the caller.
func (m *SessionManager) discard(ctx context.Context, id string) {
	if err := m.storage.Remove(context.WithoutCancel(ctx), id); err != nil {
		slog.Warn("session_discard_failed", "upload_id", id, "error", err)
		return
	}
	slog.Info("session_discarded", "upload_id", id)
}

func (m *SessionManager) publish(ctx context.Context, branch domain.SessionBranch, session domain.Session) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishSession(ctx, branch, session); err != nil {
		slog.Warn("session_event_publish_failed", "upload_id", session.ID, "branch", string(branch), "error", err)
	}
}

func validSessionID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}
