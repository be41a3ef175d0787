package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/resilience"
)

// SessionEvent is the payload published for session lifecycle transitions.
type SessionEvent struct {
	Type       string    `json:"type"`
	UploadID   string    `json:"uploadId"`
	Documents  []string  `json:"documents"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	ResilienceExecutor *resilience.Executor
}

func New(url, subject string) (*Publisher, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("pdf-qa"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) PublishSession(ctx context.Context, branch domain.SessionBranch, session domain.Session) error {
	payload, err := json.Marshal(newSessionEvent(branch, session, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := p.conn.Publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if p.executor != nil {
		return p.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	}
	return call(ctx)
}

func newSessionEvent(branch domain.SessionBranch, session domain.Session, at time.Time) SessionEvent {
	eventType := "session.resolved"
	if branch == domain.BranchNewUpload {
		eventType = "session.created"
	}
	names := make([]string, 0, len(session.Documents))
	for _, doc := range session.Documents {
		names = append(names, doc.DisplayName)
	}
	return SessionEvent{
		Type:       eventType,
		UploadID:   session.ID,
		Documents:  names,
		OccurredAt: at,
	}
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) PublishSession(context.Context, domain.SessionBranch, domain.Session) error { return nil }
