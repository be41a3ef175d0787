package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/resilience"
)

func TestCompleterSendsPrompt(t *testing.T) {
	var capturedPrompt, capturedModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		capturedModel, _ = payload["model"].(string)
		_, _ = w.Write([]byte(`{"response":"  the answer \n"}`))
	}))
	defer server.Close()

	completer := NewCompleter(New(server.URL, "gen", "embed"))
	answer, err := completer.Complete(context.Background(), "context and question?")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("expected trimmed answer, got %q", answer)
	}
	if capturedPrompt != "context and question?" || capturedModel != "gen" {
		t.Fatalf("unexpected request prompt=%q model=%q", capturedPrompt, capturedModel)
	}
}

func TestCompleterDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1, BreakerEnabled: false})
	client := NewWithOptions(server.URL, "gen", "embed", Options{CompleteExecutor: executor})
	_, err := NewCompleter(client).Complete(context.Background(), "p")
	if !domain.IsKind(err, domain.ErrCompletionProvider) {
		t.Fatalf("expected completion provider error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed"))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected embedding provider kind, got %v", err)
	}
}

func TestEmbedRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0],[0,1]]}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	})
	client := NewWithOptions(server.URL, "gen", "embed", Options{EmbedExecutor: executor})
	vectors, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestNormalizeEmbeddingsShapes(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		vectors int
		dim     int
	}{
		{name: "batch", body: `{"embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`, vectors: 2, dim: 3},
		{name: "legacy single", body: `{"embedding":[0.1,0.2]}`, vectors: 1, dim: 2},
		{name: "flat under embeddings", body: `{"embeddings":[1,2,3,4]}`, vectors: 1, dim: 4},
		{name: "openai data", body: `{"data":[{"embedding":[1,2]},{"embedding":[3,4]}]}`, vectors: 2, dim: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vectors, err := normalizeEmbeddings([]byte(tc.body))
			if err != nil {
				t.Fatalf("normalizeEmbeddings() error = %v", err)
			}
			if len(vectors) != tc.vectors {
				t.Fatalf("expected %d vectors, got %d", tc.vectors, len(vectors))
			}
			for _, v := range vectors {
				if len(v) != tc.dim {
					t.Fatalf("expected dim %d, got %d", tc.dim, len(v))
				}
			}
		})
	}
}

func TestNormalizeEmbeddingsRejectsUnknownShapes(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"embeddings":null}`,
		`{"embeddings":[["a","b"]]}`,
		`{"embedding":[]}`,
		`{"data":[{"embedding":{"x":1}}]}`,
		`[1,2,3]`,
	} {
		if _, err := normalizeEmbeddings([]byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}
