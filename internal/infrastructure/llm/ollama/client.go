package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client

	embedExecutor    *resilience.Executor
	completeExecutor *resilience.Executor
}

type Options struct {
	Timeout time.Duration
	// EmbedExecutor wraps embedding calls; nil calls the provider directly.
	EmbedExecutor *resilience.Executor
	// CompleteExecutor wraps completion calls; nil calls the provider directly.
	CompleteExecutor *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		genModel:         genModel,
		embedModel:       embedModel,
		httpClient:       &http.Client{Timeout: timeout},
		embedExecutor:    options.EmbedExecutor,
		completeExecutor: options.CompleteExecutor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed sends one batch to /api/embed and normalizes the response into one
// vector per input.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var vectors [][]float32
	call := func(callCtx context.Context) error {
		var raw json.RawMessage
		if err := e.client.postJSON(callCtx, "/api/embed", request, &raw, "embed"); err != nil {
			return err
		}
		normalized, err := normalizeEmbeddings(raw)
		if err != nil {
			return err
		}
		vectors = normalized
		return nil
	}

	if err := e.client.execute(ctx, e.client.embedExecutor, "ollama.embed", call); err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingProvider, "ollama embed", err)
	}
	return vectors, nil
}

type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	var answer string
	call := func(callCtx context.Context) error {
		text, err := c.client.generateText(callCtx, prompt)
		if err != nil {
			return err
		}
		answer = text
		return nil
	}

	if err := c.client.execute(ctx, c.client.completeExecutor, "ollama.generate", call); err != nil {
		return "", domain.WrapError(domain.ErrCompletionProvider, "ollama generate", err)
	}
	return answer, nil
}

func (c *Client) execute(ctx context.Context, executor *resilience.Executor, operation string, call func(context.Context) error) error {
	if executor == nil {
		return call(ctx)
	}
	return executor.Execute(ctx, operation, call, classifyOllamaError)
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

var errUnknownEmbeddingShape = errors.New("unrecognized embedding response shape")

// normalizeEmbeddings accepts the /api/embed batch shape, the legacy single
// "embedding" shape and the OpenAI-compatible "data" list.
func normalizeEmbeddings(raw []byte) ([][]float32, error) {
	var envelope struct {
		Embeddings json.RawMessage `json:"embeddings"`
		Embedding  json.RawMessage `json:"embedding"`
		Data       []struct {
			Embedding json.RawMessage `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	switch {
	case present(envelope.Embeddings):
		return decodeVectors(envelope.Embeddings)
	case present(envelope.Embedding):
		return decodeVectors(envelope.Embedding)
	case len(envelope.Data) > 0:
		out := make([][]float32, 0, len(envelope.Data))
		for i, item := range envelope.Data {
			vector, err := decodeVector(item.Embedding)
			if err != nil {
				return nil, fmt.Errorf("data[%d]: %w", i, err)
			}
			out = append(out, vector)
		}
		return out, nil
	default:
		return nil, errUnknownEmbeddingShape
	}
}

// decodeVectors accepts either a list of vectors or one flat vector.
func decodeVectors(raw json.RawMessage) ([][]float32, error) {
	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, errors.New("empty embedding response")
		}
		out := make([][]float32, 0, len(nested))
		for i, values := range nested {
			if len(values) == 0 {
				return nil, fmt.Errorf("vector %d is empty", i)
			}
			out = append(out, toFloat32(values))
		}
		return out, nil
	}

	vector, err := decodeVector(raw)
	if err != nil {
		return nil, err
	}
	return [][]float32{vector}, nil
}

func decodeVector(raw json.RawMessage) ([]float32, error) {
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnknownEmbeddingShape, err)
	}
	if len(values) == 0 {
		return nil, errors.New("empty embedding vector")
	}
	return toFloat32(values), nil
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func present(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
