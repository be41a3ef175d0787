package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

type batchEmbedderFake struct {
	batches  [][]string
	failCall int
	short    bool
}

func (f *batchEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failCall > 0 && len(f.batches) == f.failCall {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	if f.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func numberedTexts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%0*d", i+1, 0)
	}
	return out
}

func TestEmbeddingGatewayBatchesInOrder(t *testing.T) {
	embedder := &batchEmbedderFake{}
	gateway := NewEmbeddingGateway(embedder, 8)

	input := numberedTexts(19)
	vectors, err := gateway.Embed(context.Background(), input)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(embedder.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(embedder.batches))
	}
	if len(embedder.batches[0]) != 8 || len(embedder.batches[1]) != 8 || len(embedder.batches[2]) != 3 {
		t.Fatalf("unexpected batch sizes: %d/%d/%d", len(embedder.batches[0]), len(embedder.batches[1]), len(embedder.batches[2]))
	}
	if len(vectors) != len(input) {
		t.Fatalf("expected %d vectors, got %d", len(input), len(vectors))
	}
	for i, vector := range vectors {
		if int(vector[0]) != len(input[i]) {
			t.Fatalf("vector %d out of order: %v", i, vector)
		}
	}
}

func TestEmbeddingGatewayDefaultBatchSize(t *testing.T) {
	embedder := &batchEmbedderFake{}
	gateway := NewEmbeddingGateway(embedder, 0)

	if _, err := gateway.Embed(context.Background(), numberedTexts(9)); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(embedder.batches) != 2 || len(embedder.batches[0]) != defaultEmbedBatchSize {
		t.Fatalf("expected default batch size %d, got %v", defaultEmbedBatchSize, embedder.batches)
	}
}

func TestEmbeddingGatewayEmptyInput(t *testing.T) {
	embedder := &batchEmbedderFake{}
	vectors, err := NewEmbeddingGateway(embedder, 8).Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 0 || len(embedder.batches) != 0 {
		t.Fatalf("expected no provider calls, got %d", len(embedder.batches))
	}
}

func TestEmbeddingGatewaySecondBatchFailureFailsWhole(t *testing.T) {
	embedder := &batchEmbedderFake{failCall: 2}
	vectors, err := NewEmbeddingGateway(embedder, 2).Embed(context.Background(), numberedTexts(5))
	if err == nil {
		t.Fatalf("expected error")
	}
	if vectors != nil {
		t.Fatalf("expected no partial vectors, got %d", len(vectors))
	}
	if !domain.IsKind(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected embedding provider error, got %v", err)
	}
	if len(embedder.batches) != 2 {
		t.Fatalf("expected to stop after failing batch, got %d calls", len(embedder.batches))
	}
}

func TestEmbeddingGatewayCountMismatch(t *testing.T) {
	_, err := NewEmbeddingGateway(&batchEmbedderFake{short: true}, 4).Embed(context.Background(), numberedTexts(3))
	if !domain.IsKind(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected embedding provider error, got %v", err)
	}
}

func TestEmbeddingGatewayEmbedOne(t *testing.T) {
	vector, err := NewEmbeddingGateway(&batchEmbedderFake{}, 8).EmbedOne(context.Background(), "abc")
	if err != nil {
		t.Fatalf("EmbedOne() error = %v", err)
	}
	if len(vector) != 1 || vector[0] != 3 {
		t.Fatalf("unexpected vector %v", vector)
	}
}
