package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
	"github.com/kirillkom/pdf-qa/internal/core/ports"
)

const defaultEmbedBatchSize = 8

// EmbeddingGateway batches texts for the embedding provider and checks that
// every batch comes back with one vector per input, in order.
type EmbeddingGateway struct {
	embedder  ports.Embedder
	batchSize int
}

func NewEmbeddingGateway(embedder ports.Embedder, batchSize int) *EmbeddingGateway {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &EmbeddingGateway{
		embedder:  embedder,
		batchSize: batchSize,
	}
}

func (g *EmbeddingGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start, batchNo := 0, 1; start < len(texts); start, batchNo = start+g.batchSize, batchNo+1 {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		operation := fmt.Sprintf("embed batch %d", batchNo)

		vectors, err := g.embedder.Embed(ctx, batch)
		if err != nil {
			if domain.IsKind(err, domain.ErrEmbeddingProvider) {
				return nil, fmt.Errorf("%s: %w", operation, err)
			}
			return nil, domain.WrapError(domain.ErrEmbeddingProvider, operation, err)
		}
		if len(vectors) != len(batch) {
			return nil, domain.WrapError(
				domain.ErrEmbeddingProvider,
				operation,
				fmt.Errorf("vectors/inputs mismatch: %d/%d", len(vectors), len(batch)),
			)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (g *EmbeddingGateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
