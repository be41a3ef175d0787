package usecase

import (
	"math"
	"sort"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

const defaultTopK = 5

// CosineSimilarity returns 0 for zero-norm or mismatched-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case score > 1:
		return 1
	case score < -1:
		return -1
	default:
		return score
	}
}

// RankUnits scores every unit against the query and keeps the best topK.
// Equal scores keep page order.
func RankUnits(units []domain.PageUnit, vectors [][]float32, query []float32, topK int, document string) []domain.ScoredUnit {
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > len(units) {
		topK = len(units)
	}

	scored := make([]domain.ScoredUnit, len(units))
	for i, unit := range units {
		var vector []float32
		if i < len(vectors) {
			vector = vectors[i]
		}
		scored[i] = domain.ScoredUnit{
			PageUnit: unit,
			Score:    CosineSimilarity(vector, query),
			Document: document,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored[:topK]
}
