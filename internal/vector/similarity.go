package vector

import (
	"math"

	"github.com/hyperjump/medsage/internal/models"
)

// Dot returns the dot product of a and b accumulated in float64. Mismatched or empty vectors
// score 0.
func Dot(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i, v := range a {
		sum += float64(v) * float64(b[i])
	}
	return sum
}

// L2Norm returns the Euclidean length of x.
func L2Norm(x []float32) float64 {
	return math.Sqrt(Dot(x, x))
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero length.
func Cosine(a, b []float32) float64 {
	denom := L2Norm(a) * L2Norm(b)
	if denom == 0 {
		return 0
	}
	return Dot(a, b) / denom
}

// BestScore returns the highest hit score, or 0 for no hits.
func BestScore(hits []models.RetrievalHit) float64 {
	if len(hits) == 0 {
		return 0
	}
	best := math.Inf(-1)
	for _, h := range hits {
		best = math.Max(best, h.Score)
	}
	return best
}
