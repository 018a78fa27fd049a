// Package similarity scores how close two embedding vectors are.
package similarity

import (
	"fmt"
	"math"

	"github.com/longregen/reprompt/internal/domain"
)

// Score returns the cosine similarity of a and b clamped to [0,1].
// A zero-magnitude vector scores 0. Vectors of different length fail
// with domain.ErrDimensionMismatch.
func Score(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", domain.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return clamp(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
