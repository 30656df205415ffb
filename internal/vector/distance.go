package vector

import (
	"errors"
	"fmt"
	"math"
)

// ErrZeroMagnitude is returned when a cosine similarity operand has no direction.
var ErrZeroMagnitude = errors.New("vector: cosine similarity with zero-magnitude vector")

// CosineSimilarity computes the cosine similarity between two embeddings. It
// returns an error if the vectors have different lengths or are empty, and
// ErrZeroMagnitude if either vector has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: cosine similarity dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vector: cosine similarity on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, ErrZeroMagnitude
	}
	return clamp(dot / (math.Sqrt(na2) * math.Sqrt(nb2))), nil
}

// clamp absorbs floating point drift past the [-1, 1] bounds.
func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
