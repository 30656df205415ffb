package vector

import (
	"errors"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{1, 0}
	d := []float32{-1, 0}

	// Orthogonal vectors -> similarity 0
	if sim, err := CosineSimilarity(a, b); err != nil || sim != 0 {
		t.Fatalf("CosineSimilarity(a,b) = %v, %v; want 0, nil", sim, err)
	}

	// Identical vectors -> similarity 1
	if sim, err := CosineSimilarity(a, c); err != nil || sim != 1 {
		t.Fatalf("CosineSimilarity(a,c) = %v, %v; want 1, nil", sim, err)
	}

	// Opposite vectors -> similarity -1
	if sim, err := CosineSimilarity(a, d); err != nil || sim != -1 {
		t.Fatalf("CosineSimilarity(a,d) = %v, %v; want -1, nil", sim, err)
	}
}

func TestCosineSimilarity_Errors(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, err := CosineSimilarity(nil, nil); err == nil {
		t.Error("expected empty vector error")
	}
	_, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	if !errors.Is(err, ErrZeroMagnitude) {
		t.Errorf("expected ErrZeroMagnitude, got %v", err)
	}
}
