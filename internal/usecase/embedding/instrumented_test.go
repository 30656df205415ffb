package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
)

// mockEmbedder encodes each numeric text as a one-element vector so ordering can be checked.
type mockEmbedder struct {
	mu         sync.Mutex
	result     domain.EmbeddingResult
	err        error
	batchErr   error
	short      bool
	batchCalls int
	batchSizes []int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	m.mu.Unlock()

	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		n, err := strconv.Atoi(text)
		if err != nil {
			embeddings[i] = m.result.Embedding
			continue
		}
		embeddings[i] = []float32{float32(n)}
	}
	if m.short {
		embeddings = embeddings[1:]
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: len(texts),
		TotalTokens:  len(texts),
	}, nil
}

// plainMockEmbedder implements only Embedder, not BatchEmbedder.
type plainMockEmbedder struct {
	result domain.EmbeddingResult
	calls  int
}

func (m *plainMockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, nil
}

func numbered(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}
	return texts
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.1, 0.2, 0.3},
		TotalTokens: 7,
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", 0, nil, zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
	if result.TotalTokens != 7 {
		t.Errorf("expected 7 total tokens, got %d", result.TotalTokens)
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	innerErr := fmt.Errorf("api error")
	p := NewInstrumentedEmbedder(&mockEmbedder{err: innerErr}, "test-err", "test-model-e", 0, nil, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Fatalf("expected wrapped inner error, got %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_SingleChunk(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test-batch", "test-model-b", 0, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), numbered(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 batch call, got %d", inner.batchCalls)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_Empty(t *testing.T) {
	p := NewInstrumentedEmbedder(&mockEmbedder{}, "test", "test-model", 0, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil {
		t.Errorf("expected nil for empty input")
	}
}

func TestInstrumentedEmbedder_BatchEmbed_ChunksSequential(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test-seq", "model", 4, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), numbered(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 3 {
		t.Fatalf("expected 3 chunk calls, got %d", inner.batchCalls)
	}
	for i, v := range res.Embeddings {
		if int(v[0]) != i {
			t.Fatalf("embedding %d out of order: got %v", i, v)
		}
	}
	if res.TotalTokens != 10 {
		t.Errorf("expected 10 total tokens, got %d", res.TotalTokens)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_ChunksParallelKeepOrder(t *testing.T) {
	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Release()

	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test-par", "model", 3, pool, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), numbered(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 20 {
		t.Fatalf("expected 20 embeddings, got %d", len(res.Embeddings))
	}
	for i, v := range res.Embeddings {
		if int(v[0]) != i {
			t.Fatalf("embedding %d out of order: got %v", i, v)
		}
	}
	if inner.batchCalls != 7 {
		t.Errorf("expected 7 chunk calls, got %d", inner.batchCalls)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_InnerError(t *testing.T) {
	pool, err := ants.NewPool(2)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Release()

	innerErr := fmt.Errorf("api error")
	p := NewInstrumentedEmbedder(&mockEmbedder{batchErr: innerErr}, "test-err", "model", 2, pool, zap.NewNop())

	_, err = p.BatchEmbed(context.Background(), numbered(5))
	if !errors.Is(err, innerErr) {
		t.Fatalf("expected wrapped inner error, got %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	p := NewInstrumentedEmbedder(&mockEmbedder{short: true}, "test-short", "model", 0, nil, zap.NewNop())

	_, err := p.BatchEmbed(context.Background(), numbered(3))
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_FallbackToSingle(t *testing.T) {
	inner := &plainMockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1},
		PromptTokens: 5,
		TotalTokens:  5,
	}}
	p := NewInstrumentedEmbedder(inner, "test-fb", "model", 0, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 fallback Embed calls, got %d", inner.calls)
	}
	if res.TotalTokens != 10 {
		t.Errorf("expected 10 total tokens, got %d", res.TotalTokens)
	}
}
