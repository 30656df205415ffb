package matcher

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
)

// buildCorpus creates a corpus whose documents carry the given summaries. nil means absent.
func buildCorpus(t *testing.T, summaries ...*string) *corpus.Corpus {
	t.Helper()
	docs := make([]corpus.Document, len(summaries))
	for i, s := range summaries {
		d, err := corpus.New(strconv.Itoa(i), map[string]*string{
			corpus.FieldTitle:   corpus.Some("Book " + strconv.Itoa(i)),
			corpus.FieldSummary: s,
		})
		if err != nil {
			t.Fatalf("corpus.New: %v", err)
		}
		docs[i] = d
	}
	c, err := corpus.NewCorpus(corpus.DefaultSchema(), docs)
	if err != nil {
		t.Fatalf("corpus.NewCorpus: %v", err)
	}
	return c
}

func some(s string) *string { return corpus.Some(s) }

// mockEmbedder maps texts to fixed vectors and counts provider calls.
type mockEmbedder struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	fallback   []float32
	err        error
	tokens     int
	dropOne    bool
	batchCalls int
	embedCalls int
}

func (m *mockEmbedder) vectorFor(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	return m.fallback
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vectorFor(text), TotalTokens: m.tokens}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, m.vectorFor(t))
	}
	if m.dropOne && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: m.tokens * len(texts)}, nil
}

// mapColumnCache is an in-memory ColumnCache.
type mapColumnCache struct {
	data map[string][][]float32
}

func newMapColumnCache() *mapColumnCache {
	return &mapColumnCache{data: make(map[string][][]float32)}
}

func (c *mapColumnCache) Get(key string) ([][]float32, bool) {
	v, ok := c.data[key]
	return v, ok
}

func (c *mapColumnCache) Set(key string, vectors [][]float32) { c.data[key] = vectors }
