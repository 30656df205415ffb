package matcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/vector"
)

// ColumnCache memoizes the document embeddings of one corpus field.
// Keys combine the encoder model with the field fingerprint, so a changed corpus misses.
type ColumnCache interface {
	Get(key string) ([][]float32, bool)
	Set(key string, vectors [][]float32)
}

// Semantic scores cosine similarity between contextual embeddings of the prompt and each document.
type Semantic struct {
	embedder domain.Embedder
	model    string
	columns  ColumnCache
	logger   *zap.Logger
}

// NewSemantic creates a semantic matcher. embedder is expected to truncate its inputs to the
// encoder window (see domain.TruncatingEmbedder). columns may be nil.
func NewSemantic(embedder domain.Embedder, model string, columns ColumnCache, logger *zap.Logger) *Semantic {
	return &Semantic{embedder: embedder, model: model, columns: columns, logger: logger}
}

// Score implements Matcher. Scores lie in [-1, 1]. Absent fields, and documents whose embedding
// has zero magnitude, score Undefined. Any provider failure aborts the whole call.
func (s *Semantic) Score(ctx context.Context, prompt string, c *corpus.Corpus, field string) ([]score.Score, error) {
	column := c.Column(field)
	texts := make([]string, 0, len(column))
	for _, v := range column {
		if v != nil {
			texts = append(texts, *v)
		}
	}

	query, docs, err := s.embed(ctx, prompt, texts, s.model+"|"+c.Fingerprint(field))
	if err != nil {
		return nil, err
	}

	scores := make([]score.Score, len(column))
	next := 0
	for i, v := range column {
		if v == nil {
			scores[i] = score.Undefined()
			continue
		}
		sim, err := vector.CosineSimilarity(query, docs[next])
		next++
		switch {
		case errors.Is(err, vector.ErrZeroMagnitude):
			scores[i] = score.Undefined()
		case err != nil:
			return nil, providerError(fmt.Errorf("document %q: %w", c.At(i).ID(), err))
		default:
			scores[i] = score.Of(sim)
		}
	}
	return scores, nil
}

// embed returns the prompt vector and one vector per text. On a column cache miss the prompt
// and the texts go to the provider in a single batch.
func (s *Semantic) embed(ctx context.Context, prompt string, texts []string, key string) ([]float32, [][]float32, error) {
	if s.columns != nil {
		if docs, ok := s.columns.Get(key); ok && len(docs) == len(texts) {
			s.logger.Debug("Column embeddings reused", zap.String("key", key), zap.Int("documents", len(docs)))
			res, err := s.embedder.Embed(ctx, prompt)
			if err != nil {
				return nil, nil, providerError(fmt.Errorf("embed prompt: %w", err))
			}
			domain.UsageFromContext(ctx).Add(1, res.TotalTokens)
			if err := checkPrompt(res.Embedding); err != nil {
				return nil, nil, err
			}
			return res.Embedding, docs, nil
		}
	}

	inputs := make([]string, 0, len(texts)+1)
	inputs = append(inputs, prompt)
	inputs = append(inputs, texts...)

	res, err := domain.EmbedAll(ctx, s.embedder, inputs)
	if err != nil {
		return nil, nil, providerError(err)
	}
	domain.UsageFromContext(ctx).Add(len(inputs), res.TotalTokens)

	if len(res.Embeddings) != len(inputs) {
		return nil, nil, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(inputs), len(res.Embeddings), domain.ErrEmbeddingProviderError)
	}
	query, docs := res.Embeddings[0], res.Embeddings[1:]
	if err := checkPrompt(query); err != nil {
		return nil, nil, err
	}

	// A column with stray dimensions fails scoring and is not kept.
	if s.columns != nil && sameDimensions(query, docs) {
		s.columns.Set(key, docs)
	}
	return query, docs, nil
}

func checkPrompt(query []float32) error {
	if len(query) == 0 {
		return fmt.Errorf("empty prompt embedding: %w", domain.ErrEmbeddingProviderError)
	}
	return nil
}

func sameDimensions(query []float32, docs [][]float32) bool {
	for _, d := range docs {
		if len(d) != len(query) {
			return false
		}
	}
	return true
}

// providerError tags err as an embedding provider failure unless it already is one
// or it is a context error, which the caller maps on its own.
func providerError(err error) error {
	if errors.Is(err, domain.ErrEmbeddingProviderError) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
}
