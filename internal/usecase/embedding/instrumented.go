package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
)

// DefaultMaxAPIBatchSize is the largest batch sent in a single provider request.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder wraps an Embedder with request logging and batch chunking.
// Transport metrics (requests, duration, tokens) are recorded in the transport layer.
// When a pool is set, chunks of one batch are embedded concurrently and reassembled in order.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	provider  string
	model     string
	chunkSize int
	pool      *ants.Pool
	logger    *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with chunking and observability.
// chunkSize <= 0 uses DefaultMaxAPIBatchSize. A nil pool embeds chunks sequentially.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	chunkSize int, pool *ants.Pool, logger *zap.Logger,
) *InstrumentedEmbedder {
	if chunkSize <= 0 {
		chunkSize = DefaultMaxAPIBatchSize
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		provider:  provider,
		model:     model,
		chunkSize: chunkSize,
		pool:      pool,
		logger:    logger,
	}
}

// Embed delegates to the inner embedder and logs the outcome.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed splits texts into provider-sized chunks and delegates each to the inner embedder.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	result, err := p.embedChunked(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("instrumented health check: %w", err)
		}
	}
	return nil
}

type chunk struct {
	offset int
	texts  []string
}

func (p *InstrumentedEmbedder) split(texts []string) []chunk {
	chunks := make([]chunk, 0, (len(texts)+p.chunkSize-1)/p.chunkSize)
	for offset := 0; offset < len(texts); offset += p.chunkSize {
		end := min(offset+p.chunkSize, len(texts))
		chunks = append(chunks, chunk{offset: offset, texts: texts[offset:end]})
	}
	return chunks
}

// embedChunked embeds every chunk and concatenates the vectors in input order.
func (p *InstrumentedEmbedder) embedChunked(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	chunks := p.split(texts)
	results := make([]domain.BatchEmbeddingResult, len(chunks))
	errs := make([]error, len(chunks))

	if p.pool == nil || len(chunks) == 1 {
		for i, c := range chunks {
			results[i], errs[i] = p.embedChunk(ctx, c)
			if errs[i] != nil {
				return domain.BatchEmbeddingResult{}, errs[i]
			}
		}
	} else {
		var wg sync.WaitGroup
		for i, c := range chunks {
			wg.Add(1)
			if err := p.pool.Submit(func() {
				defer wg.Done()
				results[i], errs[i] = p.embedChunk(ctx, c)
			}); err != nil {
				wg.Done()
				errs[i] = fmt.Errorf("submit chunk %d: %w", c.offset, err)
			}
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return domain.BatchEmbeddingResult{}, err
			}
		}
	}

	allEmbeddings := make([][]float32, 0, len(texts))
	var totalPrompt, totalTokens int
	for _, r := range results {
		allEmbeddings = append(allEmbeddings, r.Embeddings...)
		totalPrompt += r.PromptTokens
		totalTokens += r.TotalTokens
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   allEmbeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

func (p *InstrumentedEmbedder) embedChunk(ctx context.Context, c chunk) (domain.BatchEmbeddingResult, error) {
	res, err := domain.EmbedAll(ctx, p.inner, c.texts)
	if err != nil {
		p.logger.Error("Batch embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Int("chunk_offset", c.offset),
			zap.Int("chunk_size", len(c.texts)),
			zap.Error(err),
		)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("chunk %d: %w", c.offset, err)
	}
	if len(res.Embeddings) != len(c.texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("chunk %d: %w: expected %d embeddings, got %d",
			c.offset, domain.ErrEmbeddingProviderError, len(c.texts), len(res.Embeddings))
	}
	return res, nil
}
