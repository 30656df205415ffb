// Package app assembles the booksearch components from configuration.
// Both the HTTP server and the CLI build their object graph here.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/config"
	"github.com/brycewhit13/booksearch/internal/db"
	dbMemory "github.com/brycewhit13/booksearch/internal/db/memory"
	dbRedis "github.com/brycewhit13/booksearch/internal/db/redis"
	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	"github.com/brycewhit13/booksearch/internal/loader"
	"github.com/brycewhit13/booksearch/internal/matcher"
	"github.com/brycewhit13/booksearch/internal/metrics"
	"github.com/brycewhit13/booksearch/internal/repository/embcache"
	bedrockEmb "github.com/brycewhit13/booksearch/internal/transport/bedrock"
	openaiEmb "github.com/brycewhit13/booksearch/internal/transport/openai"
	embeddinguc "github.com/brycewhit13/booksearch/internal/usecase/embedding"
)

// LoadCorpus reads the catalog, joins the configured summary tables on the dedupe column
// and applies the cleaning policy.
func LoadCorpus(cfg config.CorpusConfig) (*corpus.Corpus, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: corpus path is required", domain.ErrInvalidCorpus)
	}
	base, err := loader.ReadTable(cfg.Path)
	if err != nil {
		return nil, err
	}

	if len(cfg.Supplements) > 0 {
		sups := make([]loader.Supplement, 0, len(cfg.Supplements))
		for _, sc := range cfg.Supplements {
			t, err := loader.ReadTable(sc.Path)
			if err != nil {
				return nil, err
			}
			sups = append(sups, loader.Supplement{Table: t, Columns: sc.Columns})
		}
		if base, err = loader.Merge(base, cfg.DedupeBy, sups...); err != nil {
			return nil, fmt.Errorf("merge summaries: %w", err)
		}
	}

	c, err := loader.Build(base, loader.Options{
		IDColumn: cfg.IDColumn,
		Renames:  cfg.Renames,
		DedupeBy: cfg.DedupeBy,
		Require:  cfg.Require,
	})
	if err != nil {
		return nil, fmt.Errorf("build corpus from %s: %w", cfg.Path, err)
	}
	return c, nil
}

// NewCache creates the embedding cache store. The "none" driver returns a nil store.
func NewCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	ttl := time.Duration(cfg.TTLSec) * time.Second
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "memory":
		store, err = dbMemory.NewStore(dbMemory.Config{MaxBytes: cfg.MaxBytes, TTL: ttl})
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
			TTL:      ttl,
		})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", cfg.Driver, err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s cache not ready: %w", cfg.Driver, err)
	}
	logger.Info("Embedding cache ready", zap.String("driver", cfg.Driver), zap.Strings("addrs", cfg.Addrs))
	return store, nil
}

// Embedder is the assembled semantic encoder and the pool its chunks run on.
type Embedder struct {
	domain.Embedder
	pool *ants.Pool
}

// Close releases the chunk pool.
func (e *Embedder) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// NewEmbedder assembles the decorator chain: provider -> cached -> instrumented -> truncating.
// Truncation is outermost so cache keys are computed on the text the encoder actually sees.
// The "none" provider returns nil. store may be nil.
func NewEmbedder(
	ctx context.Context, cfg config.EmbeddingConfig, store db.KVStore, logger *zap.Logger,
) (*Embedder, error) {
	var base domain.Embedder
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai":
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			User:       cfg.OpenAI.User,
			Provider:   cfg.Provider,
			Logger:     logger,
		})
	case "bedrock":
		b, err := bedrockEmb.NewEmbedder(ctx, &bedrockEmb.Config{
			Region:     cfg.Bedrock.Region,
			ModelID:    cfg.Model,
			Dimensions: cfg.Dimensions,
			Normalize:  cfg.Bedrock.Normalize,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create bedrock embedder: %w", err)
		}
		base = b
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	embedder := base
	if store != nil {
		embedder = embcache.New(base, cfg.Model, store, metrics.EmbeddingCacheTotal, logger)
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, cfg.BatchSize, pool, logger)

	return &Embedder{
		Embedder: domain.NewTruncatingEmbedder(embedder, cfg.MaxInputWords),
		pool:     pool,
	}, nil
}

// NewMatchers registers a matcher per available strategy. Without an embedder the semantic
// strategy stays unregistered and queries for it fail with ErrUnknownStrategy.
func NewMatchers(
	cfg config.QueryConfig, embedder domain.Embedder, model string,
	columns matcher.ColumnCache, logger *zap.Logger,
) (*matcher.Registry, error) {
	lexical, err := matcher.NewLexical(matcher.Vocabulary(cfg.LexicalVocabulary))
	if err != nil {
		return nil, fmt.Errorf("create lexical matcher: %w", err)
	}

	reg := matcher.NewRegistry().
		Register(strategy.Keyword, matcher.NewKeyword()).
		Register(strategy.Lexical, lexical)
	if embedder != nil {
		reg.Register(strategy.Semantic, matcher.NewSemantic(embedder, model, columns, logger))
	}
	return reg, nil
}
