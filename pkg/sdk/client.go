package booksearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/app"
	"github.com/brycewhit13/booksearch/internal/config"
	"github.com/brycewhit13/booksearch/internal/db"
	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	"github.com/brycewhit13/booksearch/internal/matcher"
	"github.com/brycewhit13/booksearch/internal/repository/embcache"
	evaluationuc "github.com/brycewhit13/booksearch/internal/usecase/evaluation"
	healthuc "github.com/brycewhit13/booksearch/internal/usecase/health"
	queryuc "github.com/brycewhit13/booksearch/internal/usecase/query"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultMaxInputWords    = 512
)

// Internal interfaces for substitution in tests.
type queryUseCase interface {
	Query(ctx context.Context, req *request.Request) (result.Set, error)
	Corpus() *corpus.Corpus
	ReplaceCorpus(c *corpus.Corpus)
}

type evaluationUseCase interface {
	Evaluate(ctx context.Context, prompts, fields []string, strat strategy.Strategy) (evaluationuc.Report, error)
}

// Client is the booksearch SDK entry point.
type Client struct {
	cfg        *clientConfig
	store      db.Store
	memo       *embcache.ColumnMemo
	querySvc   queryUseCase
	evalSvc    evaluationUseCase
	evalClose  func()
	healthSvc  healthUseCase
	strategies []strategy.Strategy
	obs        *observer
}

// New loads the catalog and creates a Client.
// The provided context is used for the cache readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{maxInputWords: defaultMaxInputWords}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.corpusPath == "" {
		return nil, errors.New("booksearch: corpus file required (use WithCorpusFile)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	c, err := app.LoadCorpus(cfg.corpusConfig())
	if err != nil {
		return nil, fmt.Errorf("booksearch: %w", err)
	}

	var store db.Store
	if cfg.cacheDriver != "" && cfg.embedder != nil {
		store, err = app.NewCache(ctx, cfg.cacheConfig(), zap.NewNop())
		if err != nil {
			return nil, fmt.Errorf("booksearch: %w", err)
		}
	}

	client, err := wireClient(c, store, cfg, obs)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return client, nil
}

func (cfg *clientConfig) corpusConfig() config.CorpusConfig {
	cc := config.CorpusConfig{
		Path:     cfg.corpusPath,
		IDColumn: cfg.idColumn,
		Renames:  cfg.renames,
		DedupeBy: corpus.FieldTitle,
		Require:  corpus.FieldSummary,
	}
	for _, s := range cfg.supplements {
		cc.Supplements = append(cc.Supplements, config.SupplementConfig{Path: s.path, Columns: s.columns})
	}
	return cc
}

func (cfg *clientConfig) cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Driver:           cfg.cacheDriver,
		Addrs:            cfg.cacheAddrs,
		Password:         cfg.cachePassword,
		TTLSec:           int(cfg.cacheTTL / time.Second),
		MaxBytes:         cfg.cacheMaxBytes,
		ReadinessTimeout: int(defaultReadinessTimeout / time.Second),
	}
}

func wireClient(c *corpus.Corpus, store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	nop := zap.NewNop()

	// Embedder: nil unless configured (semantic_similarity stays unregistered)
	var domEmb domain.Embedder
	var memo *embcache.ColumnMemo
	if cfg.embedder != nil {
		domEmb = adaptEmbedder(cfg.embedder)
		if store != nil {
			domEmb = embcache.New(domEmb, cfg.model, store, nil, nop)
		}
		domEmb = domain.NewTruncatingEmbedder(domEmb, cfg.maxInputWords)

		var err error
		if memo, err = embcache.NewColumnMemo(0, nil); err != nil {
			return nil, fmt.Errorf("booksearch: %w", err)
		}
	}

	queryCfg := config.QueryConfig{LexicalVocabulary: string(matcher.VocabularyPrompt)}
	if cfg.corpusVocabulary {
		queryCfg.LexicalVocabulary = string(matcher.VocabularyCorpus)
	}

	var columns matcher.ColumnCache
	if memo != nil {
		columns = memo
	}
	matchers, err := app.NewMatchers(queryCfg, domEmb, cfg.model, columns, nop)
	if err != nil {
		return nil, fmt.Errorf("booksearch: %w", err)
	}

	querySvc := queryuc.New(c, matchers, nop).WithTimeout(cfg.timeout)
	if memo != nil {
		querySvc = querySvc.WithInvalidator(memo)
	}

	evalSvc, err := evaluationuc.New(querySvc, cfg.evalWorkers, nop)
	if err != nil {
		return nil, fmt.Errorf("booksearch: %w", err)
	}

	// Pass nil interfaces (not typed nil pointers) for absent components
	var cache healthuc.CachePinger
	if store != nil {
		cache = store
	}
	var emb healthuc.EmbeddingChecker
	if hc, ok := domEmb.(domain.HealthChecker); ok {
		emb = hc
	}

	return &Client{
		cfg:        cfg,
		store:      store,
		memo:       memo,
		querySvc:   querySvc,
		evalSvc:    evalSvc,
		evalClose:  evalSvc.Close,
		healthSvc:  healthuc.New(querySvc, cache, emb),
		strategies: matchers.Strategies(),
		obs:        obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.evalClose != nil {
		c.evalClose()
	}
	if c.memo != nil {
		c.memo.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Reload reads the catalog files again and swaps the corpus for subsequent queries.
// On failure the current corpus stays in place.
func (c *Client) Reload(_ context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("corpus.reload", start, err) }()

	next, err := app.LoadCorpus(c.cfg.corpusConfig())
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	c.querySvc.ReplaceCorpus(next)
	return nil
}

// Corpus describes the loaded catalog.
func (c *Client) Corpus() CorpusInfo {
	cur := c.querySvc.Corpus()
	strategies := make([]Strategy, len(c.strategies))
	for i, s := range c.strategies {
		strategies[i] = Strategy(s)
	}
	return CorpusInfo{
		Documents:  cur.Len(),
		Schema:     cur.Schema(),
		Strategies: strategies,
	}
}

// adaptEmbedder wraps a public Embedder to satisfy the internal interfaces,
// keeping the native batch endpoint when the embedder has one.
func adaptEmbedder(e Embedder) domain.Embedder {
	if be, ok := e.(BatchEmbedder); ok {
		return &batchEmbedderAdapter{embedderAdapter: embedderAdapter{inner: e}, batch: be}
	}
	return &embedderAdapter{inner: e}
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// HealthCheck forwards to the wrapped embedder when it implements HealthChecker.
func (a *embedderAdapter) HealthCheck(ctx context.Context) error {
	hc, ok := a.inner.(HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedder health: %w", err)
	}
	return nil
}

type batchEmbedderAdapter struct {
	embedderAdapter
	batch BatchEmbedder
}

func (a *batchEmbedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	r, err := a.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
