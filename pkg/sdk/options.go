package booksearch

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type supplement struct {
	path    string
	columns []string
}

type clientConfig struct {
	corpusPath  string
	supplements []supplement
	idColumn    string
	renames     map[string]string

	embedder      Embedder
	model         string
	maxInputWords int

	corpusVocabulary bool
	timeout          time.Duration
	evalWorkers      int

	cacheDriver   string // "memory", "redis" or "" (no cache)
	cacheAddrs    []string
	cachePassword string
	cacheMaxBytes int64
	cacheTTL      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithCorpusFile sets the catalog file (.csv, .tsv or .parquet). Required.
func WithCorpusFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.corpusPath = path
	})
}

// WithSupplement joins extra summary columns from another file by Title.
// Catalog rows without a matching title are dropped.
func WithSupplement(path string, columns ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.supplements = append(c.supplements, supplement{path: path, columns: columns})
	})
}

// WithIDColumn takes document IDs from a column instead of row positions.
func WithIDColumn(column string) Option {
	return optionFunc(func(c *clientConfig) {
		c.idColumn = column
	})
}

// WithRenames maps source column names onto catalog names before loading.
func WithRenames(renames map[string]string) Option {
	return optionFunc(func(c *clientConfig) {
		c.renames = renames
	})
}

// WithEmbedder enables semantic_similarity. model scopes cached vectors,
// so switching encoders never serves stale embeddings.
func WithEmbedder(e Embedder, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
		c.model = model
	})
}

// WithMaxInputWords clips texts to the encoder window before embedding.
// Default: 512. Zero or less disables clipping.
func WithMaxInputWords(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxInputWords = n
	})
}

// WithCorpusVocabulary fits lexical TF-IDF on the prompt plus the searched column
// instead of the prompt alone.
func WithCorpusVocabulary() Option {
	return optionFunc(func(c *clientConfig) {
		c.corpusVocabulary = true
	})
}

// WithTimeout bounds every query. Default: no bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithEvaluationWorkers sets how many validation prompts run at once. Default: 4.
func WithEvaluationWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.evalWorkers = n
	})
}

// WithMemoryCache caches embeddings in process, bounded by maxBytes.
func WithMemoryCache(maxBytes int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDriver = "memory"
		c.cacheMaxBytes = maxBytes
	})
}

// WithRedisCache caches embeddings in Redis. ttl zero keeps entries until evicted.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDriver = "redis"
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
		c.cacheTTL = ttl
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
