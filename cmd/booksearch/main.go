package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/app"
	"github.com/brycewhit13/booksearch/internal/config"
	"github.com/brycewhit13/booksearch/internal/domain"
	logpkg "github.com/brycewhit13/booksearch/internal/logger"
	"github.com/brycewhit13/booksearch/internal/metrics"
	"github.com/brycewhit13/booksearch/internal/repository/embcache"
	chiTransport "github.com/brycewhit13/booksearch/internal/transport/chi"
	evaluationuc "github.com/brycewhit13/booksearch/internal/usecase/evaluation"
	healthuc "github.com/brycewhit13/booksearch/internal/usecase/health"
	queryuc "github.com/brycewhit13/booksearch/internal/usecase/query"
	"github.com/brycewhit13/booksearch/internal/version"
)

func main() {
	// API keys may live in a local .env file
	_ = godotenv.Load()

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting booksearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("corpus", cfg.Corpus.Path),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterQueryMetrics()

	c, err := app.LoadCorpus(cfg.Corpus)
	if err != nil {
		logger.Fatal("Failed to load corpus", zap.Error(err))
	}
	logger.Info("Corpus loaded", zap.Int("documents", c.Len()), zap.Strings("schema", c.Schema()))

	ctx := context.Background()
	store, err := app.NewCache(ctx, cfg.Cache, logger)
	if err != nil {
		logger.Fatal("Failed to create embedding cache", zap.Error(err))
	}
	if store != nil {
		defer store.Close()
	}

	emb, err := app.NewEmbedder(ctx, cfg.Embedding, store, logger)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}

	// Pass nil interface (not typed nil pointer!) when semantic matching is disabled.
	var embedder domain.Embedder
	if emb != nil {
		defer emb.Close()
		embedder = emb.Embedder
		logger.Info("Embedder created",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Int("max_input_words", cfg.Embedding.MaxInputWords),
		)
	}

	memo, err := embcache.NewColumnMemo(cfg.Cache.ColumnMemoBytes, metrics.ColumnMemoTotal)
	if err != nil {
		logger.Fatal("Failed to create column memo", zap.Error(err))
	}
	defer memo.Close()

	matchers, err := app.NewMatchers(cfg.Query, embedder, cfg.Embedding.Model, memo, logger)
	if err != nil {
		logger.Fatal("Failed to create matchers", zap.Error(err))
	}

	querySvc := queryuc.New(c, matchers, logger).
		WithTimeout(time.Duration(cfg.Query.TimeoutSec) * time.Second).
		WithInvalidator(memo)

	evalSvc, err := evaluationuc.New(querySvc, cfg.Evaluation.Workers, logger)
	if err != nil {
		logger.Fatal("Failed to create evaluation service", zap.Error(err))
	}
	defer evalSvc.Close()

	// store is a nil interface when caching is disabled
	healthSvc := healthuc.New(querySvc, store, embeddingChecker(embedder))

	server := chiTransport.NewServer(querySvc, evalSvc, healthSvc, matchers.Strategies(), logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// SIGHUP reloads the corpus; SIGINT/SIGTERM shut down
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go reloadCorpus(reload, cfg.Corpus, querySvc, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	signal.Stop(reload)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// reloadCorpus swaps in a freshly loaded corpus for every signal. A failed load keeps the current one.
func reloadCorpus(sig <-chan os.Signal, cfg config.CorpusConfig, svc *queryuc.Service, logger *zap.Logger) {
	for range sig {
		c, err := app.LoadCorpus(cfg)
		if err != nil {
			logger.Error("Corpus reload failed, keeping current corpus", zap.Error(err))
			continue
		}
		svc.ReplaceCorpus(c)
	}
}

// embeddingChecker wraps domain.Embedder to implement health.EmbeddingChecker.
func embeddingChecker(embedder domain.Embedder) healthuc.EmbeddingChecker {
	if embedder == nil {
		return nil
	}
	return &embeddingHealthChecker{embedder: embedder}
}

type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
