package query

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	"github.com/brycewhit13/booksearch/internal/metrics"
	"github.com/brycewhit13/booksearch/internal/ranking"
	"github.com/brycewhit13/booksearch/internal/tokenizer"
)

// Service answers prompts against the current corpus.
// Queries are independent: nothing a query computes is written back onto the corpus.
type Service struct {
	corpus       atomic.Pointer[corpus.Corpus]
	matchers     MatcherLookup
	invalidators []ColumnInvalidator
	timeout      time.Duration
	logger       *zap.Logger
}

// New creates a query service over c.
func New(c *corpus.Corpus, matchers MatcherLookup, logger *zap.Logger) *Service {
	s := &Service{matchers: matchers, logger: logger}
	s.corpus.Store(c)
	metrics.CorpusDocuments.Set(float64(c.Len()))
	return s
}

// WithTimeout bounds every query. Zero disables the bound; the caller's context still applies.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// WithInvalidator registers state to clear on ReplaceCorpus.
func (s *Service) WithInvalidator(inv ColumnInvalidator) *Service {
	s.invalidators = append(s.invalidators, inv)
	return s
}

// Corpus returns the corpus queries currently run against.
func (s *Service) Corpus() *corpus.Corpus { return s.corpus.Load() }

// CorpusSize returns the number of documents in the current corpus.
func (s *Service) CorpusSize() int { return s.corpus.Load().Len() }

// ReplaceCorpus swaps the corpus for subsequent queries. In-flight queries finish on the old one.
func (s *Service) ReplaceCorpus(c *corpus.Corpus) {
	s.corpus.Store(c)
	for _, inv := range s.invalidators {
		inv.Clear()
	}
	metrics.CorpusDocuments.Set(float64(c.Len()))
	s.logger.Info("Corpus replaced", zap.Int("documents", c.Len()))
}

// Query scores every document, ranks them, and returns the top K with the full scored view.
func (s *Service) Query(ctx context.Context, req *request.Request) (result.Set, error) {
	start := time.Now()

	set, err := s.query(ctx, req, start)
	duration := time.Since(start)

	outcome := outcomeOf(err)
	metrics.QueryTotal.WithLabelValues(string(req.Strategy()), outcome).Inc()
	metrics.QueryDuration.WithLabelValues(string(req.Strategy())).Observe(duration.Seconds())

	if err != nil {
		s.logger.Warn("Query failed",
			zap.String("strategy", string(req.Strategy())),
			zap.String("field", req.Field()),
			zap.String("outcome", outcome),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return result.Set{}, err
	}

	s.logger.Debug("Query completed",
		zap.String("query_id", set.QueryID()),
		zap.String("strategy", string(req.Strategy())),
		zap.String("field", req.Field()),
		zap.Int("top_k", req.TopK()),
		zap.Int("total_scored", set.TotalScored()),
		zap.Int("returned", len(set.Documents())),
		zap.Duration("duration", duration),
	)
	return set, nil
}

func (s *Service) query(ctx context.Context, req *request.Request, start time.Time) (result.Set, error) {
	c := s.corpus.Load()
	if !c.HasField(req.Field()) {
		return result.Set{}, domain.NewUnknownField(req.Field())
	}

	m, err := s.matchers.Lookup(req.Strategy())
	if err != nil {
		return result.Set{}, fmt.Errorf("lookup matcher: %w", err)
	}

	if req.Strategy() == strategy.Keyword && len(tokenizer.Tokenize(req.Prompt())) == 0 {
		return result.Set{}, domain.NewInvalidPrompt("prompt has no searchable terms")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	scores, err := m.Score(ctx, req.Prompt(), c, req.Field())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result.Set{}, fmt.Errorf("%w after %s: %w", domain.ErrQueryTimeout,
				time.Since(start).Round(time.Millisecond), err)
		}
		return result.Set{}, fmt.Errorf("score %s: %w", req.Strategy(), err)
	}
	if len(scores) != c.Len() {
		return result.Set{}, fmt.Errorf("matcher %s returned %d scores for %d documents",
			req.Strategy(), len(scores), c.Len())
	}

	scored := make([]result.Scored, c.Len())
	for i := range scores {
		scored[i] = result.NewScored(c.At(i), i, scores[i])
	}
	ranked := ranking.Rank(scored, req.Order(), req.TopK())

	return result.NewSet(uuid.NewString(), req.Strategy(), req.Field(), ranked, scored, time.Since(start)), nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrQueryTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return "provider_error"
	case errors.Is(err, domain.ErrInvalidPrompt),
		errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, domain.ErrUnknownStrategy):
		return "invalid"
	default:
		return "error"
	}
}
