package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/order"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
)

// DefaultWorkers is the prompt concurrency used when none is configured.
const DefaultWorkers = 4

// DefaultFields are the summary variants compared by an evaluation run.
func DefaultFields() []string {
	return []string{corpus.FieldSummary, corpus.FieldAbbreviatedSummary, corpus.FieldExtractiveSummary}
}

// Row is the outcome of one validation prompt.
type Row struct {
	Prompt string
	// Best holds the top-1 score per field. Undefined when no document scored.
	Best map[string]score.Score
	// Err is set when the prompt was rejected; such rows are excluded from means.
	Err error
}

// Report summarizes an evaluation run.
type Report struct {
	Strategy strategy.Strategy
	Fields   []string
	Rows     []Row
	// Means holds the per-field mean of defined top-1 scores. NaN when no prompt scored.
	// For keyword_match it is the fraction of prompts with at least one match.
	Means     map[string]float64
	Evaluated int
	Failed    int
}

// Service measures how well each summary variant answers a set of validation prompts.
type Service struct {
	querier Querier
	pool    *ants.Pool
	logger  *zap.Logger
}

// New creates an evaluation service running up to workers prompts at once.
func New(q Querier, workers int, logger *zap.Logger) (*Service, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create evaluation pool: %w", err)
	}
	return &Service{querier: q, pool: pool, logger: logger}, nil
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// Evaluate runs every prompt against every field and aggregates the best scores.
// Rejected prompts are reported per row; any other failure aborts the run.
func (s *Service) Evaluate(
	ctx context.Context, prompts, fields []string, strat strategy.Strategy,
) (Report, error) {
	if len(fields) == 0 {
		fields = DefaultFields()
	}
	if strat == "" {
		strat = request.DefaultStrategy
	}
	if !strat.IsValid() {
		return Report{}, domain.NewUnknownStrategy(string(strat))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows := make([]Row, len(prompts))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, prompt := range prompts {
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			row, err := s.evaluatePrompt(ctx, prompt, fields, strat)
			if err != nil {
				fail(fmt.Errorf("evaluate prompt %d: %w", i, err))
				return
			}
			rows[i] = row
		}); err != nil {
			wg.Done()
			fail(fmt.Errorf("submit prompt %d: %w", i, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return Report{}, firstErr
	}

	report := aggregate(strat, fields, rows)
	s.logger.Info("Evaluation completed",
		zap.String("strategy", string(strat)),
		zap.Int("prompts", len(prompts)),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Service) evaluatePrompt(
	ctx context.Context, prompt string, fields []string, strat strategy.Strategy,
) (Row, error) {
	row := Row{Prompt: prompt, Best: make(map[string]score.Score, len(fields))}
	for _, field := range fields {
		req, err := request.New(prompt, strat, field, 1, order.Descending)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidPrompt) {
				return Row{Prompt: prompt, Err: err}, nil
			}
			return Row{}, fmt.Errorf("build request: %w", err)
		}

		set, err := s.querier.Query(ctx, &req)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidPrompt) {
				return Row{Prompt: prompt, Err: err}, nil
			}
			return Row{}, fmt.Errorf("query field %s: %w", field, err)
		}
		row.Best[field] = best(strat, set.Documents())
	}
	return row, nil
}

// best returns the top-1 score. Keyword ranking drops non-matches, so an empty top means no match.
func best(strat strategy.Strategy, top []result.Scored) score.Score {
	if len(top) == 0 {
		if strat.Boolean() {
			return score.Match(false)
		}
		return score.Undefined()
	}
	return top[0].Score()
}

func aggregate(strat strategy.Strategy, fields []string, rows []Row) Report {
	report := Report{
		Strategy: strat,
		Fields:   fields,
		Rows:     rows,
		Means:    make(map[string]float64, len(fields)),
	}

	sums := make(map[string]float64, len(fields))
	counts := make(map[string]int, len(fields))
	for _, row := range rows {
		if row.Err != nil {
			report.Failed++
			continue
		}
		report.Evaluated++
		for _, field := range fields {
			s := row.Best[field]
			switch {
			case strat.Boolean():
				if s.Matched() {
					sums[field]++
				}
				counts[field]++
			case s.IsDefined():
				sums[field] += s.Value()
				counts[field]++
			}
		}
	}

	for _, field := range fields {
		if counts[field] == 0 {
			report.Means[field] = math.NaN()
			continue
		}
		report.Means[field] = sums[field] / float64(counts[field])
	}
	return report
}
