package chi

import (
	"context"

	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	evaluationuc "github.com/brycewhit13/booksearch/internal/usecase/evaluation"
	healthuc "github.com/brycewhit13/booksearch/internal/usecase/health"
)

// QueryService answers prompts against the loaded corpus.
type QueryService interface {
	Query(ctx context.Context, req *request.Request) (result.Set, error)
	Corpus() *corpus.Corpus
}

// EvaluationService runs validation prompts.
type EvaluationService interface {
	Evaluate(ctx context.Context, prompts, fields []string, strat strategy.Strategy) (evaluationuc.Report, error)
}

// HealthService aggregates component checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
