package booksearch

import (
	"context"
	"time"

	"github.com/brycewhit13/booksearch/internal/domain/search/order"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
)

// QueryOption configures a single query.
type QueryOption func(*queryParams)

type queryParams struct {
	strat  Strategy
	field  string
	topK   int
	order  Order
	scored bool
}

// WithStrategy picks the matching strategy. Default: Lexical.
func WithStrategy(s Strategy) QueryOption {
	return func(p *queryParams) { p.strat = s }
}

// WithField picks the searched column. Default: FieldSummary.
func WithField(field string) QueryOption {
	return func(p *queryParams) { p.field = field }
}

// WithTopK limits the ranked results. Default: 3, capped at 1000.
func WithTopK(k int) QueryOption {
	return func(p *queryParams) { p.topK = k }
}

// WithOrder sets the ranking direction. Default: Descending.
func WithOrder(o Order) QueryOption {
	return func(p *queryParams) { p.order = o }
}

// WithScoredView adds every document with its score, in corpus order, to the result.
func WithScoredView() QueryOption {
	return func(p *queryParams) { p.scored = true }
}

// Query scores every document against prompt and returns the best matches.
func (c *Client) Query(ctx context.Context, prompt string, opts ...QueryOption) (_ *QueryResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", start, err) }()

	var p queryParams
	for _, o := range opts {
		o(&p)
	}

	req, err := request.New(prompt, strategy.Strategy(p.strat), p.field, p.topK, order.Order(p.order))
	if err != nil {
		return nil, err
	}

	set, err := c.querySvc.Query(ctx, &req)
	if err != nil {
		return nil, err
	}

	out := &QueryResult{
		QueryID:     set.QueryID(),
		Strategy:    Strategy(set.Strategy()),
		Field:       set.Field(),
		TotalScored: set.TotalScored(),
		Took:        set.Took(),
	}
	docs := set.Documents()
	out.Results = make([]Result, len(docs))
	for i := range docs {
		out.Results[i] = toResult(&docs[i], set.Field(), i+1)
	}
	if p.scored {
		all := set.Scored()
		out.Scored = make([]Result, len(all))
		for i := range all {
			out.Scored[i] = toResult(&all[i], set.Field(), 0)
		}
	}
	return out, nil
}

func toResult(s *result.Scored, field string, rank int) Result {
	doc := s.Document()
	text, ok := doc.Text(field)
	return Result{
		Rank:     rank,
		ID:       s.ID(),
		Position: s.Position(),
		Title:    doc.Title(),
		Authors:  doc.Authors(),
		Location: doc.Location(),
		Text:     text,
		HasText:  ok,
		Score:    s.Score().Value(),
		Matched:  s.Score().Matched(),
	}
}

// Evaluate runs every prompt against each field and reports the mean top-1 score per field.
// Fields default to the three summary variants. Prompts that are rejected are reported
// per row and left out of the means.
func (c *Client) Evaluate(
	ctx context.Context, prompts []string, s Strategy, fields ...string,
) (_ *EvaluationReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("evaluate", start, err) }()

	report, err := c.evalSvc.Evaluate(ctx, prompts, fields, strategy.Strategy(s))
	if err != nil {
		return nil, err
	}

	out := &EvaluationReport{
		Strategy:  Strategy(report.Strategy),
		Fields:    report.Fields,
		Means:     report.Means,
		Evaluated: report.Evaluated,
		Failed:    report.Failed,
		Rows:      make([]EvaluationRow, len(report.Rows)),
	}
	for i, row := range report.Rows {
		best := make(map[string]float64, len(row.Best))
		for f, sc := range row.Best {
			best[f] = sc.Value()
		}
		out.Rows[i] = EvaluationRow{Prompt: row.Prompt, Best: best, Err: row.Err}
	}
	return out, nil
}
