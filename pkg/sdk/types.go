package booksearch

import "time"

// Strategy selects how documents are scored against a prompt.
type Strategy string

// Strategy constants.
const (
	Keyword  Strategy = "keyword_match"
	Lexical  Strategy = "lexical_similarity"
	Semantic Strategy = "semantic_similarity"
)

// Order controls the ranking direction.
type Order string

// Order constants.
const (
	Descending Order = "desc"
	Ascending  Order = "asc"
)

// Catalog column names.
const (
	FieldTitle              = "Title"
	FieldAuthors            = "Authors"
	FieldLocation           = "Location"
	FieldSummary            = "Summary"
	FieldAbbreviatedSummary = "abbreviated_summary"
	FieldExtractiveSummary  = "extractive_summary"
)

// Result is one scored document.
type Result struct {
	Rank     int // 1-based; 0 in the scored view
	ID       string
	Position int // index in corpus order
	Title    string
	Authors  string
	Location string
	Text     string // searched field; empty when absent
	HasText  bool
	// Score is the similarity, or 1/0 for keyword matches. NaN when undefined.
	Score   float64
	Matched bool
}

// QueryResult is the outcome of one query.
type QueryResult struct {
	QueryID     string
	Strategy    Strategy
	Field       string
	Results     []Result
	Scored      []Result // full corpus-order view, set by WithScoredView
	TotalScored int
	Took        time.Duration
}

// CorpusInfo describes the loaded catalog.
type CorpusInfo struct {
	Documents  int
	Schema     []string
	Strategies []Strategy
}

// EvaluationRow is the outcome of one validation prompt.
type EvaluationRow struct {
	Prompt string
	// Best holds the top-1 score per field, NaN when nothing scored.
	Best map[string]float64
	Err  error
}

// EvaluationReport summarizes an evaluation run.
type EvaluationReport struct {
	Strategy  Strategy
	Fields    []string
	Means     map[string]float64 // NaN when no prompt scored
	Rows      []EvaluationRow
	Evaluated int
	Failed    int
}
