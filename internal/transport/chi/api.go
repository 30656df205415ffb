package chi

import "github.com/brycewhit13/booksearch/internal/domain/search/score"

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest             ErrorCode = "bad_request"
	ErrorCodeInvalidPrompt          ErrorCode = "invalid_prompt"
	ErrorCodeUnknownField           ErrorCode = "unknown_field"
	ErrorCodeUnknownStrategy        ErrorCode = "unknown_strategy"
	ErrorCodeUnauthorized           ErrorCode = "unauthorized"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeQueryTimeout           ErrorCode = "query_timeout"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Prompt        string `json:"prompt"`
	Strategy      string `json:"strategy,omitempty"`
	Field         string `json:"field,omitempty"`
	TopK          *int   `json:"top_k,omitempty"`
	Order         string `json:"order,omitempty"`
	IncludeScored bool   `json:"include_scored,omitempty"`
}

// QueryResponse is the body of a successful query.
type QueryResponse struct {
	QueryID     string       `json:"query_id"`
	Strategy    string       `json:"strategy"`
	Field       string       `json:"field"`
	TotalScored int          `json:"total_scored"`
	TookMs      int64        `json:"took_ms"`
	Results     []ResultItem `json:"results"`
	Scored      []ScoredItem `json:"scored,omitempty"`
}

// ResultItem is one ranked document.
type ResultItem struct {
	Rank     int         `json:"rank"`
	ID       string      `json:"id"`
	Position int         `json:"position"`
	Score    score.Score `json:"score"`
	Title    string      `json:"title,omitempty"`
	Authors  string      `json:"authors,omitempty"`
	Location string      `json:"location,omitempty"`
	Text     *string     `json:"text"`
}

// ScoredItem is one entry of the full unsorted scored view.
type ScoredItem struct {
	ID       string      `json:"id"`
	Position int         `json:"position"`
	Score    score.Score `json:"score"`
}

// CorpusResponse is the body of GET /v1/corpus.
type CorpusResponse struct {
	Documents  int      `json:"documents"`
	Schema     []string `json:"schema"`
	Strategies []string `json:"strategies"`
}

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Prompts  []string `json:"prompts"`
	Fields   []string `json:"fields,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
}

// EvaluateResponse is the body of a successful evaluation run.
type EvaluateResponse struct {
	Strategy  string              `json:"strategy"`
	Fields    []string            `json:"fields"`
	Means     map[string]*float64 `json:"means"`
	Evaluated int                 `json:"evaluated"`
	Failed    int                 `json:"failed"`
	Rows      []EvaluateRow       `json:"rows"`
}

// EvaluateRow is the per-prompt outcome of an evaluation run.
type EvaluateRow struct {
	Prompt string                 `json:"prompt"`
	Best   map[string]score.Score `json:"best,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Documents int               `json:"documents"`
}
