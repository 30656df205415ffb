package chi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/search/order"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	logpkg "github.com/brycewhit13/booksearch/internal/logger"
	evaluationuc "github.com/brycewhit13/booksearch/internal/usecase/evaluation"
	healthuc "github.com/brycewhit13/booksearch/internal/usecase/health"
)

const (
	maxBodyBytes      = 1 << 20
	maxEvaluatePrompt = 500
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the booksearch HTTP API.
type Server struct {
	query         QueryService
	evaluation    EvaluationService
	health        HealthService
	strategies    []strategy.Strategy
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. strategies lists the strategies with a registered matcher.
func NewServer(
	query QueryService,
	evaluation EvaluationService,
	health HealthService,
	strategies []strategy.Strategy,
	logger *zap.Logger,
) *Server {
	s := &Server{
		query:      query,
		evaluation: evaluation,
		health:     health,
		strategies: strategies,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidPrompt, http.StatusBadRequest, ErrorCodeInvalidPrompt),
		sentinelHandler(domain.ErrUnknownField, http.StatusBadRequest, ErrorCodeUnknownField),
		sentinelHandler(domain.ErrUnknownStrategy, http.StatusBadRequest, ErrorCodeUnknownStrategy),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorCodeBadRequest),
		sentinelHandler(domain.ErrQueryTimeout, http.StatusGatewayTimeout, ErrorCodeQueryTimeout),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeEmbeddingProviderError),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.Query)
		r.Get("/corpus", s.Corpus)
		r.Post("/evaluate", s.Evaluate)
	})
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	topK := 0
	if req.TopK != nil {
		if *req.TopK <= 0 {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "top_k must be positive")
			return
		}
		topK = *req.TopK
	}

	qr, err := request.New(req.Prompt, strategy.Parse(req.Strategy), req.Field, topK, order.Order(req.Order))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	set, err := s.query.Query(ctx, &qr)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, queryResponse(&set, req.IncludeScored))
}

// Corpus handles GET /v1/corpus.
func (s *Server) Corpus(w http.ResponseWriter, _ *http.Request) {
	c := s.query.Corpus()
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = string(st)
	}
	writeJSON(w, http.StatusOK, CorpusResponse{
		Documents:  c.Len(),
		Schema:     c.Schema(),
		Strategies: names,
	})
}

// Evaluate handles POST /v1/evaluate.
func (s *Server) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Prompts) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "prompts are required")
		return
	}
	if len(req.Prompts) > maxEvaluatePrompt {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "too many prompts")
		return
	}

	report, err := s.evaluation.Evaluate(r.Context(), req.Prompts, req.Fields, strategy.Parse(req.Strategy))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse(&report))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    string(report.Status),
		Checks:    checks,
		Documents: report.Documents,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	texts, tokens, used := usage.Snapshot()
	if used {
		w.Header().Set("X-Embedding-Texts", strconv.Itoa(texts))
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(tokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the client-facing message for err.
// Typed validation errors carry only caller input, so their text is returned as is.
func safeDomainMessage(err error) string {
	var (
		ipe *domain.InvalidPromptError
		ufe *domain.UnknownFieldError
		use *domain.UnknownStrategyError
	)
	switch {
	case errors.As(err, &ipe):
		return ipe.Error()
	case errors.As(err, &ufe):
		return ufe.Error()
	case errors.As(err, &use):
		return use.Error()
	}

	sentinels := []error{
		domain.ErrInvalidPrompt,
		domain.ErrUnknownField,
		domain.ErrUnknownStrategy,
		domain.ErrInvalidRequest,
		domain.ErrQueryTimeout,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// handleDomainError logs through the request-scoped logger so entries carry the request ID.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func queryResponse(set *result.Set, includeScored bool) QueryResponse {
	resp := QueryResponse{
		QueryID:     set.QueryID(),
		Strategy:    string(set.Strategy()),
		Field:       set.Field(),
		TotalScored: set.TotalScored(),
		TookMs:      set.Took().Milliseconds(),
		Results:     make([]ResultItem, len(set.Documents())),
	}
	for i, sc := range set.Documents() {
		resp.Results[i] = resultItem(i+1, sc, set.Field())
	}
	if includeScored {
		resp.Scored = make([]ScoredItem, len(set.Scored()))
		for i, sc := range set.Scored() {
			resp.Scored[i] = ScoredItem{ID: sc.ID(), Position: sc.Position(), Score: sc.Score()}
		}
	}
	return resp
}

func resultItem(rank int, sc result.Scored, field string) ResultItem {
	doc := sc.Document()
	item := ResultItem{
		Rank:     rank,
		ID:       sc.ID(),
		Position: sc.Position(),
		Score:    sc.Score(),
		Title:    doc.Title(),
		Authors:  doc.Authors(),
		Location: doc.Location(),
	}
	if text, ok := doc.Text(field); ok {
		item.Text = &text
	}
	return item
}

func evaluateResponse(report *evaluationuc.Report) EvaluateResponse {
	resp := EvaluateResponse{
		Strategy:  string(report.Strategy),
		Fields:    report.Fields,
		Means:     make(map[string]*float64, len(report.Means)),
		Evaluated: report.Evaluated,
		Failed:    report.Failed,
		Rows:      make([]EvaluateRow, len(report.Rows)),
	}
	for field, mean := range report.Means {
		if math.IsNaN(mean) {
			resp.Means[field] = nil
			continue
		}
		m := mean
		resp.Means[field] = &m
	}
	for i, row := range report.Rows {
		er := EvaluateRow{Prompt: row.Prompt, Best: row.Best}
		if row.Err != nil {
			er.Error = safeDomainMessage(row.Err)
		}
		resp.Rows[i] = er
	}
	return resp
}
