package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	evaluationuc "github.com/brycewhit13/booksearch/internal/usecase/evaluation"
	healthuc "github.com/brycewhit13/booksearch/internal/usecase/health"
)

// --- Mocks ---

type mockQuery struct {
	corpus *corpus.Corpus
	set    result.Set
	err    error
	got    *request.Request
	tokens int // embedding tokens reported through the request context
}

func (m *mockQuery) Query(ctx context.Context, req *request.Request) (result.Set, error) {
	m.got = req
	if m.tokens > 0 {
		domain.UsageFromContext(ctx).Add(3, m.tokens)
	}
	return m.set, m.err
}

func (m *mockQuery) Corpus() *corpus.Corpus { return m.corpus }

type mockEvaluation struct {
	report   evaluationuc.Report
	err      error
	prompts  []string
	strategy strategy.Strategy
}

func (m *mockEvaluation) Evaluate(
	_ context.Context, prompts, _ []string, strat strategy.Strategy,
) (evaluationuc.Report, error) {
	m.prompts = prompts
	m.strategy = strat
	return m.report, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

// --- Helpers ---

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	docs := make([]corpus.Document, 0, 2)
	for i, summary := range []string{"a detective solves a murder", "a dragon guards gold"} {
		d, err := corpus.New(fmt.Sprint(i), map[string]*string{
			corpus.FieldTitle:   corpus.Some(fmt.Sprintf("Book %d", i)),
			corpus.FieldAuthors: corpus.Some("Author"),
			corpus.FieldSummary: corpus.Some(summary),
		})
		require.NoError(t, err)
		docs = append(docs, d)
	}
	c, err := corpus.NewCorpus([]string{corpus.FieldTitle, corpus.FieldAuthors, corpus.FieldSummary}, docs)
	require.NoError(t, err)
	return c
}

func testSet(c *corpus.Corpus) result.Set {
	scored := []result.Scored{
		result.NewScored(c.At(0), 0, score.Of(0.25)),
		result.NewScored(c.At(1), 1, score.Of(0.75)),
	}
	ranked := []result.Scored{scored[1], scored[0]}
	return result.NewSet("q-1", strategy.Lexical, corpus.FieldSummary, ranked, scored, 12*time.Millisecond)
}

type fixture struct {
	query      *mockQuery
	evaluation *mockEvaluation
	health     *mockHealth
	router     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := testCorpus(t)
	f := &fixture{
		query:      &mockQuery{corpus: c, set: testSet(c)},
		evaluation: &mockEvaluation{},
		health:     &mockHealth{},
	}
	srv := NewServer(f.query, f.evaluation, f.health, strategy.All(), zap.NewNop())
	r := chi.NewRouter()
	srv.Routes(r)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

// --- Tests ---

func TestQuery_Success(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/query", QueryRequest{Prompt: "dragon", Strategy: "lexical"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp QueryResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "q-1", resp.QueryID)
	assert.Equal(t, "lexical_similarity", resp.Strategy)
	assert.Equal(t, 2, resp.TotalScored)
	assert.Equal(t, int64(12), resp.TookMs)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "1", resp.Results[0].ID)
	assert.Equal(t, "Book 1", resp.Results[0].Title)
	require.NotNil(t, resp.Results[0].Text)
	assert.Equal(t, "a dragon guards gold", *resp.Results[0].Text)
	assert.Empty(t, resp.Scored, "scored view omitted unless requested")

	require.NotNil(t, f.query.got)
	assert.Equal(t, strategy.Lexical, f.query.got.Strategy())
	assert.Equal(t, request.DefaultTopK, f.query.got.TopK())
}

func TestQuery_EmbeddingHeaders(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/query", QueryRequest{Prompt: "dragon"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-Embedding-Tokens"), "no header when the encoder was not consulted")

	f.query.tokens = 42
	rr = f.do(t, http.MethodPost, "/v1/query", QueryRequest{Prompt: "dragon", Strategy: "semantic_similarity"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "42", rr.Header().Get("X-Embedding-Tokens"))
	assert.Equal(t, "3", rr.Header().Get("X-Embedding-Texts"))
}

func TestQuery_IncludeScored(t *testing.T) {
	f := newFixture(t)
	topK := 1

	rr := f.do(t, http.MethodPost, "/v1/query", QueryRequest{Prompt: "dragon", TopK: &topK, IncludeScored: true})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp QueryResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Scored, 2)
	assert.Equal(t, "0", resp.Scored[0].ID, "scored view stays in corpus order")
	assert.Equal(t, 1, f.query.got.TopK())
}

func TestQuery_ScoreEncoding(t *testing.T) {
	f := newFixture(t)
	c := f.query.corpus
	scored := []result.Scored{
		result.NewScored(c.At(0), 0, score.Match(true)),
		result.NewScored(c.At(1), 1, score.Undefined()),
	}
	f.query.set = result.NewSet("q-2", strategy.Keyword, corpus.FieldSummary, scored, scored, 0)

	rr := f.do(t, http.MethodPost, "/v1/query", map[string]any{"prompt": "gold", "strategy": "keyword_match"})
	require.Equal(t, http.StatusOK, rr.Code)

	var raw struct {
		Results []map[string]json.RawMessage `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	require.Len(t, raw.Results, 2)
	assert.JSONEq(t, "true", string(raw.Results[0]["score"]))
	assert.JSONEq(t, "null", string(raw.Results[1]["score"]))
}

func TestQuery_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode ErrorCode
	}{
		{"malformed body", "{not json", ErrorCodeBadRequest},
		{"empty prompt", QueryRequest{Prompt: "   "}, ErrorCodeInvalidPrompt},
		{"unknown strategy", QueryRequest{Prompt: "x", Strategy: "bm25"}, ErrorCodeUnknownStrategy},
		{"zero top_k", map[string]any{"prompt": "x", "top_k": 0}, ErrorCodeBadRequest},
		{"bad order", QueryRequest{Prompt: "x", Order: "sideways"}, ErrorCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rr := f.do(t, http.MethodPost, "/v1/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rr).Code)
			assert.Nil(t, f.query.got, "query service must not be called")
		})
	}
}

func TestQuery_DomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
		wantMsg    string
	}{
		{"unknown field", domain.NewUnknownField("Blurb"), http.StatusBadRequest, ErrorCodeUnknownField,
			`unknown field: "Blurb"`},
		{"no searchable terms", domain.NewInvalidPrompt("prompt has no searchable terms"),
			http.StatusBadRequest, ErrorCodeInvalidPrompt, "invalid prompt: prompt has no searchable terms"},
		{"provider", fmt.Errorf("score: %w: upstream 500 body", domain.ErrEmbeddingProviderError),
			http.StatusBadGateway, ErrorCodeEmbeddingProviderError, "embedding provider error"},
		{"timeout", fmt.Errorf("%w after 30s", domain.ErrQueryTimeout),
			http.StatusGatewayTimeout, ErrorCodeQueryTimeout, "query timeout"},
		{"internal", errors.New("secret internal detail"),
			http.StatusInternalServerError, ErrorCodeInternalError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.query.err = tt.err

			rr := f.do(t, http.MethodPost, "/v1/query", QueryRequest{Prompt: "dragon"})
			assert.Equal(t, tt.wantStatus, rr.Code)
			resp := decodeError(t, rr)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}

func TestCorpus(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/corpus", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp CorpusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Documents)
	assert.Equal(t, []string{corpus.FieldTitle, corpus.FieldAuthors, corpus.FieldSummary}, resp.Schema)
	assert.Equal(t, []string{"keyword_match", "lexical_similarity", "semantic_similarity"}, resp.Strategies)
}

func TestEvaluate_Success(t *testing.T) {
	f := newFixture(t)
	f.evaluation.report = evaluationuc.Report{
		Strategy: strategy.Semantic,
		Fields:   []string{corpus.FieldSummary, corpus.FieldExtractiveSummary},
		Means: map[string]float64{
			corpus.FieldSummary:           0.5,
			corpus.FieldExtractiveSummary: math.NaN(),
		},
		Rows: []evaluationuc.Row{
			{Prompt: "dragon", Best: map[string]score.Score{corpus.FieldSummary: score.Of(0.5)}},
			{Prompt: "!!!", Err: domain.NewInvalidPrompt("prompt has no searchable terms")},
		},
		Evaluated: 1,
		Failed:    1,
	}

	rr := f.do(t, http.MethodPost, "/v1/evaluate", EvaluateRequest{Prompts: []string{"dragon", "!!!"}, Strategy: "semantic"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp EvaluateResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, strategy.Semantic, f.evaluation.strategy)
	assert.Equal(t, []string{"dragon", "!!!"}, f.evaluation.prompts)
	require.NotNil(t, resp.Means[corpus.FieldSummary])
	assert.InDelta(t, 0.5, *resp.Means[corpus.FieldSummary], 1e-9)
	assert.Nil(t, resp.Means[corpus.FieldExtractiveSummary], "NaN mean encodes as null")
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Rows, 2)
	assert.Empty(t, resp.Rows[0].Error)
	assert.Equal(t, "invalid prompt: prompt has no searchable terms", resp.Rows[1].Error)
}

func TestEvaluate_NoPrompts(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/evaluate", EvaluateRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrorCodeBadRequest, decodeError(t, rr).Code)
}

func TestEvaluate_UnknownField(t *testing.T) {
	f := newFixture(t)
	f.evaluation.err = fmt.Errorf("evaluate prompt 0: %w", domain.NewUnknownField("Blurb"))

	rr := f.do(t, http.MethodPost, "/v1/evaluate", EvaluateRequest{Prompts: []string{"x"}, Fields: []string{"Blurb"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrorCodeUnknownField, decodeError(t, rr).Code)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		status     healthuc.Status
		wantStatus int
	}{
		{"healthy", healthuc.Healthy, http.StatusOK},
		{"degraded", healthuc.Degraded, http.StatusOK},
		{"unhealthy", healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.health.report = healthuc.Report{
				Status:    tt.status,
				Checks:    map[string]healthuc.CheckResult{"corpus": healthuc.CheckOK},
				Documents: 2,
			}

			rr := f.do(t, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.wantStatus, rr.Code)

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, string(tt.status), resp.Status)
			assert.Equal(t, "ok", resp.Checks["corpus"])
			assert.Equal(t, 2, resp.Documents)
		})
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
