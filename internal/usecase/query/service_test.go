package query

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/order"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	"github.com/brycewhit13/booksearch/internal/matcher"
)

// --- mocks ---

type mockMatcher struct {
	scores []score.Score
	err    error
	block  bool
	calls  int
}

func (m *mockMatcher) Score(ctx context.Context, _ string, _ *corpus.Corpus, _ string) ([]score.Score, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.scores, m.err
}

type mockInvalidator struct{ cleared int }

func (m *mockInvalidator) Clear() { m.cleared++ }

// --- helpers ---

func buildCorpus(t *testing.T, summaries ...string) *corpus.Corpus {
	t.Helper()
	values := make([]*string, len(summaries))
	for i, s := range summaries {
		values[i] = corpus.Some(s)
	}
	return buildNullableCorpus(t, values...)
}

// buildNullableCorpus creates a corpus from summaries where nil means an absent Summary.
func buildNullableCorpus(t *testing.T, summaries ...*string) *corpus.Corpus {
	t.Helper()
	docs := make([]corpus.Document, len(summaries))
	for i, s := range summaries {
		d, err := corpus.New(strconv.Itoa(i), map[string]*string{
			corpus.FieldTitle:   corpus.Some("Book " + strconv.Itoa(i)),
			corpus.FieldSummary: s,
		})
		require.NoError(t, err)
		docs[i] = d
	}
	c, err := corpus.NewCorpus(corpus.DefaultSchema(), docs)
	require.NoError(t, err)
	return c
}

func newRequest(t *testing.T, prompt string, s strategy.Strategy, field string, topK int) *request.Request {
	t.Helper()
	req, err := request.New(prompt, s, field, topK, order.Descending)
	require.NoError(t, err)
	return &req
}

func registryWith(s strategy.Strategy, m matcher.Matcher) *matcher.Registry {
	return matcher.NewRegistry().Register(s, m)
}

// --- tests ---

func TestQuery_KeywordReturnsMatchesInCorpusOrder(t *testing.T) {
	c := buildCorpus(t,
		"a detective solves a murder",
		"a love story in paris",
		"the detective hunts a killer",
	)
	svc := New(c, registryWith(strategy.Keyword, matcher.NewKeyword()), zap.NewNop())

	set, err := svc.Query(context.Background(), newRequest(t, "detective", strategy.Keyword, "", 0))
	require.NoError(t, err)

	docs := set.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "0", docs[0].ID())
	assert.Equal(t, "2", docs[1].ID())
	assert.Equal(t, 3, set.TotalScored())
	assert.NotEmpty(t, set.QueryID())
	assert.Equal(t, strategy.Keyword, set.Strategy())
	assert.Equal(t, corpus.FieldSummary, set.Field())
}

func TestQuery_LexicalRanksByScore(t *testing.T) {
	c := buildCorpus(t,
		"space opera with aliens",
		"dragons and wizards in a magic kingdom",
		"a wizard school",
	)
	lex, err := matcher.NewLexical(matcher.VocabularyPrompt)
	require.NoError(t, err)
	svc := New(c, registryWith(strategy.Lexical, lex), zap.NewNop())

	set, err := svc.Query(context.Background(), newRequest(t, "wizard school", strategy.Lexical, "", 2))
	require.NoError(t, err)

	docs := set.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "2", docs[0].ID())
	s := docs[0].Score()
	assert.InDelta(t, 1.0, s.Value(), 1e-9)
}

func TestQuery_UsesMatcherScoresAndTopK(t *testing.T) {
	c := buildCorpus(t, "a", "b", "c", "d")
	m := &mockMatcher{scores: []score.Score{score.Of(0.9), score.Of(0.5), score.Of(0.9), score.Undefined()}}
	svc := New(c, registryWith(strategy.Semantic, m), zap.NewNop())

	set, err := svc.Query(context.Background(), newRequest(t, "anything", strategy.Semantic, "", 2))
	require.NoError(t, err)

	docs := set.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "0", docs[0].ID())
	assert.Equal(t, "2", docs[1].ID())
	assert.Len(t, set.Scored(), 4)
	first := set.Scored()[3]
	assert.False(t, first.Score().IsDefined())
}

func TestQuery_UnknownField(t *testing.T) {
	c := buildCorpus(t, "a")
	m := &mockMatcher{}
	svc := New(c, registryWith(strategy.Lexical, m), zap.NewNop())

	_, err := svc.Query(context.Background(), newRequest(t, "x", strategy.Lexical, "Blurb", 0))
	require.ErrorIs(t, err, domain.ErrUnknownField)
	assert.Equal(t, 0, m.calls)
}

func TestQuery_UnregisteredStrategy(t *testing.T) {
	c := buildCorpus(t, "a")
	svc := New(c, matcher.NewRegistry(), zap.NewNop())

	_, err := svc.Query(context.Background(), newRequest(t, "x", strategy.Semantic, "", 0))
	require.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestQuery_KeywordPromptWithoutTokens(t *testing.T) {
	c := buildCorpus(t, "a story")
	m := &mockMatcher{}
	svc := New(c, registryWith(strategy.Keyword, m), zap.NewNop())

	_, err := svc.Query(context.Background(), newRequest(t, "a !", strategy.Keyword, "", 0))
	require.ErrorIs(t, err, domain.ErrInvalidPrompt)
	assert.Equal(t, 0, m.calls)
}

func TestQuery_TimeoutMapsToQueryTimeout(t *testing.T) {
	c := buildCorpus(t, "a")
	svc := New(c, registryWith(strategy.Semantic, &mockMatcher{block: true}), zap.NewNop()).
		WithTimeout(10 * time.Millisecond)

	_, err := svc.Query(context.Background(), newRequest(t, "x", strategy.Semantic, "", 0))
	require.ErrorIs(t, err, domain.ErrQueryTimeout)
}

func TestQuery_CallerCancellationIsNotTimeout(t *testing.T) {
	c := buildCorpus(t, "a")
	svc := New(c, registryWith(strategy.Semantic, &mockMatcher{block: true}), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Query(ctx, newRequest(t, "x", strategy.Semantic, "", 0))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrQueryTimeout)
}

func TestQuery_ProviderErrorPropagates(t *testing.T) {
	c := buildCorpus(t, "a")
	providerErr := errors.Join(domain.ErrEmbeddingProviderError, errors.New("503"))
	svc := New(c, registryWith(strategy.Semantic, &mockMatcher{err: providerErr}), zap.NewNop())

	_, err := svc.Query(context.Background(), newRequest(t, "x", strategy.Semantic, "", 0))
	require.ErrorIs(t, err, domain.ErrEmbeddingProviderError)
}

func TestQuery_ScoreCountMismatch(t *testing.T) {
	c := buildCorpus(t, "a", "b")
	svc := New(c, registryWith(strategy.Lexical, &mockMatcher{scores: []score.Score{score.Of(1)}}), zap.NewNop())

	_, err := svc.Query(context.Background(), newRequest(t, "x", strategy.Lexical, "", 0))
	require.Error(t, err)
}

func TestQuery_DoesNotMutateCorpus(t *testing.T) {
	c := buildCorpus(t, "magic school", "space war")
	lex, err := matcher.NewLexical(matcher.VocabularyPrompt)
	require.NoError(t, err)
	svc := New(c, registryWith(strategy.Lexical, lex), zap.NewNop())

	schema := c.Schema()
	_, err = svc.Query(context.Background(), newRequest(t, "magic", strategy.Lexical, "", 0))
	require.NoError(t, err)

	assert.Equal(t, schema, c.Schema())
	assert.Equal(t, 2, c.Len())
}

func TestQuery_RepeatedQueryIsIdentical(t *testing.T) {
	c := buildCorpus(t,
		"a wizard school in the mountains",
		"space war between empires",
		"the wizard and the dragon",
		"a quiet village",
	)
	lex, err := matcher.NewLexical(matcher.VocabularyPrompt)
	require.NoError(t, err)
	svc := New(c, registryWith(strategy.Lexical, lex), zap.NewNop())
	req := newRequest(t, "wizard dragon", strategy.Lexical, "", 3)

	first, err := svc.Query(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Query(context.Background(), req)
	require.NoError(t, err)

	assertSameDocuments(t, first.Documents(), second.Documents())
	assertSameDocuments(t, first.Scored(), second.Scored())
}

func assertSameDocuments(t *testing.T, want, got []result.Scored) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID(), got[i].ID(), "position %d", i)
		assert.Equal(t, want[i].Position(), got[i].Position(), "position %d", i)
		ws, gs := want[i].Score(), got[i].Score()
		assert.Equal(t, ws.IsDefined(), gs.IsDefined(), "position %d", i)
		if ws.IsDefined() {
			assert.Equal(t, ws.Value(), gs.Value(), "position %d", i)
		}
	}
}

func TestQuery_NullSummariesScoredAndRankedLast(t *testing.T) {
	summaries := []*string{
		corpus.Some("a haunted house mystery"),
		corpus.Some("the haunted lighthouse"),
		nil,
		corpus.Some("a mystery on a train"),
		corpus.Some("gardening for beginners"),
		corpus.Some("haunted mystery haunted"),
		corpus.Some("cooking with herbs"),
		nil,
		corpus.Some("mystery of the old mill"),
		corpus.Some("a history of rome"),
	}
	c := buildNullableCorpus(t, summaries...)
	lex, err := matcher.NewLexical(matcher.VocabularyPrompt)
	require.NoError(t, err)
	svc := New(c, registryWith(strategy.Lexical, lex), zap.NewNop())

	set, err := svc.Query(context.Background(), newRequest(t, "haunted mystery", strategy.Lexical, "", 5))
	require.NoError(t, err)

	assert.Equal(t, 10, set.TotalScored())
	require.Len(t, set.Documents(), 5)
	for _, d := range set.Documents() {
		s := d.Score()
		assert.True(t, s.IsDefined(), "document %s has a summary", d.ID())
	}
	scored := set.Scored()
	for _, i := range []int{2, 7} {
		s := scored[i].Score()
		assert.False(t, s.IsDefined(), "null summary %d must be undefined", i)
	}

	for _, o := range []order.Order{order.Descending, order.Ascending} {
		req, err := request.New("haunted mystery", strategy.Lexical, "", 10, o)
		require.NoError(t, err)
		full, err := svc.Query(context.Background(), &req)
		require.NoError(t, err)

		docs := full.Documents()
		require.Len(t, docs, 10)
		assert.Equal(t, "2", docs[8].ID(), "order %s", o)
		assert.Equal(t, "7", docs[9].ID(), "order %s", o)
	}
}

func TestQuery_FieldCheckedBeforeStrategy(t *testing.T) {
	svc := New(buildCorpus(t, "a"), matcher.NewRegistry(), zap.NewNop())

	_, err := svc.Query(context.Background(), newRequest(t, "x", "bm25", "Blurb", 0))
	require.ErrorIs(t, err, domain.ErrUnknownField)
	assert.NotErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestQuery_UnknownStrategyRejectedByRegistry(t *testing.T) {
	svc := New(buildCorpus(t, "a"), registryWith(strategy.Lexical, &mockMatcher{}), zap.NewNop())

	_, err := svc.Query(context.Background(), newRequest(t, "x", "bm25", "", 0))
	require.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestReplaceCorpus_ClearsInvalidators(t *testing.T) {
	inv := &mockInvalidator{}
	svc := New(buildCorpus(t, "a"), matcher.NewRegistry(), zap.NewNop()).WithInvalidator(inv)

	next := buildCorpus(t, "a", "b")
	svc.ReplaceCorpus(next)

	assert.Same(t, next, svc.Corpus())
	assert.Equal(t, 2, svc.CorpusSize())
	assert.Equal(t, 1, inv.cleared)
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.ErrQueryTimeout, "timeout"},
		{domain.ErrEmbeddingProviderError, "provider_error"},
		{domain.NewUnknownField("x"), "invalid"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeOf(tt.err))
	}
}
