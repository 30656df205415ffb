package matcher

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
)

func lexicalScores(t *testing.T, v Vocabulary, prompt string, summaries ...*string) []score.Score {
	t.Helper()
	m, err := NewLexical(v)
	require.NoError(t, err)
	c := buildCorpus(t, summaries...)
	scores, err := m.Score(context.Background(), prompt, c, corpus.FieldSummary)
	require.NoError(t, err)
	require.Len(t, scores, c.Len())
	return scores
}

func TestLexical_IdenticalTextScoresOne(t *testing.T) {
	s := lexicalScores(t, VocabularyPrompt, "detective murder town", some("Town murder, detective."))
	assert.InDelta(t, 1.0, s[0].Value(), 1e-9)
}

func TestLexical_NoOverlapScoresZero(t *testing.T) {
	s := lexicalScores(t, VocabularyPrompt, "space opera", some("a quiet garden"))
	require.True(t, s[0].IsDefined())
	assert.Equal(t, 0.0, s[0].Value())
}

func TestLexical_TermFrequencyWeighted(t *testing.T) {
	// prompt (1,1)/sqrt2, document (2,1)/sqrt5 over [cat dog]
	s := lexicalScores(t, VocabularyPrompt, "cat dog", some("cat cat dog"))
	assert.InDelta(t, 3/math.Sqrt(10), s[0].Value(), 1e-9)
}

func TestLexical_PromptVocabularyIgnoresOtherTerms(t *testing.T) {
	s := lexicalScores(t, VocabularyPrompt, "cat", some("cat bird fish"))
	assert.InDelta(t, 1.0, s[0].Value(), 1e-9)
}

func TestLexical_CorpusVocabularyPenalizesOtherTerms(t *testing.T) {
	s := lexicalScores(t, VocabularyCorpus, "cat", some("cat bird fish"), some("cat"))
	assert.Less(t, s[0].Value(), 1.0)
	assert.Greater(t, s[0].Value(), 0.0)
	assert.InDelta(t, 1.0, s[1].Value(), 1e-9)
}

func TestLexical_AbsentFieldIsUndefined(t *testing.T) {
	s := lexicalScores(t, VocabularyPrompt, "cat", nil, some("cat"))
	assert.False(t, s[0].IsDefined())
	assert.True(t, math.IsNaN(s[0].Value()))
	assert.True(t, s[1].IsDefined())
}

func TestLexical_EmptyVocabularyScoresZero(t *testing.T) {
	s := lexicalScores(t, VocabularyPrompt, "a ! ?", some("anything at all"), nil)
	require.True(t, s[0].IsDefined())
	assert.Equal(t, 0.0, s[0].Value())
	assert.False(t, s[1].IsDefined())
}

func TestLexical_ScoresWithinUnitInterval(t *testing.T) {
	s := lexicalScores(t, VocabularyCorpus, "the old man and the sea",
		some("the sea"), some("old old old man"), some("nothing relevant"), some("the old man and the sea"))
	for i, sc := range s {
		assert.GreaterOrEqual(t, sc.Value(), 0.0, "score %d", i)
		assert.LessOrEqual(t, sc.Value(), 1.0, "score %d", i)
	}
}

func TestLexical_Idempotent(t *testing.T) {
	m, err := NewLexical(VocabularyCorpus)
	require.NoError(t, err)
	c := buildCorpus(t, some("whales and the sea"), nil, some("sea"))

	first, err := m.Score(context.Background(), "sea", c, corpus.FieldSummary)
	require.NoError(t, err)
	second, err := m.Score(context.Background(), "sea", c, corpus.FieldSummary)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewLexical_InvalidVocabulary(t *testing.T) {
	_, err := NewLexical("everything")
	assert.Error(t, err)

	m, err := NewLexical("")
	require.NoError(t, err)
	assert.Equal(t, VocabularyPrompt, m.vocabulary)
}
