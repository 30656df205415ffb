package matcher

import (
	"context"
	"fmt"
	"math"

	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/tokenizer"
)

// Vocabulary selects which texts the TF-IDF model is fitted on.
type Vocabulary string

const (
	// VocabularyPrompt fits on the prompt alone: document terms outside the prompt are ignored
	// and every prompt term weighs the same.
	VocabularyPrompt Vocabulary = "prompt"
	// VocabularyCorpus fits on the prompt plus every present document of the searched field,
	// so rare terms weigh more and long documents are penalized.
	VocabularyCorpus Vocabulary = "corpus"
)

// IsValid checks if the vocabulary mode is supported.
func (v Vocabulary) IsValid() bool {
	return v == VocabularyPrompt || v == VocabularyCorpus
}

// Lexical scores TF-IDF cosine similarity between the prompt and each document.
type Lexical struct {
	vocabulary Vocabulary
}

// NewLexical creates a lexical matcher. An empty vocabulary mode means VocabularyPrompt.
func NewLexical(v Vocabulary) (*Lexical, error) {
	if v == "" {
		v = VocabularyPrompt
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("invalid lexical vocabulary %q", v)
	}
	return &Lexical{vocabulary: v}, nil
}

// Score implements Matcher. Scores lie in [0, 1]. When the prompt yields no vocabulary
// every present document scores 0.
func (l *Lexical) Score(ctx context.Context, prompt string, c *corpus.Corpus, field string) ([]score.Score, error) {
	column := c.Column(field)

	fitOn := []string{prompt}
	if l.vocabulary == VocabularyCorpus {
		for _, v := range column {
			if v != nil {
				fitOn = append(fitOn, *v)
			}
		}
	}
	model := fitTFIDF(fitOn)
	query := model.transform(prompt)

	scores := make([]score.Score, len(column))
	for i, v := range column {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}
		if v == nil {
			scores[i] = score.Undefined()
			continue
		}
		if len(query) == 0 {
			scores[i] = score.Of(0)
			continue
		}
		scores[i] = score.Of(math.Min(1, dot(query, model.transform(*v))))
	}
	return scores, nil
}

// tfidf holds smoothed inverse document frequencies: idf(t) = ln((1+n)/(1+df(t))) + 1.
type tfidf struct {
	idf map[string]float64
}

func fitTFIDF(texts []string) *tfidf {
	df := make(map[string]int)
	for _, text := range texts {
		for tok := range tokenizer.Counts(text) {
			df[tok]++
		}
	}
	n := float64(len(texts))
	idf := make(map[string]float64, len(df))
	for tok, d := range df {
		idf[tok] = math.Log((1+n)/(1+float64(d))) + 1
	}
	return &tfidf{idf: idf}
}

// transform returns the L2-normalized term weights of text over the fitted vocabulary.
// Terms outside the vocabulary are dropped. A text with no known terms yields an empty vector.
func (m *tfidf) transform(text string) map[string]float64 {
	weights := make(map[string]float64)
	var norm float64
	for tok, tf := range tokenizer.Counts(text) {
		idf, ok := m.idf[tok]
		if !ok {
			continue
		}
		w := float64(tf) * idf
		weights[tok] = w
		norm += w * w
	}
	if norm == 0 {
		return weights
	}
	norm = math.Sqrt(norm)
	for tok := range weights {
		weights[tok] /= norm
	}
	return weights
}

// dot multiplies two sparse unit vectors, which equals their cosine similarity.
func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for tok, w := range a {
		sum += w * b[tok]
	}
	return sum
}
