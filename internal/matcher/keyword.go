package matcher

import (
	"context"

	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/tokenizer"
)

// Keyword matches documents whose field contains every prompt token at least
// as many times as the prompt does (multiset containment).
type Keyword struct{}

// NewKeyword creates a keyword matcher.
func NewKeyword() *Keyword { return &Keyword{} }

// Score implements Matcher. A prompt without tokens matches every present field.
func (k *Keyword) Score(ctx context.Context, prompt string, c *corpus.Corpus, field string) ([]score.Score, error) {
	want := tokenizer.Counts(prompt)
	scores := make([]score.Score, c.Len())

	for i := 0; i < c.Len(); i++ {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}
		doc := c.At(i)
		text, ok := doc.Text(field)
		if !ok {
			scores[i] = score.Match(false)
			continue
		}
		scores[i] = score.Match(contains(tokenizer.Counts(text), want))
	}
	return scores, nil
}

func contains(have, want map[string]int) bool {
	for tok, n := range want {
		if have[tok] < n {
			return false
		}
	}
	return true
}
