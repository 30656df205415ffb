// Package matcher scores every document of a corpus against a prompt.
// Each strategy returns one score per document, aligned with corpus order.
package matcher

import (
	"context"
	"fmt"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
)

// checkEvery is how many documents a matcher scores between context checks.
const checkEvery = 256

// Matcher scores a corpus field against a prompt.
// A document whose field is absent never produces an error: keyword matchers report
// no match and similarity matchers report score.Undefined.
type Matcher interface {
	Score(ctx context.Context, prompt string, c *corpus.Corpus, field string) ([]score.Score, error)
}

// Registry maps strategies to their matchers.
type Registry struct {
	matchers map[strategy.Strategy]Matcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{matchers: make(map[strategy.Strategy]Matcher)}
}

// Register binds m to s, replacing any previous binding.
func (r *Registry) Register(s strategy.Strategy, m Matcher) *Registry {
	r.matchers[s] = m
	return r
}

// Lookup returns the matcher for s. Strategies that are valid but not configured
// (for example semantic matching without an embedding provider) are unknown here.
func (r *Registry) Lookup(s strategy.Strategy) (Matcher, error) {
	m, ok := r.matchers[s]
	if !ok {
		return nil, domain.NewUnknownStrategy(string(s))
	}
	return m, nil
}

// Strategies returns the registered strategies in display order.
func (r *Registry) Strategies() []strategy.Strategy {
	out := make([]strategy.Strategy, 0, len(r.matchers))
	for _, s := range strategy.All() {
		if _, ok := r.matchers[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func checkContext(ctx context.Context, i int) error {
	if i%checkEvery != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scoring interrupted at document %d: %w", i, err)
	}
	return nil
}
