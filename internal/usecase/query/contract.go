package query

import (
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
	"github.com/brycewhit13/booksearch/internal/matcher"
)

// MatcherLookup resolves a strategy to its matcher.
type MatcherLookup interface {
	Lookup(s strategy.Strategy) (matcher.Matcher, error)
}

// ColumnInvalidator drops memoized per-corpus state when the corpus is replaced.
type ColumnInvalidator interface {
	Clear()
}
