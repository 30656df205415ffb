// Package ranking orders scored documents and truncates them to the top K.
package ranking

import (
	"sort"

	"github.com/brycewhit13/booksearch/internal/domain/search/order"
	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
)

// Rank returns at most topK documents from scored, which must be in corpus order.
// The input slice is never reordered.
//
// Boolean scores keep only matches, in corpus order. Similarity scores are sorted by value
// in the requested order with a stable sort, so ties keep corpus order; undefined scores
// come after every defined score in both orders. topK <= 0 means request.DefaultTopK.
// Fewer than topK candidates are returned as-is, without padding.
func Rank(scored []result.Scored, o order.Order, topK int) []result.Scored {
	if topK <= 0 {
		topK = request.DefaultTopK
	}

	var ranked []result.Scored
	if isBoolean(scored) {
		ranked = make([]result.Scored, 0, min(topK, len(scored)))
		for i := range scored {
			if scored[i].Score().Matched() {
				ranked = append(ranked, scored[i])
			}
			if len(ranked) == topK {
				break
			}
		}
		return ranked
	}

	ranked = append([]result.Scored(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i].Score(), ranked[j].Score(), o)
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

func less(a, b score.Score, o order.Order) bool {
	switch {
	case !a.IsDefined():
		return false
	case !b.IsDefined():
		return true
	case o == order.Ascending:
		return a.Value() < b.Value()
	default:
		return a.Value() > b.Value()
	}
}

func isBoolean(scored []result.Scored) bool {
	return len(scored) > 0 && scored[0].Score().Kind() == score.Boolean
}
