package evaluation

import (
	"context"

	"github.com/brycewhit13/booksearch/internal/domain/search/request"
	"github.com/brycewhit13/booksearch/internal/domain/search/result"
)

// Querier runs a single prompt query.
type Querier interface {
	Query(ctx context.Context, req *request.Request) (result.Set, error)
}
