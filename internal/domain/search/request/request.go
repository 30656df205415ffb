package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/order"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
)

// Query parameter limits.
const (
	// MaxPromptLength is the maximum prompt length in runes.
	MaxPromptLength = 4096
	DefaultTopK     = 3
	MaxTopK         = 1000
)

// DefaultStrategy is used when the caller does not pick one.
const DefaultStrategy = strategy.Lexical

// Request is a validated query. Field existence and then strategy support are checked
// against the corpus and the matcher registry by the query service, in that order.
type Request struct {
	prompt string
	strat  strategy.Strategy
	field  string
	topK   int
	order  order.Order
}

// New validates and normalizes query parameters.
// Defaults: strategy=lexical_similarity, field=Summary, topK=3, order=desc.
func New(prompt string, s strategy.Strategy, field string, topK int, o order.Order) (Request, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Request{}, domain.NewInvalidPrompt("prompt is empty")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return Request{}, domain.NewInvalidPrompt(fmt.Sprintf("prompt too long (max %d chars)", MaxPromptLength))
	}
	if s == "" {
		s = DefaultStrategy
	}
	if field == "" {
		field = corpus.FieldSummary
	}
	if topK < 0 {
		return Request{}, fmt.Errorf("top_k must not be negative: %w", domain.ErrInvalidRequest)
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if o == "" {
		o = order.Descending
	}
	if !o.IsValid() {
		return Request{}, fmt.Errorf("invalid order %q: %w", o, domain.ErrInvalidRequest)
	}

	return Request{prompt: prompt, strat: s, field: field, topK: topK, order: o}, nil
}

// Prompt returns the trimmed prompt text.
func (r *Request) Prompt() string { return r.prompt }

// Strategy returns the matching strategy.
func (r *Request) Strategy() strategy.Strategy { return r.strat }

// Field returns the searched field name.
func (r *Request) Field() string { return r.field }

// TopK returns the maximum number of ranked documents.
func (r *Request) TopK() int { return r.topK }

// Order returns the ranking direction.
func (r *Request) Order() order.Order { return r.order }
