package booksearch

import "github.com/brycewhit13/booksearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidPrompt          = domain.ErrInvalidPrompt
	ErrUnknownField           = domain.ErrUnknownField
	ErrUnknownStrategy        = domain.ErrUnknownStrategy
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrInvalidCorpus          = domain.ErrInvalidCorpus
	ErrDuplicateDocument      = domain.ErrDuplicateDocument
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrQueryTimeout           = domain.ErrQueryTimeout
)
