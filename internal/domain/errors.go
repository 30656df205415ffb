package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPrompt signals an empty or otherwise unusable prompt.
	ErrInvalidPrompt = errors.New("invalid prompt")
	// ErrUnknownField signals a searched field missing from the corpus schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownStrategy signals an unsupported matching strategy.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrQueryTimeout signals that a query exceeded its deadline.
	ErrQueryTimeout = errors.New("query timeout")
	// ErrDuplicateDocument signals two documents sharing an ID within one corpus.
	ErrDuplicateDocument = errors.New("duplicate document")
	// ErrInvalidRequest signals malformed query parameters other than the prompt.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidCorpus signals a corpus source that cannot be turned into documents.
	ErrInvalidCorpus = errors.New("invalid corpus")
)

// InvalidPromptError wraps ErrInvalidPrompt with the rejection reason.
type InvalidPromptError struct {
	Reason string
}

func (e *InvalidPromptError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPrompt.Error(), e.Reason)
}

func (e *InvalidPromptError) Unwrap() error { return ErrInvalidPrompt }

// NewInvalidPrompt creates an invalid prompt error.
func NewInvalidPrompt(reason string) error {
	return &InvalidPromptError{Reason: reason}
}

// UnknownFieldError wraps ErrUnknownField with the offending field name.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownField.Error(), e.Field)
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// NewUnknownField creates an unknown field error.
func NewUnknownField(field string) error {
	return &UnknownFieldError{Field: field}
}

// UnknownStrategyError wraps ErrUnknownStrategy with the requested strategy name.
type UnknownStrategyError struct {
	Strategy string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownStrategy.Error(), e.Strategy)
}

func (e *UnknownStrategyError) Unwrap() error { return ErrUnknownStrategy }

// NewUnknownStrategy creates an unknown strategy error.
func NewUnknownStrategy(strategy string) error {
	return &UnknownStrategyError{Strategy: strategy}
}

// DuplicateDocumentError wraps ErrDuplicateDocument with the repeated ID.
type DuplicateDocumentError struct {
	ID string
}

func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("%s: %q", ErrDuplicateDocument.Error(), e.ID)
}

func (e *DuplicateDocumentError) Unwrap() error { return ErrDuplicateDocument }
