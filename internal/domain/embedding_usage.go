package domain

import (
	"context"
	"sync"
)

type embeddingUsageKey struct{}

// EmbeddingUsage collects provider usage for a single query.
// The caller puts a pointer into the context, the semantic matcher writes after embedding,
// and the caller reads it back for response headers or CLI output.
type EmbeddingUsage struct {
	mu     sync.Mutex
	tokens int
	texts  int
	used   bool // true if the encoder was consulted, even when every text was cached
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// Add records one embedding call over texts inputs that consumed tokens.
func (u *EmbeddingUsage) Add(texts, tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.texts += texts
	u.tokens += tokens
	u.used = true
}

// Snapshot returns the recorded totals.
func (u *EmbeddingUsage) Snapshot() (texts, tokens int, used bool) {
	if u == nil {
		return 0, 0, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.texts, u.tokens, u.used
}
