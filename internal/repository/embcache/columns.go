package embcache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultColumnMemoBytes bounds the memory held by memoized document columns.
const DefaultColumnMemoBytes int64 = 256 << 20

// ColumnMemo keeps whole embedded document columns in process, keyed by model and corpus
// fingerprint. A corpus swap changes the fingerprint, so stale columns are never served.
type ColumnMemo struct {
	cache     *ristretto.Cache[string, [][]float32]
	memoTotal *prometheus.CounterVec
}

// NewColumnMemo creates a memo holding up to maxBytes of vectors. maxBytes <= 0 uses the default.
func NewColumnMemo(maxBytes int64, memoTotal *prometheus.CounterVec) (*ColumnMemo, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultColumnMemoBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, [][]float32]{
		NumCounters: 1e4,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create column memo: %w", err)
	}
	return &ColumnMemo{cache: cache, memoTotal: memoTotal}, nil
}

// Get returns the memoized column for key.
func (m *ColumnMemo) Get(key string) ([][]float32, bool) {
	vecs, ok := m.cache.Get(key)
	if ok {
		m.inc("hit")
	} else {
		m.inc("miss")
	}
	return vecs, ok
}

// Set stores a column. The write is visible to subsequent Get calls on return.
func (m *ColumnMemo) Set(key string, vecs [][]float32) {
	m.cache.Set(key, vecs, columnCost(vecs))
	m.cache.Wait()
}

// Clear drops every memoized column.
func (m *ColumnMemo) Clear() {
	m.cache.Clear()
}

// Close stops the memo's background goroutines.
func (m *ColumnMemo) Close() {
	m.cache.Close()
}

func (m *ColumnMemo) inc(result string) {
	if m.memoTotal != nil {
		m.memoTotal.WithLabelValues(result).Inc()
	}
}

func columnCost(vecs [][]float32) int64 {
	var n int64
	for _, v := range vecs {
		n += int64(len(v)) * 4
	}
	if n == 0 {
		return 1
	}
	return n
}
