package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/brycewhit13/booksearch/internal/domain"
)

// Corpus is an ordered, immutable sequence of documents sharing one schema.
// Order is significant: it breaks ties during ranking.
type Corpus struct {
	schema  []string
	columns map[string]struct{}
	docs    []Document
}

// NewCorpus validates and creates a Corpus.
// Schema column names must be unique and non-empty, document IDs must be unique,
// and every document field must be a schema column.
func NewCorpus(schema []string, docs []Document) (*Corpus, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is required: %w", domain.ErrInvalidCorpus)
	}

	columns := make(map[string]struct{}, len(schema))
	for _, col := range schema {
		if col == "" {
			return nil, fmt.Errorf("empty schema column: %w", domain.ErrInvalidCorpus)
		}
		if _, dup := columns[col]; dup {
			return nil, fmt.Errorf("schema column %q repeated: %w", col, domain.ErrInvalidCorpus)
		}
		columns[col] = struct{}{}
	}

	seen := make(map[string]struct{}, len(docs))
	for i := range docs {
		id := docs[i].ID()
		if _, dup := seen[id]; dup {
			return nil, &domain.DuplicateDocumentError{ID: id}
		}
		seen[id] = struct{}{}
		for f := range docs[i].fields {
			if _, ok := columns[f]; !ok {
				return nil, fmt.Errorf("document %q has field %q outside schema: %w",
					id, f, domain.ErrInvalidCorpus)
			}
		}
	}

	return &Corpus{
		schema:  append([]string(nil), schema...),
		columns: columns,
		docs:    append([]Document(nil), docs...),
	}, nil
}

// Len returns the number of documents.
func (c *Corpus) Len() int { return len(c.docs) }

// At returns the i-th document in corpus order.
func (c *Corpus) At(i int) Document { return c.docs[i] }

// Documents returns a copy of the documents in corpus order.
func (c *Corpus) Documents() []Document { return append([]Document(nil), c.docs...) }

// Schema returns a copy of the column names.
func (c *Corpus) Schema() []string { return append([]string(nil), c.schema...) }

// HasField reports whether field is a schema column.
func (c *Corpus) HasField(field string) bool {
	_, ok := c.columns[field]
	return ok
}

// Column returns the values of field across the corpus, nil where absent.
func (c *Corpus) Column(field string) []*string {
	out := make([]*string, len(c.docs))
	for i := range c.docs {
		if t, ok := c.docs[i].Text(field); ok {
			out[i] = &t
		}
	}
	return out
}

// Fingerprint hashes the ordered values of field. Two corpora with equal fingerprints
// produce identical scores for the same prompt on that field.
func (c *Corpus) Fingerprint(field string) string {
	h := sha256.New()
	for i := range c.docs {
		t, ok := c.docs[i].Text(field)
		if !ok {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		fmt.Fprintf(h, "%d:", len(t))
		h.Write([]byte(t))
	}
	return field + ":" + hex.EncodeToString(h.Sum(nil))
}
