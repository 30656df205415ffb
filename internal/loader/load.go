package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/domain/corpus"
)

// PromptColumn is the column validation prompt files carry.
const PromptColumn = "prompt"

// Options controls how a table becomes a corpus.
type Options struct {
	// IDColumn supplies document IDs. Empty numbers documents by position after filtering.
	IDColumn string
	// Renames maps source column names to schema names before any other step.
	Renames map[string]string
	// DedupeBy keeps the first row for each value of this column. Empty disables.
	DedupeBy string
	// Require drops rows with a missing value in this column. Empty disables.
	Require string
}

// DefaultOptions dedupes by Title and drops rows without a Summary.
func DefaultOptions() Options {
	return Options{
		DedupeBy: corpus.FieldTitle,
		Require:  corpus.FieldSummary,
	}
}

// PublicLibraryRenames maps the public library scrape columns onto the catalog schema.
func PublicLibraryRenames() map[string]string {
	return map[string]string{
		"title":       corpus.FieldTitle,
		"author":      corpus.FieldAuthors,
		"description": corpus.FieldSummary,
	}
}

// Load reads path and builds a corpus with opts.
func Load(path string, opts Options) (*corpus.Corpus, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	c, err := Build(t, opts)
	if err != nil {
		return nil, fmt.Errorf("build corpus from %s: %w", path, err)
	}
	return c, nil
}

// Build applies renames, deduplication and then the required-column filter, and creates documents.
// A duplicate is dropped even when the row it duplicates is later filtered out.
// The schema is the table header without the ID column.
func Build(t *Table, opts Options) (*corpus.Corpus, error) {
	columns := rename(t.Columns, opts.Renames)
	renamed := &Table{Columns: columns, Rows: t.Rows}

	idIdx, err := optionalIndex(renamed, opts.IDColumn)
	if err != nil {
		return nil, err
	}
	requireIdx, err := optionalIndex(renamed, opts.Require)
	if err != nil {
		return nil, err
	}
	dedupeIdx, err := optionalIndex(renamed, opts.DedupeBy)
	if err != nil {
		return nil, err
	}

	schema := make([]string, 0, len(columns))
	for i, c := range columns {
		if i != idIdx {
			schema = append(schema, c)
		}
	}

	seen := make(map[string]struct{})
	seenNull := false
	docs := make([]corpus.Document, 0, len(t.Rows))
	for rowNum, row := range t.Rows {
		if dedupeIdx >= 0 {
			if key := cell(row, dedupeIdx); key == nil {
				if seenNull {
					continue
				}
				seenNull = true
			} else {
				if _, dup := seen[*key]; dup {
					continue
				}
				seen[*key] = struct{}{}
			}
		}
		if requireIdx >= 0 && cell(row, requireIdx) == nil {
			continue
		}

		id := strconv.Itoa(len(docs))
		if idIdx >= 0 {
			v := cell(row, idIdx)
			if v == nil || strings.TrimSpace(*v) == "" {
				return nil, fmt.Errorf("%w: row %d has no %s", domain.ErrInvalidCorpus, rowNum+1, opts.IDColumn)
			}
			id = strings.TrimSpace(*v)
		}

		fields := make(map[string]*string, len(schema))
		for i, c := range columns {
			if i != idIdx {
				fields[c] = cell(row, i)
			}
		}
		doc, err := corpus.New(id, fields)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", domain.ErrInvalidCorpus, rowNum+1, err)
		}
		docs = append(docs, doc)
	}

	c, err := corpus.NewCorpus(schema, docs)
	if err != nil {
		return nil, fmt.Errorf("new corpus: %w", err)
	}
	return c, nil
}

// Supplement is a table contributing extra columns to a merge.
type Supplement struct {
	Table   *Table
	Columns []string
}

// Merge inner-joins each supplement onto base by key. A base row joins the first supplement
// row carrying the same key; base rows without a match in every supplement are dropped.
// Column order is base columns followed by each supplement's columns.
func Merge(base *Table, key string, supplements ...Supplement) (*Table, error) {
	baseKey := base.Index(key)
	if baseKey < 0 {
		return nil, fmt.Errorf("%w: base has no %q column", domain.ErrInvalidCorpus, key)
	}

	out := &Table{Columns: append([]string(nil), base.Columns...), Rows: base.Rows}
	for n, sup := range supplements {
		supKey := sup.Table.Index(key)
		if supKey < 0 {
			return nil, fmt.Errorf("%w: supplement %d has no %q column", domain.ErrInvalidCorpus, n+1, key)
		}
		cols := make([]int, len(sup.Columns))
		for i, c := range sup.Columns {
			if out.Index(c) >= 0 {
				return nil, fmt.Errorf("%w: column %q already present", domain.ErrInvalidCorpus, c)
			}
			if cols[i] = sup.Table.Index(c); cols[i] < 0 {
				return nil, fmt.Errorf("%w: supplement %d has no %q column", domain.ErrInvalidCorpus, n+1, c)
			}
		}

		byKey := make(map[string][]*string, len(sup.Table.Rows))
		for _, row := range sup.Table.Rows {
			k := cell(row, supKey)
			if k == nil {
				continue
			}
			if _, ok := byKey[*k]; !ok {
				byKey[*k] = row
			}
		}

		joined := make([][]*string, 0, len(out.Rows))
		for _, row := range out.Rows {
			k := cell(row, baseKey)
			if k == nil {
				continue
			}
			match, ok := byKey[*k]
			if !ok {
				continue
			}
			merged := make([]*string, len(out.Columns), len(out.Columns)+len(cols))
			copy(merged, row)
			for _, ci := range cols {
				merged = append(merged, cell(match, ci))
			}
			joined = append(joined, merged)
		}
		out.Columns = append(out.Columns, sup.Columns...)
		out.Rows = joined
	}
	return out, nil
}

// LoadPrompts reads the prompt column of a validation prompt file. Missing cells are skipped.
func LoadPrompts(path string) ([]string, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	idx := t.Index(PromptColumn)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s has no %q column", domain.ErrInvalidCorpus, path, PromptColumn)
	}
	prompts := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if v := cell(row, idx); v != nil {
			prompts = append(prompts, *v)
		}
	}
	return prompts, nil
}

func rename(columns []string, renames map[string]string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		if to, ok := renames[c]; ok {
			out[i] = to
			continue
		}
		out[i] = c
	}
	return out
}

func optionalIndex(t *Table, column string) (int, error) {
	if column == "" {
		return -1, nil
	}
	idx := t.Index(column)
	if idx < 0 {
		return -1, fmt.Errorf("%w: missing column %q", domain.ErrInvalidCorpus, column)
	}
	return idx, nil
}

func cell(row []*string, i int) *string {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}
