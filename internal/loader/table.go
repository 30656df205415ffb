// Package loader reads library catalog exports into a corpus.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/brycewhit13/booksearch/internal/domain"
)

// Table is a raw catalog export: a header and rows of optional cells. nil is a missing cell.
type Table struct {
	Columns []string
	Rows    [][]*string
}

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// ReadTable reads a .csv, .tsv or .parquet file. Empty delimited cells become nil.
func ReadTable(path string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return readDelimitedFile(path, ',')
	case ".tsv":
		return readDelimitedFile(path, '\t')
	case ".parquet":
		return readParquet(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", domain.ErrInvalidCorpus, ext)
	}
}

func readDelimitedFile(path string, comma rune) (*Table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	t, err := ReadDelimited(f, comma)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// ReadDelimited parses a header row followed by records separated by comma.
func ReadDelimited(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	if comma == '\t' {
		cr.LazyQuotes = true
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", domain.ErrInvalidCorpus)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := &Table{Columns: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		row := make([]*string, len(header))
		for i := 0; i < len(header) && i < len(rec); i++ {
			if rec[i] != "" {
				v := rec[i]
				row[i] = &v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes t with a header row. nil cells are written empty.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) && row[i] != nil {
				rec[i] = *row[i]
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// readParquet reads every top-level leaf column with the generic row reader.
// Nested columns are skipped.
func readParquet(path string) (*Table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", filepath.Base(path), err)
	}

	t := &Table{}
	leafToCol := make(map[int]int)
	for i, p := range pf.Schema().Columns() {
		if len(p) != 1 {
			continue
		}
		leafToCol[i] = len(t.Columns)
		t.Columns = append(t.Columns, p[0])
	}

	buf := make([]parquet.Row, 512)
	for _, rg := range pf.RowGroups() {
		rows := parquet.NewRowGroupReader(rg)
		for {
			n, readErr := rows.ReadRows(buf)
			for _, r := range buf[:n] {
				t.Rows = append(t.Rows, parquetRow(r, leafToCol, len(t.Columns)))
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return nil, fmt.Errorf("read rows: %w", readErr)
			}
		}
	}
	return t, nil
}

func parquetRow(r parquet.Row, leafToCol map[int]int, width int) []*string {
	row := make([]*string, width)
	for _, v := range r {
		col, ok := leafToCol[v.Column()]
		if !ok || v.IsNull() {
			continue
		}
		s := v.String()
		row[col] = &s
	}
	return row
}
