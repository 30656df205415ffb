package corpus

import "fmt"

// Default schema columns of a scraped library catalog.
const (
	FieldTitle              = "Title"
	FieldLocation           = "Location"
	FieldAuthors            = "Authors"
	FieldSummary            = "Summary"
	FieldExtractiveSummary  = "extractive_summary"
	FieldAbbreviatedSummary = "abbreviated_summary"
)

// MaxIDLength is the maximum document identifier length.
const MaxIDLength = 256

// DefaultSchema returns the column order of the combined catalog export.
func DefaultSchema() []string {
	return []string{
		FieldTitle,
		FieldLocation,
		FieldAuthors,
		FieldSummary,
		FieldExtractiveSummary,
		FieldAbbreviatedSummary,
	}
}

// Document is one catalog record (immutable value object).
// A nil field value means the attribute is absent, which is distinct from an empty string.
type Document struct {
	id     string
	fields map[string]*string
}

// New validates and creates a Document. Field values are copied.
func New(id string, fields map[string]*string) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > MaxIDLength {
		return Document{}, fmt.Errorf("document ID too long (max %d)", MaxIDLength)
	}
	return Document{id: id, fields: cloneFields(fields)}, nil
}

// Some returns a pointer to s, for building present field values.
func Some(s string) *string { return &s }

// ID returns the document identifier.
func (d Document) ID() string { return d.id }

// Text returns the value of field and whether it is present.
func (d Document) Text(field string) (string, bool) {
	v, ok := d.fields[field]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Title returns the display title, empty when absent.
func (d Document) Title() string {
	t, _ := d.Text(FieldTitle)
	return t
}

// Authors returns the author line, empty when absent.
func (d Document) Authors() string {
	a, _ := d.Text(FieldAuthors)
	return a
}

// Location returns the shelf location, empty when absent.
func (d Document) Location() string {
	l, _ := d.Text(FieldLocation)
	return l
}

// Fields returns a copy of all field values.
func (d Document) Fields() map[string]*string { return cloneFields(d.fields) }

func cloneFields(in map[string]*string) map[string]*string {
	if in == nil {
		return nil
	}
	out := make(map[string]*string, len(in))
	for k, v := range in {
		if v == nil {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}
