package score

import (
	"encoding/json"
	"math"
	"strconv"
)

// Kind distinguishes boolean match results from numeric similarities.
type Kind uint8

// Score kinds.
const (
	Boolean Kind = iota + 1
	Similarity
)

// Score is the per-document output of a matcher: a boolean match, a similarity,
// or the undefined sentinel produced for documents whose searched field is absent.
// Undefined is a value, not an error, and always ranks after every defined score.
type Score struct {
	kind    Kind
	defined bool
	value   float64
}

// Match creates a boolean score.
func Match(matched bool) Score {
	v := 0.0
	if matched {
		v = 1
	}
	return Score{kind: Boolean, defined: true, value: v}
}

// Of creates a similarity score. NaN collapses to Undefined.
func Of(v float64) Score {
	if math.IsNaN(v) {
		return Undefined()
	}
	return Score{kind: Similarity, defined: true, value: v}
}

// Undefined creates the undefined similarity sentinel.
func Undefined() Score {
	return Score{kind: Similarity}
}

// Kind returns the score kind.
func (s Score) Kind() Kind { return s.kind }

// IsDefined reports whether the score carries a value.
func (s Score) IsDefined() bool { return s.defined }

// Matched reports a boolean match. Similarity scores are never matches.
func (s Score) Matched() bool { return s.kind == Boolean && s.value == 1 }

// Value returns the numeric value: 1 or 0 for boolean scores, NaN when undefined.
func (s Score) Value() float64 {
	if !s.defined {
		return math.NaN()
	}
	return s.value
}

// String renders the score for logs and CLI output.
func (s Score) String() string {
	switch {
	case s.kind == Boolean:
		return strconv.FormatBool(s.Matched())
	case !s.defined:
		return "NaN"
	default:
		return strconv.FormatFloat(s.value, 'f', 4, 64)
	}
}

// MarshalJSON encodes boolean scores as true/false, similarities as numbers
// and the undefined sentinel as null.
func (s Score) MarshalJSON() ([]byte, error) {
	switch {
	case s.kind == Boolean:
		return json.Marshal(s.Matched())
	case !s.defined:
		return []byte("null"), nil
	default:
		return json.Marshal(s.value)
	}
}
