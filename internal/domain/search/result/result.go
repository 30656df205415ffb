package result

import (
	"time"

	"github.com/brycewhit13/booksearch/internal/domain/corpus"
	"github.com/brycewhit13/booksearch/internal/domain/search/score"
	"github.com/brycewhit13/booksearch/internal/domain/search/strategy"
)

// Scored pairs a document with the score one query assigned to it.
// Scores are never written back onto the document.
type Scored struct {
	doc      corpus.Document
	position int
	score    score.Score
}

// NewScored creates a scored document. position is the document index in corpus order.
func NewScored(doc corpus.Document, position int, s score.Score) Scored {
	return Scored{doc: doc, position: position, score: s}
}

// Document returns the scored document.
func (s Scored) Document() corpus.Document { return s.doc }

// ID returns the document identifier.
func (s Scored) ID() string { return s.doc.ID() }

// Position returns the index of the document in corpus order.
func (s Scored) Position() int { return s.position }

// Score returns the query score.
func (s Scored) Score() score.Score { return s.score }

// Set is the outcome of one query: the ranked top-K and the full scored view.
type Set struct {
	queryID   string
	strat     strategy.Strategy
	field     string
	documents []Scored
	scored    []Scored
	took      time.Duration
}

// NewSet creates a result set. scored must be in corpus order.
func NewSet(
	queryID string, s strategy.Strategy, field string,
	documents, scored []Scored, took time.Duration,
) Set {
	return Set{
		queryID: queryID, strat: s, field: field,
		documents: documents, scored: scored, took: took,
	}
}

// QueryID returns the unique query identifier.
func (s Set) QueryID() string { return s.queryID }

// Strategy returns the strategy that produced the scores.
func (s Set) Strategy() strategy.Strategy { return s.strat }

// Field returns the searched field.
func (s Set) Field() string { return s.field }

// Documents returns the ranked top-K documents.
func (s Set) Documents() []Scored { return s.documents }

// Scored returns every document with its score, in corpus order.
func (s Set) Scored() []Scored { return s.scored }

// TotalScored returns the number of documents scored.
func (s Set) TotalScored() int { return len(s.scored) }

// Took returns the query duration.
func (s Set) Took() time.Duration { return s.took }
