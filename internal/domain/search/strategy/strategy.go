package strategy

import "strings"

// Strategy selects the matcher that scores documents against a prompt.
type Strategy string

// Strategy constants.
const (
	// Keyword keeps documents whose field contains every prompt token at least as often as the prompt.
	Keyword Strategy = "keyword_match"
	// Lexical scores TF-IDF cosine similarity over the prompt vocabulary.
	Lexical Strategy = "lexical_similarity"
	// Semantic scores cosine similarity of contextual embeddings.
	Semantic Strategy = "semantic_similarity"
)

// All returns every supported strategy in display order.
func All() []Strategy {
	return []Strategy{Keyword, Lexical, Semantic}
}

// IsValid checks if the strategy is one of the supported values.
func (s Strategy) IsValid() bool {
	return s == Keyword || s == Lexical || s == Semantic
}

// Parse normalizes case and surrounding whitespace and accepts the short aliases
// "keyword", "lexical" and "semantic". The result may still be invalid.
func Parse(raw string) Strategy {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "keyword":
		return Keyword
	case "lexical", "tfidf", "cosine":
		return Lexical
	case "semantic", "bert", "embedding":
		return Semantic
	}
	return Strategy(s)
}

// Boolean reports whether the strategy yields match/no-match scores instead of similarities.
func (s Strategy) Boolean() bool { return s == Keyword }
