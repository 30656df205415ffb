package tokenizer

import (
	"regexp"
	"sort"
	"strings"
)

// wordRegex matches runs of two or more word characters (letters, digits, marks, underscore).
// Single-character tokens are discarded, as in the common bag-of-words default.
var wordRegex = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// Tokenize lowercases text and returns its tokens in order of appearance.
func Tokenize(text string) []string {
	matches := wordRegex.FindAllString(strings.ToLower(text), -1)
	if matches == nil {
		return make([]string, 0) // Initialize as empty slice, not nil
	}
	return matches
}

// Counts returns the term frequency of every token in text.
func Counts(text string) map[string]int {
	tokens := Tokenize(text)
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	return counts
}

// Vocabulary returns the distinct tokens of text sorted lexicographically,
// which fixes the feature order of vectors built over it.
func Vocabulary(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			seen[tok] = struct{}{}
		}
	}
	vocab := make([]string, 0, len(seen))
	for tok := range seen {
		vocab = append(vocab, tok)
	}
	sort.Strings(vocab)
	return vocab
}
