package store

import (
	"regexp"
	"strings"
)

// splitRegex matches runs of whitespace and the punctuation class that
// separates tokens. Underscores stay inside tokens.
var splitRegex = regexp.MustCompile("[\\s.,;:!?'\"()\\[\\]{}<>/\\\\|`~@#$%^&*+=\\-]+")

// DefaultStopWords is the English stop-word set dropped during tokenization.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in",
	"into", "is", "it", "no", "not", "of", "on", "or", "such", "that", "the",
	"their", "then", "there", "these", "they", "this", "to", "was", "will", "with",
}

var defaultTokenizer = NewTokenizer(nil)

// Tokenizer lowercases, splits and drops stop words.
type Tokenizer struct {
	stopWords map[string]struct{}
}

// NewTokenizer builds a tokenizer. A nil stopWords uses DefaultStopWords.
func NewTokenizer(stopWords []string) *Tokenizer {
	if stopWords == nil {
		stopWords = DefaultStopWords
	}
	return &Tokenizer{stopWords: BuildStopWordMap(stopWords)}
}

// Tokenize returns the ordered tokens of text with the default stop words removed.
func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

// Tokenize returns the ordered tokens of text.
func (t *Tokenizer) Tokenize(text string) []string {
	return FilterStopWords(Split(text), t.stopWords)
}

// Split lowercases text and splits it on whitespace and punctuation,
// dropping empty pieces. Stop words are kept.
func Split(text string) []string {
	parts := splitRegex.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// termPositions groups tokens into term -> ordered positions.
func termPositions(tokens []string) map[string][]int {
	positions := make(map[string][]int)
	for i, tok := range tokens {
		positions[tok] = append(positions[tok], i)
	}
	return positions
}
