package ingest

import (
	"strings"
	"unicode"
)

// MinTokenLength is the shortest token the tokenizer keeps.
const MinTokenLength = 2

// DefaultStopwords lists articles, conjunctions, pronouns, prepositions and
// common auxiliary verbs that never carry search intent on their own.
var DefaultStopwords = []string{
	"a", "an", "the",
	"and", "or", "but", "nor", "so", "yet",
	"i", "me", "my", "we", "our", "you", "your", "he", "him", "his",
	"she", "her", "it", "its", "they", "them", "their", "this", "that",
	"these", "those", "who", "what", "which",
	"is", "am", "are", "was", "were", "be", "been", "being",
	"do", "does", "did", "have", "has", "had",
	"can", "could", "will", "would", "should", "may", "might", "must",
	"of", "for", "in", "on", "at", "to", "by", "with", "from", "as",
	"into", "about", "than",
}

// Tokenizer handles search query tokenization and normalization
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a new tokenizer with the given stopword list
func NewTokenizer(stopwords []string) *Tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops}
}

// NewDefaultTokenizer creates a tokenizer with DefaultStopwords.
func NewDefaultTokenizer() *Tokenizer {
	return NewTokenizer(DefaultStopwords)
}

// Tokenize lower-cases text, treats every character outside [a-z0-9] as a
// separator and returns the remaining tokens in order. Tokens shorter than
// MinTokenLength and stopwords are dropped.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if word := t.processToken(current.String()); word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

func (t *Tokenizer) processToken(word string) string {
	if len(word) < MinTokenLength {
		return ""
	}
	if t.IsStopword(word) {
		return ""
	}
	return word
}

// IsStopword reports whether word is in the stopword list.
func (t *Tokenizer) IsStopword(word string) bool {
	_, ok := t.stopwords[strings.ToLower(word)]
	return ok
}

// AddStopword adds a word to the stopword list
func (t *Tokenizer) AddStopword(word string) {
	t.stopwords[strings.ToLower(word)] = struct{}{}
}

// RemoveStopword removes a word from the stopword list
func (t *Tokenizer) RemoveStopword(word string) {
	delete(t.stopwords, strings.ToLower(word))
}
