// Package tokenizer turns raw text into normalized terms. The default
// Analyzer lower-cases input and splits on every run of non-alphanumeric
// runes; stop-word removal, a minimum term length and a light suffix
// stemmer are opt-in.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a single normalized term and its position in the produced
// sequence.
type Token struct {
	Term     string
	Position int
}

// Analyzer holds the normalization policy. The zero value keeps every
// token, including single characters.
type Analyzer struct {
	StopWords bool `json:"stop_words,omitempty"`
	MinLength int  `json:"min_length,omitempty"`
	Stem      bool `json:"stem,omitempty"`
}

// Default is the analyzer used when none is configured.
var Default = Analyzer{}

// Tokens lazily yields the tokens of text using the default analyzer.
func Tokens(text string) iter.Seq[Token] {
	return Default.Tokens(text)
}

// Tokenize returns all tokens of text using the default analyzer.
func Tokenize(text string) []Token {
	return Default.Tokenize(text)
}

// Tokens lazily yields the tokens of text. The sequence can be ranged over
// any number of times; nothing is retained between iterations.
func (a Analyzer) Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		start := -1
		for i, r := range text {
			if isTermRune(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if term, ok := a.normalize(text[start:i]); ok {
					if !yield(Token{Term: term, Position: pos}) {
						return
					}
					pos++
				}
				start = -1
			}
		}
		if start >= 0 {
			if term, ok := a.normalize(text[start:]); ok {
				yield(Token{Term: term, Position: pos})
			}
		}
	}
}

// Tokenize materializes Tokens.
func (a Analyzer) Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/6)
	for tok := range a.Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// Terms returns only the term strings, in order.
func (a Analyzer) Terms(text string) []string {
	terms := make([]string, 0, 4)
	for tok := range a.Tokens(text) {
		terms = append(terms, tok.Term)
	}
	return terms
}

func (a Analyzer) normalize(word string) (string, bool) {
	word = strings.ToLower(word)
	if a.MinLength > 0 && utf8.RuneCountInString(word) < a.MinLength {
		return "", false
	}
	if a.StopWords {
		if _, isStop := stopWords[word]; isStop {
			return "", false
		}
	}
	if a.Stem {
		word = stem(word)
	}
	return word, word != ""
}

func isTermRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
