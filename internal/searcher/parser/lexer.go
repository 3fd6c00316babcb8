package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPhrase
	tokField
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokMinus
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokWord:
		return "word"
	case tokPhrase:
		return "phrase"
	case tokField:
		return "field qualifier"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokMinus:
		return "'-'"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits a query into tokens. Keywords are recognized only in upper
// case so that lower-case "and", "or" and "not" stay searchable words.
func lex(query string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '"':
			end := strings.IndexByte(query[i+1:], '"')
			if end < 0 {
				return nil, &apperrors.SyntaxError{Query: query, Pos: i, Reason: "unbalanced quote"}
			}
			tokens = append(tokens, token{kind: tokPhrase, text: query[i+1 : i+1+end], pos: i})
			i += end + 2
		case r == '-' && i+1 < len(query) && startsOperand(query[i+1:]) && atTokenStart(query, i):
			tokens = append(tokens, token{kind: tokMinus, text: "-", pos: i})
			i++
		default:
			start := i
			for i < len(query) {
				r, size := utf8.DecodeRuneInString(query[i:])
				if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
					break
				}
				if r == ':' && isFieldName(query[start:i]) {
					break
				}
				i += size
			}
			word := query[start:i]
			if i < len(query) && query[i] == ':' && isFieldName(word) {
				tokens = append(tokens, token{kind: tokField, text: strings.ToLower(word), pos: start})
				i++
				continue
			}
			tokens = append(tokens, token{kind: keywordKind(word), text: word, pos: start})
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(query)})
	return tokens, nil
}

func keywordKind(word string) tokenKind {
	switch word {
	case "AND":
		return tokAnd
	case "OR":
		return tokOr
	case "NOT":
		return tokNot
	}
	return tokWord
}

func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '_' {
			return false
		}
	}
	return true
}

func startsOperand(rest string) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsSpace(r) && r != ')' && r != '-'
}

func atTokenStart(query string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(query[:i])
	return unicode.IsSpace(r) || r == '('
}
