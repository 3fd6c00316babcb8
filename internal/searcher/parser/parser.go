// Package parser turns query strings into expression trees.
//
// Bare words are joined with AND. Upper-case AND, OR and NOT are operators,
// a leading '-' negates the next operand, double quotes delimit a phrase
// and parentheses group. A "field:" prefix restricts an operand to one
// index field. NOT binds tighter than AND and OR, which share one level
// and associate left to right.
package parser

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Parse parses query using the default analyzer.
func Parse(query string) (Expr, error) {
	return ParseWith(query, tokenizer.Default)
}

// ParseWith parses query, normalizing words and phrases with analyzer so
// query terms match the index vocabulary. Words that normalize to nothing
// are dropped; a query left with no terms is a syntax error, as is a query
// made only of negations.
func ParseWith(query string, analyzer tokenizer.Analyzer) (Expr, error) {
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{query: query, tokens: tokens, analyzer: analyzer}
	if p.peek().kind == tokEOF {
		return nil, p.errorf(0, "empty query")
	}

	e, err := p.parseSequence(index.FieldContent, 0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, p.errorf(tok.pos, "unbalanced parenthesis")
		}
		return nil, p.errorf(tok.pos, "unexpected %s", tok.kind)
	}
	if e == nil {
		return nil, p.errorf(0, "query has no searchable terms")
	}
	if !Positive(e) {
		return nil, p.errorf(0, "query must contain a term that is not negated")
	}
	return e, nil
}

type parser struct {
	query    string
	tokens   []token
	pos      int
	analyzer tokenizer.Analyzer
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &apperrors.SyntaxError{Query: p.query, Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

// parseSequence reads operands joined by explicit or implicit operators
// until the end of input or a closing parenthesis. A nil Expr means every
// operand normalized away.
func (p *parser) parseSequence(field index.Field, depth int) (Expr, error) {
	if tok := p.peek(); tok.kind == tokAnd || tok.kind == tokOr {
		return nil, p.errorf(tok.pos, "%s has no left operand", tok.kind)
	}
	left, err := p.parseUnary(field, depth)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind == tokEOF || tok.kind == tokRParen {
			return left, nil
		}
		op := tokAnd
		if tok.kind == tokAnd || tok.kind == tokOr {
			op = tok.kind
			p.next()
		}
		right, err := p.parseUnary(field, depth)
		if err != nil {
			return nil, err
		}
		left = combine(op, left, right)
	}
}

func combine(op tokenKind, left, right Expr) Expr {
	switch {
	case left == nil:
		return right
	case right == nil:
		return left
	case op == tokOr:
		return Or{Left: left, Right: right}
	default:
		return And{Left: left, Right: right}
	}
}

func (p *parser) parseUnary(field index.Field, depth int) (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNot:
		p.next()
		operand, err := p.parseUnary(field, depth)
		if err != nil {
			return nil, err
		}
		return negate(operand), nil
	case tokMinus:
		p.next()
		operand, err := p.parsePrimary(field, depth)
		if err != nil {
			return nil, err
		}
		return negate(operand), nil
	}
	return p.parsePrimary(field, depth)
}

func negate(e Expr) Expr {
	if e == nil {
		return nil
	}
	return Not{Expr: e}
}

func (p *parser) parsePrimary(field index.Field, depth int) (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokField:
		f := index.Field(tok.text)
		if !f.Valid() {
			return nil, p.errorf(tok.pos, "unknown field %q", tok.text)
		}
		switch p.peek().kind {
		case tokWord, tokPhrase, tokLParen:
		default:
			return nil, p.errorf(tok.pos, "field %q has no operand", tok.text)
		}
		return p.parsePrimary(f, depth)
	case tokLParen:
		if p.peek().kind == tokRParen {
			p.next()
			return nil, nil
		}
		inner, err := p.parseSequence(field, depth+1)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(tok.pos, "unbalanced parenthesis")
		}
		return inner, nil
	case tokWord, tokPhrase:
		return p.leaf(field, tok.text), nil
	case tokEOF:
		return nil, p.errorf(tok.pos, "operator has no right operand")
	case tokRParen:
		if depth == 0 {
			return nil, p.errorf(tok.pos, "unbalanced parenthesis")
		}
		return nil, p.errorf(tok.pos, "operator has no right operand")
	}
	return nil, p.errorf(tok.pos, "unexpected %s", tok.kind)
}

// leaf normalizes text into a Term, or a Phrase when it yields several
// terms, as with "data-pipelines".
func (p *parser) leaf(field index.Field, text string) Expr {
	terms := p.analyzer.Terms(text)
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return Term{Field: field, Text: terms[0]}
	}
	return Phrase{Field: field, Terms: terms}
}
