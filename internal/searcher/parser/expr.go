package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Expr is a parsed query expression.
type Expr interface {
	// String renders the expression in canonical, fully parenthesized form.
	String() string
	expr()
}

// Term matches documents containing Text in Field.
type Term struct {
	Field index.Field
	Text  string
}

// Phrase matches documents where Terms occur in order at adjacent positions.
type Phrase struct {
	Field index.Field
	Terms []string
}

type And struct {
	Left, Right Expr
}

type Or struct {
	Left, Right Expr
}

type Not struct {
	Expr Expr
}

func (Term) expr()   {}
func (Phrase) expr() {}
func (And) expr()    {}
func (Or) expr()     {}
func (Not) expr()    {}

func fieldPrefix(f index.Field) string {
	if f == index.FieldContent || f == "" {
		return ""
	}
	return string(f) + ":"
}

func (t Term) String() string {
	return fieldPrefix(t.Field) + t.Text
}

func (p Phrase) String() string {
	return fieldPrefix(p.Field) + `"` + strings.Join(p.Terms, " ") + `"`
}

func (a And) String() string {
	return "(" + a.Left.String() + " AND " + a.Right.String() + ")"
}

func (o Or) String() string {
	return "(" + o.Left.String() + " OR " + o.Right.String() + ")"
}

func (n Not) String() string {
	return "NOT " + n.Expr.String()
}

// Positive reports whether e can match documents on its own, that is
// without a complement over the whole collection.
func Positive(e Expr) bool {
	switch e := e.(type) {
	case Term, Phrase:
		return true
	case Not:
		return false
	case And:
		return Positive(e.Left) || Positive(e.Right)
	case Or:
		return Positive(e.Left) && Positive(e.Right)
	}
	return false
}

// Leaves returns the Term and Phrase leaves of e that are not negated,
// left to right. These are the leaves that contribute to scoring.
func Leaves(e Expr) []Expr {
	var out []Expr
	var walk func(Expr, bool)
	walk = func(e Expr, negated bool) {
		switch e := e.(type) {
		case Term, Phrase:
			if !negated {
				out = append(out, e)
			}
		case Not:
			walk(e.Expr, !negated)
		case And:
			walk(e.Left, negated)
			walk(e.Right, negated)
		case Or:
			walk(e.Left, negated)
			walk(e.Right, negated)
		}
	}
	walk(e, false)
	return out
}
