package executor

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Hit is one ranked document.
type Hit struct {
	DocID    uint32  `json:"doc_id"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

type options struct {
	mode            ranker.Mode
	normalizeLength bool
}

// Option adjusts scoring.
type Option func(*options)

// WithMode selects the scoring function. The default is TF-IDF.
func WithMode(m ranker.Mode) Option {
	return func(o *options) {
		if m != "" {
			o.mode = m
		}
	}
}

// WithLengthNormalization divides every score by the document length.
func WithLengthNormalization(enabled bool) Option {
	return func(o *options) { o.normalizeLength = enabled }
}

// Search evaluates expr against gen and returns at most limit hits, best
// first, with equal scores ordered by ascending DocID. Only leaves that
// are not negated contribute to scores.
func Search(gen *index.Generation, expr parser.Expr, limit int, opts ...Option) ([]Hit, error) {
	hits, _, err := search(gen, expr, limit, opts...)
	return hits, err
}

func search(gen *index.Generation, expr parser.Expr, limit int, opts ...Option) ([]Hit, int, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: got %d", apperrors.ErrInvalidLimit, limit)
	}
	if expr == nil {
		return nil, 0, &apperrors.SyntaxError{Reason: "empty query"}
	}
	o := options{mode: ranker.ModeTFIDF}
	for _, opt := range opts {
		opt(&o)
	}
	if gen.DocCount() == 0 {
		return []Hit{}, 0, nil
	}

	ev := newEvaluator(gen)
	matched := ev.eval(expr)
	if matched.negated {
		return nil, 0, &apperrors.SyntaxError{Query: expr.String(), Reason: "query must contain a term that is not negated"}
	}
	if matched.ids.IsEmpty() {
		return []Hit{}, 0, nil
	}

	seen := make(map[string]struct{})
	var leaves []ranker.Leaf
	for _, leaf := range parser.Leaves(expr) {
		key := leaf.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		leaves = append(leaves, ranker.Leaf{Postings: ev.leaf(leaf)})
	}

	params := ranker.RankParams{
		Mode:            o.mode,
		NormalizeLength: o.normalizeLength,
		TotalDocs:       gen.DocCount(),
		AvgDocLength:    gen.AvgDocLength(),
	}
	scored := ranker.Rank(leaves, matched.ids.ToArray(), params, gen.DocLength)
	top := merger.TopK(scored, limit)

	hits := make([]Hit, len(top))
	for i, d := range top {
		hits[i] = Hit{DocID: d.DocID, Filename: gen.Filename(d.DocID), Score: d.Score}
	}
	return hits, int(matched.ids.GetCardinality()), nil
}
