package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

type SearchResult struct {
	Query      string `json:"query"`
	Parsed     string `json:"parsed"`
	Generation uint64 `json:"generation"`
	TotalHits  int    `json:"total_hits"`
	Hits       []Hit  `json:"hits"`
	EmptyIndex bool   `json:"empty_index,omitempty"`
}

// Executor runs query strings against the active generation of a Store.
type Executor struct {
	store  *store.Store
	opts   []Option
	logger *slog.Logger
}

// New returns an Executor. opts are the defaults for every query and can
// be overridden per call.
func New(s *store.Store, opts ...Option) *Executor {
	return &Executor{
		store:  s,
		opts:   opts,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute parses query with the analyzer of the active generation and
// searches that generation. The generation stays pinned for the whole
// call even if a newer one is activated meanwhile.
func (e *Executor) Execute(ctx context.Context, query string, limit int, opts ...Option) (*SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidLimit, limit)
	}
	h := e.store.Acquire()
	defer h.Release()
	gen := h.Generation()

	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	expr, err := parser.ParseWith(query, gen.Analyzer())
	parseSpan.End()
	if err != nil {
		return nil, err
	}
	parseSpan.SetAttr("expr", expr.String())

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		return nil, err
	}

	result := &SearchResult{
		Query:      query,
		Parsed:     expr.String(),
		Generation: gen.ID(),
	}
	if gen.DocCount() == 0 {
		e.logger.Debug("search on empty index", "query", query, "generation", gen.ID())
		result.EmptyIndex = true
		result.Hits = []Hit{}
		return result, nil
	}

	_, searchSpan := tracing.StartChildSpan(ctx, "search")
	hits, total, err := search(gen, expr, limit, append(e.opts[:len(e.opts):len(e.opts)], opts...)...)
	searchSpan.SetAttr("total_hits", total)
	searchSpan.End()
	if err != nil {
		return nil, err
	}
	result.Hits = hits
	result.TotalHits = total

	e.logger.Debug("query executed",
		"query", query,
		"parsed", result.Parsed,
		"generation", gen.ID(),
		"total_hits", total,
		"results", len(hits),
	)
	return result, nil
}

// Generation returns the ID of the generation queries currently run on.
func (e *Executor) Generation() uint64 {
	return e.store.Active()
}
