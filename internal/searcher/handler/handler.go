// Package handler serves the search HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, query string, limit int, opts ...executor.Option) (*executor.SearchResult, error)
	Generation() uint64
}

// Engine is the index owner behind the admin endpoints.
type Engine interface {
	Reload() (bool, error)
	Stats() indexer.Stats
}

type Handler struct {
	executor    SearchExecutor
	engine      Engine
	cache       *cache.QueryCache
	tracker     analytics.Tracker
	metrics     *metrics.Metrics
	sem         *semaphore.Weighted
	cfg         config.SearchConfig
	defaultMode ranker.Mode
	logger      *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithTracker(t analytics.Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New validates cfg.ScoringMode and returns a Handler.
func New(exec SearchExecutor, engine Engine, cfg config.SearchConfig, opts ...Option) (*Handler, error) {
	mode, err := ranker.ParseMode(cfg.ScoringMode)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxResults < cfg.DefaultLimit {
		cfg.MaxResults = cfg.DefaultLimit
	}
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = 64
	}
	h := &Handler{
		executor:    exec,
		engine:      engine,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentQueries)),
		cfg:         cfg,
		defaultMode: mode,
		logger:      slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type searchResponse struct {
	*executor.SearchResult
	CacheHit bool    `json:"cache_hit"`
	TookMs   float64 `json:"took_ms"`
}

type searchRequest struct {
	query     string
	limit     int
	mode      ranker.Mode
	normalize bool
}

func (h *Handler) parseRequest(r *http.Request) (searchRequest, error) {
	q := r.URL.Query()
	req := searchRequest{
		query:     q.Get("q"),
		limit:     h.cfg.DefaultLimit,
		mode:      h.defaultMode,
		normalize: h.cfg.NormalizeLength,
	}
	if req.query == "" {
		return req, fmt.Errorf("%w: query parameter 'q' is required", apperrors.ErrInvalidInput)
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return req, fmt.Errorf("%w: limit must be a positive integer", apperrors.ErrInvalidLimit)
		}
		req.limit = min(n, h.cfg.MaxResults)
	}
	if s := q.Get("mode"); s != "" {
		m, err := ranker.ParseMode(s)
		if err != nil {
			return req, err
		}
		req.mode = m
	}
	if s := q.Get("normalize"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return req, fmt.Errorf("%w: normalize must be a boolean", apperrors.ErrInvalidInput)
		}
		req.normalize = b
	}
	return req, nil
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "http.search", middleware.GetRequestID(r.Context()))
	defer span.Finish()
	log := logger.FromContext(ctx)

	req, err := h.parseRequest(r)
	if err != nil {
		h.countQuery("invalid")
		h.writeError(w, err)
		return
	}
	span.SetAttr("query", req.query)

	if err := h.sem.Acquire(ctx, 1); err != nil {
		h.countQuery("error")
		h.writeError(w, fmt.Errorf("%w: waiting for a query slot: %v", apperrors.ErrTimeout, err))
		return
	}
	defer h.sem.Release(1)

	opts := []executor.Option{executor.WithMode(req.mode), executor.WithLengthNormalization(req.normalize)}
	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, req.query, req.limit, opts...)
	}

	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil {
		key := cache.Key{
			Generation: h.executor.Generation(),
			Query:      req.query,
			Limit:      req.limit,
			Mode:       string(req.mode),
			Normalize:  req.normalize,
		}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
	} else {
		result, err = compute()
	}
	latency := time.Since(start)

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, apperrors.ErrQuerySyntax) {
			h.countQuery("syntax_error")
		} else {
			h.countQuery("error")
		}
		if status >= http.StatusInternalServerError {
			log.Error("search execution failed", "query", req.query, "error", err)
		} else {
			log.Info("search rejected", "query", req.query, "error", err)
		}
		h.track(analytics.SearchEvent{
			Query:     req.query,
			Mode:      string(req.mode),
			LatencyMs: latency.Milliseconds(),
			Failed:    true,
			RequestID: middleware.GetRequestID(ctx),
		})
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		resultType := "hit"
		if result.TotalHits == 0 {
			resultType = "zero_result"
		}
		h.countQuery(resultType)
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(result.Hits)))
	}

	log.Info("search completed",
		"query", req.query,
		"parsed", result.Parsed,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(analytics.SearchEvent{
		Query:      req.query,
		Parsed:     result.Parsed,
		Mode:       string(req.mode),
		Generation: result.Generation,
		TotalHits:  result.TotalHits,
		Returned:   len(result.Hits),
		LatencyMs:  latency.Milliseconds(),
		CacheHit:   cacheHit,
		RequestID:  middleware.GetRequestID(ctx),
	})

	h.writeJSON(w, http.StatusOK, searchResponse{
		SearchResult: result,
		CacheHit:     cacheHit,
		TookMs:       float64(latency.Microseconds()) / 1000,
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

// Reload activates the newest generation on disk, if it is newer than
// the active one.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.engine.Reload()
	if err != nil && !errors.Is(err, apperrors.ErrNoGenerationYet) {
		h.logger.Error("reload failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":   loaded,
		"generation": h.executor.Generation(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) countQuery(resultType string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (h *Handler) track(e analytics.SearchEvent) {
	if h.tracker != nil {
		h.tracker.Track(analytics.NewSearchEvent(e))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. Server-side failures are not
// described to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := map[string]any{"error": err.Error()}
	var syntaxErr *apperrors.SyntaxError
	if errors.As(err, &syntaxErr) {
		body["position"] = syntaxErr.Pos
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		body = map[string]any{"error": "search failed"}
	}
	h.writeJSON(w, status, body)
}
