// Package router wires the search service routes and applies the
// middleware chain (RequestID → Metrics → CORS → RateLimit → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// Deps are the optional pieces of the chain. Nil fields are skipped.
type Deps struct {
	Health    *health.Checker
	Analytics http.Handler
	Metrics   *metrics.Metrics
	Limiter   *middleware.ClientLimiter
	Timeout   time.Duration
}

var routes = []string{
	"/api/v1/search",
	"/api/v1/stats",
	"/api/v1/reload",
	"/api/v1/analytics",
	"/api/v1/cache/stats",
	"/api/v1/cache/invalidate",
	"/health/live",
	"/health/ready",
}

// New builds the search service handler.
//
// Route table:
//
//	GET    /api/v1/search           → ranked search (q, limit, mode, normalize)
//	GET    /api/v1/stats            → active generation statistics
//	POST   /api/v1/reload           → activate the newest generation on disk
//	GET    /api/v1/analytics        → aggregated search analytics
//	GET    /api/v1/cache/stats      → cache hit rate
//	POST   /api/v1/cache/invalidate → drop cached results
//	GET    /health/live, /health/ready
func New(h *handler.Handler, deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if deps.Analytics != nil {
		mux.Handle("GET /api/v1/analytics", deps.Analytics)
	}
	if deps.Health != nil {
		mux.HandleFunc("GET /health/live", deps.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", deps.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(deps.Timeout)(chain)
	chain = middleware.RateLimit(deps.Limiter)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	if deps.Metrics != nil {
		chain = middleware.Metrics(deps.Metrics, routes...)(chain)
	}
	chain = middleware.RequestID(chain)

	return chain
}
