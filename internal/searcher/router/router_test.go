package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

type staticEngine struct{}

func (staticEngine) Reload() (bool, error) { return false, nil }
func (staticEngine) Stats() indexer.Stats  { return indexer.Stats{} }

func newServer(t *testing.T, limiter *middleware.ClientLimiter) *httptest.Server {
	t.Helper()
	s := store.New()
	b := s.NewBuilder()
	_, err := b.AddDocument("guide.md", "install the data pipeline")
	require.NoError(t, err)
	gen, err := b.Commit()
	require.NoError(t, err)
	s.Activate(gen)

	agg := analytics.NewAggregator()
	h, err := handler.New(executor.New(s), staticEngine{}, config.SearchConfig{DefaultLimit: 5, MaxResults: 50}, handler.WithTracker(agg))
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp}
	})
	srv := httptest.NewServer(New(h, Deps{
		Health:    checker,
		Analytics: agg,
		Limiter:   limiter,
		Timeout:   time.Second,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchThroughMiddleware(t *testing.T) {
	srv := newServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/search?q=pipeline")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	var body struct {
		Hits []executor.Hit `json:"hits"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Hits, 1)
	assert.Equal(t, "guide.md", body.Hits[0].Filename)

	resp, err = http.Get(srv.URL + "/api/v1/analytics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats analytics.AggregatedStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}

func TestMethodAndRouteMismatch(t *testing.T) {
	srv := newServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/search?q=data", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthIsNotRateLimited(t *testing.T) {
	srv := newServer(t, middleware.NewClientLimiter(0.001, 1, time.Minute))

	resp, err := http.Get(srv.URL + "/api/v1/search?q=data")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/search?q=data")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	for i := 0; i < 3; i++ {
		resp, err = http.Get(srv.URL + "/health/ready")
		require.NoError(t, err)
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	}
}
