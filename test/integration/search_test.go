//go:build integration

// Package integration drives the indexing and search components together:
// a real engine persisting to a temp directory, a second engine reloading
// from it, and the search service's HTTP stack on top. External services
// are replaced by in-memory fakes unless TEST_POSTGRES_* points at a
// database.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/router"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrCacheMiss
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type platform struct {
	dataDir  string
	writer   *indexer.Engine
	reader   *indexer.Engine
	agg      *analytics.Aggregator
	server   *httptest.Server
	commits  []indexer.CommitInfo
	commitMu sync.Mutex
}

func indexerConfig(dataDir string) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:           dataDir,
		Compression:       "lz4",
		RetainGenerations: 2,
	}
}

func newPlatform(t *testing.T, hooks ...func(context.Context, indexer.CommitInfo)) *platform {
	t.Helper()
	p := &platform{dataDir: t.TempDir(), agg: analytics.NewAggregator()}

	opts := []indexer.Option{indexer.WithCommitHook(func(_ context.Context, info indexer.CommitInfo) {
		p.commitMu.Lock()
		p.commits = append(p.commits, info)
		p.commitMu.Unlock()
	})}
	for _, h := range hooks {
		opts = append(opts, indexer.WithCommitHook(h))
	}
	writer, err := indexer.NewEngine(indexerConfig(p.dataDir), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })
	p.writer = writer

	reader, err := indexer.NewEngine(indexerConfig(p.dataDir))
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	p.reader = reader

	qc := cache.New(&memBackend{data: map[string][]byte{}}, time.Minute)
	h, err := handler.New(executor.New(reader.Store()), reader, config.SearchConfig{
		DefaultLimit: 5,
		MaxResults:   50,
		ScoringMode:  "tfidf",
	}, handler.WithCache(qc), handler.WithTracker(p.agg))
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.Register("index", health.GenerationCheck(reader.Store().Active, true))
	p.server = httptest.NewServer(router.New(h, router.Deps{
		Health:    checker,
		Analytics: p.agg,
		Timeout:   5 * time.Second,
	}))
	t.Cleanup(p.server.Close)
	return p
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func (p *platform) ingest(t *testing.T, root string) source.Report {
	t.Helper()
	ctx := context.Background()
	report, err := source.Ingest(ctx, source.DirSource{Root: root}, p.writer)
	require.NoError(t, err)
	_, err = p.writer.Commit(ctx)
	require.NoError(t, err)
	return report
}

type searchBody struct {
	Generation uint64 `json:"generation"`
	TotalHits  int    `json:"total_hits"`
	Hits       []struct {
		Filename string  `json:"filename"`
		Score    float64 `json:"score"`
	} `json:"hits"`
	CacheHit   bool   `json:"cache_hit"`
	EmptyIndex bool   `json:"empty_index"`
	Error      string `json:"error"`
	Position   *int   `json:"position"`
}

func (p *platform) search(t *testing.T, query string, params url.Values) (int, searchBody) {
	t.Helper()
	if params == nil {
		params = url.Values{}
	}
	params.Set("q", query)
	resp, err := http.Get(p.server.URL + "/api/v1/search?" + params.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	var body searchBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (p *platform) reload(t *testing.T) {
	t.Helper()
	resp, err := http.Post(p.server.URL+"/api/v1/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func filenames(body searchBody) []string {
	names := make([]string, len(body.Hits))
	for i, h := range body.Hits {
		names[i] = h.Filename
	}
	return names
}

func TestSearchBeforeFirstCommit(t *testing.T) {
	p := newPlatform(t)
	status, body := p.search(t, "data", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.EmptyIndex)
	assert.Empty(t, body.Hits)
}

func TestIngestReloadAndSearch(t *testing.T) {
	p := newPlatform(t)
	report := p.ingest(t, writeDocs(t, map[string]string{
		"doc1.md":          "data is data",
		"doc2.md":          "metadata about data pipelines",
		"guides/setup.mdx": "install the data pipelines",
		"bad.md":           "\xff\xfe\xfd",
		"ignored.txt":      "data data data",
	}))
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, []string{"bad.md"}, report.Skipped)

	p.reload(t)
	status, body := p.search(t, "data", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(1), body.Generation)
	assert.Equal(t, 3, body.TotalHits)
	assert.Equal(t, "doc1.md", body.Hits[0].Filename)

	_, body = p.search(t, `"data pipelines" -metadata`, nil)
	assert.Equal(t, []string{"guides/setup.mdx"}, filenames(body))

	_, body = p.search(t, "pipelines", url.Values{"limit": {"1"}, "mode": {"count"}})
	assert.Len(t, body.Hits, 1)
	assert.Equal(t, 2, body.TotalHits)
}

func TestCacheFollowsGeneration(t *testing.T) {
	p := newPlatform(t)
	p.ingest(t, writeDocs(t, map[string]string{"a.md": "alpha beta"}))
	p.reload(t)

	_, first := p.search(t, "alpha", nil)
	assert.False(t, first.CacheHit)
	_, second := p.search(t, "alpha", nil)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Hits, second.Hits)

	p.ingest(t, writeDocs(t, map[string]string{"b.md": "alpha alpha gamma"}))
	p.reload(t)

	_, third := p.search(t, "alpha", nil)
	assert.False(t, third.CacheHit, "new generation must not serve stale results")
	assert.Equal(t, uint64(2), third.Generation)
	assert.Equal(t, []string{"b.md", "a.md"}, filenames(third))
}

func TestSyntaxErrorOverHTTP(t *testing.T) {
	p := newPlatform(t)
	p.ingest(t, writeDocs(t, map[string]string{"a.md": "alpha"}))
	p.reload(t)

	status, body := p.search(t, "alpha AND (beta", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body.Error)
	require.NotNil(t, body.Position)
}

func TestAnalyticsAndCommitHooks(t *testing.T) {
	p := newPlatform(t)
	p.ingest(t, writeDocs(t, map[string]string{"a.md": "alpha", "b.md": "beta"}))
	p.reload(t)

	p.search(t, "alpha", nil)
	p.search(t, "alpha", nil)
	p.search(t, "missing", nil)

	resp, err := http.Get(p.server.URL + "/api/v1/analytics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats analytics.AggregatedStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.ZeroResultCount)

	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	require.Len(t, p.commits, 1)
	assert.Equal(t, 2, p.commits[0].Docs)
}

func TestHealthEndpoints(t *testing.T) {
	p := newPlatform(t)
	status := func(path string) int {
		resp, err := http.Get(p.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, status("/health/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status("/health/ready"), "no generation yet")

	p.ingest(t, writeDocs(t, map[string]string{"a.md": "ready"}))
	p.reload(t)
	assert.Equal(t, http.StatusOK, status("/health/ready"))
}

func TestCatalogRecordsCommits(t *testing.T) {
	db, err := postgres.New(config.PostgresConfig{
		Host:     envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:     envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database: envOrDefault("TEST_POSTGRES_DB", "docsearch_test"),
		User:     envOrDefault("TEST_POSTGRES_USER", "docsearch"),
		Password: envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	cat := catalog.New(db)
	require.NoError(t, cat.Migrate(ctx))
	_, err = db.DB.ExecContext(ctx, "DELETE FROM index_generations")
	require.NoError(t, err)

	p := newPlatform(t, cat.Hook())
	p.ingest(t, writeDocs(t, map[string]string{"a.md": "alpha"}))
	p.ingest(t, writeDocs(t, map[string]string{"b.md": "beta"}))

	history, err := cat.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[0].Generation)
	assert.Nil(t, history[0].SupersededAt)
	assert.NotNil(t, history[1].SupersededAt)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
