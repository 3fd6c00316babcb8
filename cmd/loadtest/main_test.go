package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadQueries(t *testing.T) {
	queries, err := readQueries(strings.NewReader("# comment\nalpha\n\n  beta AND gamma  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta AND gamma"}, queries)

	_, err = readQueries(strings.NewReader("# only comments\n"))
	assert.Error(t, err)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestSearchURL(t *testing.T) {
	u := searchURL(Config{BaseURL: "http://h", Limit: 3, Mode: "bm25"}, `"a b" OR c`)
	assert.Equal(t, "http://h/api/v1/search?limit=3&mode=bm25&q=%22a+b%22+OR+c", u)
}

func TestRunLoadTestAgainstServer(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Query().Get("q") == "bad AND" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"syntax"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"total_hits": 1, "cache_hit": n%2 == 0})
	}))
	defer srv.Close()

	var progress bytes.Buffer
	stats := runLoadTest(context.Background(), Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    200 * time.Millisecond,
		RPS:         100,
		Limit:       5,
		Queries:     []string{"alpha", "bad AND"},
	}, &progress)

	assert.Positive(t, stats.totalRequests.Load())
	assert.Positive(t, stats.successCount.Load())
	assert.Positive(t, stats.errorCount.Load())
	assert.Contains(t, progress.String(), "done!")

	var report bytes.Buffer
	assert.True(t, printReport(&report, stats, 200*time.Millisecond))
	assert.Contains(t, report.String(), "400:")
	assert.Contains(t, report.String(), "200:")
}

func TestPrintReportWithoutRequests(t *testing.T) {
	var report bytes.Buffer
	assert.False(t, printReport(&report, NewStats(), time.Second))
	assert.Contains(t, report.String(), "No requests completed")
}
