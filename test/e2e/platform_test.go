//go:build e2e

// Package e2e exercises running services: documents are published to the
// ingest topic, the streaming indexer commits them, and the search service
// is polled until they appear.
//
// Prerequisites:
//   - Kafka running, with the indexer started as `indexer -kafka`
//   - the searcher (and optionally the analytics service) running against
//     the same data directory
//
// Run with:
//
//	go test -v -tags=e2e -timeout=180s ./test/e2e/...
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type e2eConfig struct {
	SearcherURL  string
	AnalyticsURL string
	Brokers      []string
	IngestTopic  string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		SearcherURL:  envOrDefault("E2E_SEARCHER_URL", "http://localhost:8080"),
		AnalyticsURL: envOrDefault("E2E_ANALYTICS_URL", "http://localhost:8083"),
		Brokers:      strings.Split(envOrDefault("E2E_KAFKA_BROKERS", "localhost:9092"), ","),
		IngestTopic:  envOrDefault("E2E_INGEST_TOPIC", "document-ingest"),
	}
}

var client = &http.Client{Timeout: 10 * time.Second}

func getJSON(t *testing.T, rawURL string, out any) int {
	t.Helper()
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Skipf("service unavailable: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestServiceHealth(t *testing.T) {
	cfg := loadE2EConfig()
	for _, u := range []string{
		cfg.SearcherURL + "/health/live",
		cfg.SearcherURL + "/health/ready",
	} {
		t.Run(u, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, getJSON(t, u, nil))
		})
	}
}

// TestIngestAndSearch publishes a document with a unique word and waits for
// a generation containing it to be served.
func TestIngestAndSearch(t *testing.T) {
	cfg := loadE2EConfig()
	getJSON(t, cfg.SearcherURL+"/health/live", nil)

	unique := fmt.Sprintf("e2etest%d", time.Now().UnixNano())
	producer := kafka.NewProducer(config.KafkaConfig{Brokers: cfg.Brokers}, cfg.IngestTopic)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := producer.Publish(ctx, kafka.Event{
		Key: unique + ".md",
		Value: ingestion.IngestEvent{
			Filename: "e2e/" + unique + ".md",
			Content:  "end-to-end document mentioning " + unique,
		},
	})
	if err != nil {
		t.Skipf("kafka unavailable: %v", err)
	}

	var result struct {
		Generation uint64 `json:"generation"`
		TotalHits  int    `json:"total_hits"`
		Hits       []struct {
			Filename string `json:"filename"`
		} `json:"hits"`
	}
	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		getJSON(t, cfg.SearcherURL+"/api/v1/search?"+url.Values{"q": {unique}}.Encode(), &result)
		if result.TotalHits > 0 {
			break
		}
		time.Sleep(2 * time.Second)
	}
	require.Equal(t, 1, result.TotalHits, "document not searchable within 90s")
	assert.Equal(t, "e2e/"+unique+".md", result.Hits[0].Filename)
	t.Logf("document served from generation %d", result.Generation)
}

func TestSyntaxErrorIsBadRequest(t *testing.T) {
	cfg := loadE2EConfig()
	var body map[string]any
	status := getJSON(t, cfg.SearcherURL+"/api/v1/search?"+url.Values{"q": {"alpha AND"}}.Encode(), &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "position")
}

func TestCacheStats(t *testing.T) {
	cfg := loadE2EConfig()
	var stats map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, cfg.SearcherURL+"/api/v1/cache/stats", &stats))
	if stats["status"] == "disabled" {
		t.Skip("cache is disabled")
	}
	for _, field := range []string{"hits", "misses", "total", "hit_rate"} {
		assert.Contains(t, stats, field)
	}
}

func TestAnalyticsService(t *testing.T) {
	cfg := loadE2EConfig()
	var stats map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, cfg.AnalyticsURL+"/api/v1/analytics", &stats))
	for _, field := range []string{"total_searches", "commits", "latest_generation"} {
		assert.Contains(t, stats, field)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
