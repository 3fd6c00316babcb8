package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "zstd", cfg.Indexer.Compression)
	assert.Equal(t, "tfidf", cfg.Search.ScoringMode)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, []string{".md", ".mdx"}, cfg.Indexer.Extensions)
	assert.Empty(t, cfg.Postgres.Host)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yamlDoc := `
indexer:
  dataDir: /tmp/idx
  compression: lz4
  commitInterval: 10s
search:
  scoringMode: count
  defaultLimit: 7
  maxResults: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("DS_SEARCH_SCORING_MODE", "bm25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/idx", cfg.Indexer.DataDir)
	assert.Equal(t, "lz4", cfg.Indexer.Compression)
	assert.Equal(t, 10*time.Second, cfg.Indexer.CommitInterval)
	assert.Equal(t, "bm25", cfg.Search.ScoringMode)
	assert.Equal(t, 7, cfg.Search.DefaultLimit)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"codec", func(c *Config) { c.Indexer.Compression = "gzip" }},
		{"mode", func(c *Config) { c.Search.ScoringMode = "pagerank" }},
		{"limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxResults = 1; c.Search.DefaultLimit = 5 }},
		{"data dir", func(c *Config) { c.Indexer.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
