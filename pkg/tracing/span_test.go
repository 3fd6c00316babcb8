package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestSampledTreeIsLogged(t *testing.T) {
	buf := captureLogs(t)
	Configure(config.TracingConfig{Enabled: true, SampleRate: 1})
	t.Cleanup(func() { Configure(config.TracingConfig{}) })

	ctx, root := StartSpan(context.Background(), "http.search", "req-1")
	_, child := StartChildSpan(ctx, "parse")
	child.SetAttr("expr", "data")
	child.End()
	root.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "parse", rec["span"])
	assert.Equal(t, "req-1", rec["trace_id"])
	assert.Equal(t, "data", rec["expr"])
	assert.Equal(t, float64(1), rec["depth"])
}

func TestDisabledTracingLogsNothing(t *testing.T) {
	buf := captureLogs(t)
	Configure(config.TracingConfig{Enabled: false, SampleRate: 1})

	_, root := StartSpan(context.Background(), "op", "")
	assert.NotEmpty(t, root.TraceID)
	assert.False(t, root.Sampled())
	root.Finish()
	assert.Empty(t, buf.String())
}

func TestChildWithoutParent(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Empty(t, span.TraceID)
	assert.False(t, span.Sampled())
}
