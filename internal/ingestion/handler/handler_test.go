package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(ctx context.Context, e kafka.Event) error {
	return f.PublishBatch(ctx, []kafka.Event{e})
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func newHandler(p *fakeProducer) *Handler {
	return New(publisher.New(p), validator.New([]string{".md", ".mdx"}))
}

func do(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body)))
	return rec
}

func TestIngestQueuesEvent(t *testing.T) {
	p := &fakeProducer{}
	h := newHandler(p)

	rec := do(h.Ingest, `{"filename":"docs/a.md","content":"alpha beta"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ingestion.DocumentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, ingestion.DocumentResponse{Filename: "docs/a.md", Status: ingestion.StatusQueued}, resp)

	require.Len(t, p.events, 1)
	assert.Equal(t, "docs/a.md", p.events[0].Key)
	assert.Equal(t, ingestion.IngestEvent{Filename: "docs/a.md", Content: "alpha beta"}, p.events[0].Value)
}

func TestIngestRejectsInvalid(t *testing.T) {
	p := &fakeProducer{}
	h := newHandler(p)

	rec := do(h.Ingest, `{"filename":"main.go","content":"package main"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fields"`)

	rec = do(h.Ingest, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, p.events)
}

func TestIngestPublishFailure(t *testing.T) {
	h := newHandler(&fakeProducer{err: assert.AnError})
	rec := do(h.Ingest, `{"filename":"a.md","content":"alpha"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestIngestBatch(t *testing.T) {
	p := &fakeProducer{}
	h := newHandler(p)

	rec := do(h.IngestBatch, `{"documents":[{"filename":"a.md","content":"alpha"},{"filename":"b.mdx","content":"beta"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		Documents []ingestion.DocumentResponse `json:"documents"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Documents, 2)
	assert.Len(t, p.events, 2)

	rec = do(h.IngestBatch, `{"documents":[{"filename":"a.md","content":"alpha"},{"filename":"c.txt"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "documents[1].filename")
	assert.Len(t, p.events, 2, "a rejected batch publishes nothing")
}
