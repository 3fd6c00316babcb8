// Package publisher queues validated documents on the ingest topic. Events
// are keyed by filename so updates to one file keep their order within a
// partition.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// EventWriter is the part of *kafka.Producer the publisher uses.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	producer EventWriter
	logger   *slog.Logger
}

func New(producer EventWriter) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

func toEvent(req ingestion.DocumentRequest) kafka.Event {
	return kafka.Event{
		Key:   req.Filename,
		Value: ingestion.IngestEvent{Filename: req.Filename, Content: req.Content},
	}
}

// Ingest publishes one document.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.DocumentResponse, error) {
	if err := p.producer.Publish(ctx, toEvent(*req)); err != nil {
		return nil, fmt.Errorf("publishing %s: %w", req.Filename, err)
	}
	p.logger.Debug("document queued", "filename", req.Filename, "bytes", len(req.Content))
	return &ingestion.DocumentResponse{Filename: req.Filename, Status: ingestion.StatusQueued}, nil
}

// IngestBatch publishes all documents in one write. Either every document
// is queued or none is reported as queued.
func (p *Publisher) IngestBatch(ctx context.Context, req *ingestion.BatchRequest) ([]ingestion.DocumentResponse, error) {
	events := make([]kafka.Event, len(req.Documents))
	for i, doc := range req.Documents {
		events[i] = toEvent(doc)
	}
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("publishing batch of %d: %w", len(events), err)
	}
	resp := make([]ingestion.DocumentResponse, len(req.Documents))
	for i, doc := range req.Documents {
		resp[i] = ingestion.DocumentResponse{Filename: doc.Filename, Status: ingestion.StatusQueued}
	}
	p.logger.Info("batch queued", "documents", len(resp))
	return resp, nil
}
