// Package consumer feeds documents from the ingest topic into the indexer
// engine. Offsets are acknowledged only after the documents they carried
// are part of a committed generation.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Indexer is the part of the engine the consumer drives.
type Indexer interface {
	IndexDocument(ctx context.Context, filename string, content string) error
}

// HandleMessage returns a Kafka MessageHandler that indexes every ingest
// event. Malformed events and undecodable documents are skipped; any other
// failure leaves the message unacknowledged.
func HandleMessage(engine Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return fmt.Errorf("%w: %v", kafka.ErrSkip, err)
		}
		if event.Filename == "" {
			return fmt.Errorf("%w: ingest event without filename", kafka.ErrSkip)
		}
		if err := engine.IndexDocument(ctx, event.Filename, event.Content); err != nil {
			if errors.Is(err, apperrors.ErrDecode) {
				logger.Warn("skipping undecodable document", "filename", event.Filename, "error", err)
				return fmt.Errorf("%w: %v", kafka.ErrSkip, err)
			}
			return fmt.Errorf("indexing %s: %w", event.Filename, err)
		}
		logger.Debug("document indexed", "filename", event.Filename)
		return nil
	}
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer. Pass OnCommit to the engine as a commit
// hook so offsets advance with each generation.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// OnCommit is an engine commit hook.
func (ic *IndexConsumer) OnCommit(ctx context.Context, info indexer.CommitInfo) {
	if err := ic.consumer.Checkpoint(ctx); err != nil {
		ic.logger.Error("failed to acknowledge indexed messages",
			"generation", info.Generation,
			"error", err,
		)
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

func (ic *IndexConsumer) Close() error {
	return ic.consumer.Close()
}
