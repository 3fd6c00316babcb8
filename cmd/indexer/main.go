// Command indexer builds index generations.
//
// In batch mode it indexes a directory or zip archive (downloading the
// archive first when -url is given), commits one generation and exits. With
// -kafka it consumes ingest events and commits on an interval until stopped.
//
// Usage:
//
//	go run ./cmd/indexer -dir ./docs
//	go run ./cmd/indexer -zip data/repo.zip -url https://example.com/repo/archive/main.zip
//	go run ./cmd/indexer -kafka
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dir := flag.String("dir", "", "index files under this directory")
	zipPath := flag.String("zip", "", "index files in this zip archive")
	url := flag.String("url", "", "download the archive to -zip from this URL when it is missing")
	streaming := flag.Bool("kafka", false, "consume ingest events from Kafka instead of a local source")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	src, err := pickSource(*dir, *zipPath, *url, *streaming, cfg.Indexer.Extensions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled && *streaming {
		metrics.StartServer(ctx, cfg.Metrics.Port)
	}
	opts := []indexer.Option{indexer.WithMetrics(m)}

	if cfg.Postgres.Host != "" {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, generation catalog disabled", "error", err)
		} else {
			defer db.Close()
			cat := catalog.New(db)
			if err := cat.Migrate(ctx); err != nil {
				slog.Error("catalog migration failed", "error", err)
				os.Exit(1)
			}
			opts = append(opts, indexer.WithCommitHook(cat.Hook()))
			slog.Info("generation catalog enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topics.AnalyticsEvents != "" {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		opts = append(opts, indexer.WithCommitHook(publishCommits(producer)))
	}

	var indexConsumer *consumer.IndexConsumer
	if *streaming {
		opts = append(opts, indexer.WithCommitHook(func(ctx context.Context, info indexer.CommitInfo) {
			indexConsumer.OnCommit(ctx, info)
		}))
	}

	engine, err := indexer.NewEngine(cfg.Indexer, opts...)
	if err != nil {
		slog.Error("failed to open index", "error", err, "data_dir", cfg.Indexer.DataDir)
		os.Exit(1)
	}
	slog.Info("indexer started",
		"data_dir", cfg.Indexer.DataDir,
		"compression", cfg.Indexer.Compression,
		"active_generation", engine.Store().Active(),
	)

	if *streaming {
		// The commit hook above reads indexConsumer; no commit can happen
		// before the loops below start.
		indexConsumer = consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(engine)))
		runStreaming(ctx, cfg, engine, indexConsumer)
		return
	}

	start := time.Now()
	report, err := source.Ingest(ctx, src, engine)
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
	info, err := engine.Commit(ctx)
	if err != nil {
		slog.Error("commit failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexing complete",
		"generation", info.Generation,
		"indexed", report.Indexed,
		"skipped", len(report.Skipped),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	json.NewEncoder(os.Stdout).Encode(struct {
		source.Report
		Generation uint64 `json:"generation"`
		File       string `json:"file,omitempty"`
	}{report, info.Generation, info.File})
}

func pickSource(dir, zipPath, url string, streaming bool, exts []string) (source.Source, error) {
	switch {
	case streaming:
		if dir != "" || zipPath != "" {
			return nil, fmt.Errorf("-kafka cannot be combined with -dir or -zip")
		}
		return nil, nil
	case dir != "" && zipPath != "":
		return nil, fmt.Errorf("use either -dir or -zip, not both")
	case dir != "":
		return source.DirSource{Root: dir, Extensions: exts}, nil
	case zipPath != "":
		if url != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := source.Fetch(ctx, nil, url, zipPath); err != nil {
				return nil, fmt.Errorf("downloading archive: %w", err)
			}
		}
		return source.ZipSource{Path: zipPath, Extensions: exts}, nil
	}
	return nil, fmt.Errorf("one of -dir, -zip or -kafka is required")
}

func runStreaming(ctx context.Context, cfg *config.Config, engine *indexer.Engine, ic *consumer.IndexConsumer) {
	defer ic.Close()

	engine.StartCommitLoop(ctx)
	engine.StartReloadLoop(ctx, cfg.Indexer.ReloadInterval)

	slog.Info("indexer consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
		"commit_interval", cfg.Indexer.CommitInterval,
	)
	if err := ic.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("committing pending documents before shutdown")
	if err := engine.Close(); err != nil {
		slog.Error("final commit failed", "error", err)
	}
	slog.Info("indexer stopped")
}

func publishCommits(producer *kafka.Producer) func(context.Context, indexer.CommitInfo) {
	return func(ctx context.Context, info indexer.CommitInfo) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		event := analytics.NewCommitEvent(analytics.CommitEvent{
			Generation: info.Generation,
			Documents:  info.Docs,
			Added:      info.Added,
			Terms:      info.Terms,
			DurationMs: info.Duration.Milliseconds(),
		})
		if err := producer.Publish(ctx, kafka.Event{Key: string(event.Type), Value: event}); err != nil {
			slog.Warn("failed to publish commit event", "generation", info.Generation, "error", err)
		}
	}
}
