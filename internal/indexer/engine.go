package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// CommitInfo describes one published generation.
type CommitInfo struct {
	Generation uint64
	Base       uint64
	File       string
	Docs       int
	Added      int
	Terms      int
	Duration   time.Duration
	CreatedAt  time.Time
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Generation  uint64  `json:"generation"`
	Documents   int     `json:"documents"`
	Terms       int     `json:"terms"`
	AvgDocLen   float64 `json:"avg_doc_length"`
	Retained    int     `json:"retained_generations"`
	Pending     int     `json:"pending_documents"`
	DataDir     string  `json:"data_dir"`
	Compression string  `json:"compression"`
}

type pendingDoc struct {
	filename string
	content  string
}

// Engine owns the index store of one process. It buffers added documents
// in a Builder on top of the active generation, and a commit persists the
// result as a segment file before publishing it to readers.
type Engine struct {
	cfg      config.IndexerConfig
	analyzer tokenizer.Analyzer
	codec    segment.Codec
	store    *store.Store
	writer   *segment.Writer
	metrics  *metrics.Metrics
	hooks    []func(context.Context, CommitInfo)
	logger   *slog.Logger

	mu      sync.Mutex
	builder *index.Builder
	pending []pendingDoc
	wg      sync.WaitGroup
}

type Option func(*Engine)

// WithMetrics reports indexing activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCommitHook runs fn after every successful commit.
func WithCommitHook(fn func(context.Context, CommitInfo)) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, fn) }
}

// NewEngine opens the data directory and activates the newest persisted
// generation, if any. A damaged newest generation is fatal.
func NewEngine(cfg config.IndexerConfig, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	codec, err := segment.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg: cfg,
		analyzer: tokenizer.Analyzer{
			StopWords: cfg.StopWords,
			MinLength: cfg.MinTermLength,
			Stem:      cfg.Stem,
		},
		codec:  codec,
		writer: segment.NewWriter(cfg.DataDir, codec),
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.store = store.New(store.WithRetireHook(func(g *index.Generation) {
		e.logger.Debug("generation released", "generation", g.ID())
	}))
	if _, err := e.Reload(); err != nil && !errors.Is(err, apperrors.ErrNoGenerationYet) {
		return nil, fmt.Errorf("loading existing generation: %w", err)
	}
	e.updateGauges()
	return e, nil
}

// Store exposes the generation store for readers.
func (e *Engine) Store() *store.Store {
	return e.store
}

// IndexDocument adds one document to the pending build. A *DecodeError
// means the document was skipped and indexing can go on. When
// CommitMaxDocs documents are pending the engine commits on its own.
func (e *Engine) IndexDocument(ctx context.Context, filename string, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.builder == nil {
		e.builder = e.newBuilder()
	}
	if _, err := e.builder.AddDocument(filename, content); err != nil {
		if errors.Is(err, apperrors.ErrDecode) && e.metrics != nil {
			e.metrics.DecodeFailuresTotal.Inc()
		}
		return err
	}
	e.pending = append(e.pending, pendingDoc{filename: filename, content: content})
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document added",
		"filename", filename,
		"pending", len(e.pending),
		"builder_size", e.builder.Size(),
	)
	if e.cfg.CommitMaxDocs > 0 && len(e.pending) >= e.cfg.CommitMaxDocs {
		e.logger.Info("pending documents reached threshold, committing",
			"pending", len(e.pending),
			"threshold", e.cfg.CommitMaxDocs,
		)
		// The document stays pending after a failed commit, so the caller
		// must not resend it; the next commit retries.
		if _, err := e.commitLocked(ctx); err != nil {
			e.logger.Error("threshold commit failed, documents remain pending",
				"pending", len(e.pending),
				"error", err,
			)
		}
	}
	return nil
}

// newBuilder starts a build on the active generation. A fresh data
// directory takes the configured analyzer; otherwise the analyzer of the
// generation being extended is kept so old and new postings agree.
func (e *Engine) newBuilder() *index.Builder {
	h := e.store.Acquire()
	defer h.Release()
	base := h.Generation()
	if base.DocCount() == 0 && base.ID() == 0 {
		return index.NewBuilder(index.WithAnalyzer(e.analyzer))
	}
	if base.Analyzer() != e.analyzer {
		e.logger.Warn("configured analyzer differs from index, keeping the index's",
			"index", base.Analyzer(),
			"configured", e.analyzer,
		)
	}
	return index.NewBuilder(index.WithBase(base))
}

// Commit persists and publishes the pending documents. With nothing
// pending it returns the active generation unchanged.
func (e *Engine) Commit(ctx context.Context) (CommitInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked(ctx)
}

func (e *Engine) commitLocked(ctx context.Context) (CommitInfo, error) {
	if len(e.pending) == 0 {
		return CommitInfo{Generation: e.store.Active()}, nil
	}
	start := time.Now()
	info, err := e.publish()
	if errors.Is(err, apperrors.ErrCommitConflict) {
		e.countCommit("conflict")
		e.logger.Warn("commit conflict, rebuilding on the newest generation", "error", err)
		if err := e.rebuild(); err != nil {
			return CommitInfo{}, err
		}
		info, err = e.publish()
	}
	if err != nil {
		e.countCommit("error")
		// The failed attempt sealed the builder; the pending documents
		// must stay indexable and committable.
		if rebuildErr := e.rebuild(); rebuildErr != nil {
			return CommitInfo{}, errors.Join(err, rebuildErr)
		}
		return CommitInfo{}, err
	}
	info.Added = len(e.pending)
	info.Duration = time.Since(start)
	e.builder = nil
	e.pending = nil
	e.countCommit("ok")
	e.updateGauges()

	if removed, err := segment.Prune(e.cfg.DataDir, e.cfg.RetainGenerations); err != nil {
		e.logger.Error("pruning old generations failed", "error", err)
	} else if len(removed) > 0 {
		e.logger.Info("pruned old generations", "removed", len(removed))
	}

	e.logger.Info("generation committed",
		"generation", info.Generation,
		"base", info.Base,
		"file", info.File,
		"docs", info.Docs,
		"added", info.Added,
		"terms", info.Terms,
		"duration_ms", info.Duration.Milliseconds(),
	)
	for _, hook := range e.hooks {
		hook(ctx, info)
	}
	return info, nil
}

// rebuild replaces the builder with a fresh one on the active generation
// holding every pending document.
func (e *Engine) rebuild() error {
	b := e.newBuilder()
	for _, d := range e.pending {
		if _, err := b.AddDocument(d.filename, d.content); err != nil {
			return fmt.Errorf("replaying %s: %w", d.filename, err)
		}
	}
	e.builder = b
	return nil
}

// publish seals the builder, writes the segment and swaps it in. On a
// conflict the written file is removed again.
func (e *Engine) publish() (CommitInfo, error) {
	gen, err := e.builder.Commit()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("sealing builder: %w", err)
	}
	name, err := e.writer.Write(gen)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("writing segment: %w", err)
	}
	if err := e.store.Publish(gen); err != nil {
		os.Remove(filepath.Join(e.cfg.DataDir, name))
		return CommitInfo{}, err
	}
	return CommitInfo{
		Generation: gen.ID(),
		Base:       gen.BaseID(),
		File:       name,
		Docs:       gen.DocCount(),
		Terms:      gen.VocabularySize(),
		CreatedAt:  time.Now(),
	}, nil
}

// Reload activates the newest generation on disk if it is newer than the
// active one. It reports whether a generation was activated.
func (e *Engine) Reload() (bool, error) {
	latest, err := segment.Latest(e.cfg.DataDir)
	if err != nil {
		return false, err
	}
	if latest.Generation <= e.store.Active() {
		return false, nil
	}
	gen, err := segment.Load(latest.Path)
	if err != nil {
		return false, err
	}
	e.store.Activate(gen)
	e.updateGauges()
	e.logger.Info("loaded generation from disk",
		"file", filepath.Base(latest.Path),
		"generation", gen.ID(),
		"docs", gen.DocCount(),
		"terms", gen.VocabularySize(),
	)
	return true, nil
}

// StartCommitLoop commits pending documents every CommitInterval until
// ctx is cancelled, then commits one last time.
func (e *Engine) StartCommitLoop(ctx context.Context) {
	if e.cfg.CommitInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.CommitInterval)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("commit loop stopping, performing final commit")
				if _, err := e.Commit(context.WithoutCancel(ctx)); err != nil {
					e.logger.Error("final commit failed", "error", err)
				}
				return
			case <-ticker.C:
				if _, err := e.Commit(ctx); err != nil {
					e.logger.Error("periodic commit failed", "error", err)
				}
			}
		}
	}()
}

// StartReloadLoop polls the data directory every interval and activates
// generations written by another process.
func (e *Engine) StartReloadLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.Reload(); err != nil && !errors.Is(err, apperrors.ErrNoGenerationYet) {
					e.logger.Error("reload failed", "error", err)
				}
			}
		}
	}()
}

func (e *Engine) Stats() Stats {
	h := e.store.Acquire()
	defer h.Release()
	gen := h.Generation()
	e.mu.Lock()
	pending := len(e.pending)
	e.mu.Unlock()
	return Stats{
		Generation:  gen.ID(),
		Documents:   gen.DocCount(),
		Terms:       gen.VocabularySize(),
		AvgDocLen:   gen.AvgDocLength(),
		Retained:    e.store.Retained(),
		Pending:     pending,
		DataDir:     e.cfg.DataDir,
		Compression: e.codec.String(),
	}
}

func (e *Engine) countCommit(status string) {
	if e.metrics != nil {
		e.metrics.CommitsTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	h := e.store.Acquire()
	defer h.Release()
	gen := h.Generation()
	e.metrics.ActiveGeneration.Set(float64(gen.ID()))
	e.metrics.IndexedDocuments.Set(float64(gen.DocCount()))
	e.metrics.VocabularySize.Set(float64(gen.VocabularySize()))
	e.metrics.RetainedGenerations.Set(float64(e.store.Retained()))
}

// Close waits for background loops to exit and commits whatever is
// still pending. Cancel the loops' context before calling it.
func (e *Engine) Close() error {
	e.wg.Wait()
	if _, err := e.Commit(context.Background()); err != nil {
		e.logger.Error("final commit on close failed", "error", err)
		return err
	}
	return nil
}
