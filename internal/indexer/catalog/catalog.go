// Package catalog keeps a PostgreSQL history of published index
// generations: when each was committed, what it was built on, and when a
// newer generation superseded it.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS index_generations (
	    generation    BIGINT PRIMARY KEY,
	    base          BIGINT NOT NULL,
	    file          TEXT NOT NULL,
	    documents     INTEGER NOT NULL,
	    added         INTEGER NOT NULL,
	    terms         INTEGER NOT NULL,
	    build_ms      BIGINT NOT NULL,
	    committed_at  TIMESTAMPTZ NOT NULL,
	    superseded_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS index_generations_committed_at
	    ON index_generations (committed_at DESC)`,
}

// Entry is one row of the generation history.
type Entry struct {
	Generation   uint64     `json:"generation"`
	Base         uint64     `json:"base"`
	File         string     `json:"file"`
	Documents    int        `json:"documents"`
	Added        int        `json:"added"`
	Terms        int        `json:"terms"`
	BuildTime    string     `json:"build_time"`
	CommittedAt  time.Time  `json:"committed_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

// Catalog records commits in the index_generations table.
type Catalog struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Catalog {
	return &Catalog{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}
}

// Migrate creates the history table when it does not exist.
func (c *Catalog) Migrate(ctx context.Context) error {
	if err := c.db.Migrate(ctx, schema...); err != nil {
		return fmt.Errorf("migrating catalog: %w", err)
	}
	return nil
}

// Record inserts the commit and marks its base generation as superseded.
// Recording the same generation twice overwrites the earlier row.
func (c *Catalog) Record(ctx context.Context, info indexer.CommitInfo) error {
	committed := info.CreatedAt.UTC()
	if committed.IsZero() {
		committed = time.Now().UTC()
	}
	return c.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO index_generations
			    (generation, base, file, documents, added, terms, build_ms, committed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (generation) DO UPDATE SET
			    base = EXCLUDED.base,
			    file = EXCLUDED.file,
			    documents = EXCLUDED.documents,
			    added = EXCLUDED.added,
			    terms = EXCLUDED.terms,
			    build_ms = EXCLUDED.build_ms,
			    committed_at = EXCLUDED.committed_at`,
			int64(info.Generation), int64(info.Base), info.File,
			info.Docs, info.Added, info.Terms, info.Duration.Milliseconds(), committed,
		)
		if err != nil {
			return fmt.Errorf("inserting generation %d: %w", info.Generation, err)
		}
		if info.Base == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE index_generations SET superseded_at = $2
			 WHERE generation = $1 AND superseded_at IS NULL`,
			int64(info.Base), committed,
		)
		if err != nil {
			return fmt.Errorf("superseding generation %d: %w", info.Base, err)
		}
		return nil
	})
}

// History returns up to limit entries, newest generation first.
func (c *Catalog) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.DB.QueryContext(ctx,
		`SELECT generation, base, file, documents, added, terms, build_ms, committed_at, superseded_at
		 FROM index_generations ORDER BY generation DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Latest returns the newest recorded generation, or nil when the table is
// empty.
func (c *Catalog) Latest(ctx context.Context) (*Entry, error) {
	row := c.db.DB.QueryRowContext(ctx,
		`SELECT generation, base, file, documents, added, terms, build_ms, committed_at, superseded_at
		 FROM index_generations ORDER BY generation DESC LIMIT 1`,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e          Entry
		gen, base  int64
		buildMS    int64
		superseded sql.NullTime
	)
	err := s.Scan(&gen, &base, &e.File, &e.Documents, &e.Added, &e.Terms, &buildMS, &e.CommittedAt, &superseded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scanning generation row: %w", err)
	}
	e.Generation = uint64(gen)
	e.Base = uint64(base)
	e.BuildTime = (time.Duration(buildMS) * time.Millisecond).String()
	if superseded.Valid {
		t := superseded.Time
		e.SupersededAt = &t
	}
	return e, nil
}

// Hook returns an engine commit hook that records every commit. Failures
// are retried briefly and then logged; the catalog never blocks indexing.
func (c *Catalog) Hook() func(context.Context, indexer.CommitInfo) {
	return func(ctx context.Context, info indexer.CommitInfo) {
		err := resilience.Retry(ctx, "catalog record", resilience.RetryConfig{MaxAttempts: 3}, func() error {
			return c.Record(ctx, info)
		})
		if err != nil {
			c.logger.Error("failed to record generation", "generation", info.Generation, "error", err)
			return
		}
		c.logger.Debug("generation recorded", "generation", info.Generation, "base", info.Base)
	}
}
