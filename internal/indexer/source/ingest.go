package source

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Indexer accepts documents. *indexer.Engine implements it.
type Indexer interface {
	IndexDocument(ctx context.Context, filename string, content string) error
}

// Report summarizes one ingest run.
type Report struct {
	Indexed int      `json:"indexed"`
	Skipped []string `json:"skipped,omitempty"`
}

// Ingest feeds every document of src to idx. Documents that are not
// decodable text are logged, listed in the report and skipped; any other
// error stops the run.
func Ingest(ctx context.Context, src Source, idx Indexer) (Report, error) {
	logger := slog.Default().With("component", "ingest")
	var report Report
	err := src.Each(ctx, func(d Document) error {
		err := idx.IndexDocument(ctx, d.Filename, string(d.Content))
		switch {
		case err == nil:
			report.Indexed++
			return nil
		case errors.Is(err, apperrors.ErrDecode):
			logger.Warn("skipping document", "filename", d.Filename, "error", err)
			report.Skipped = append(report.Skipped, d.Filename)
			return nil
		default:
			return err
		}
	})
	return report, err
}
