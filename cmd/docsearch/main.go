// Command docsearch indexes a directory or zip archive in memory, or opens
// the newest generation of a data directory, and prints the files that best
// match a query.
//
// Usage:
//
//	docsearch -dir ./docs "install AND (linux OR mac)"
//	docsearch -zip repo.zip -url https://example.com/repo.zip -limit 10 deploy
//	docsearch -index data/index -mode bm25 "\"data pipeline\""
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("docsearch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "index files under this directory")
	zipPath := fs.String("zip", "", "index files in this zip archive")
	url := fs.String("url", "", "download the archive to -zip from this URL when it is missing")
	dataDir := fs.String("index", "", "search the newest generation in this data directory")
	exts := fs.String("ext", strings.Join(source.DefaultExtensions, ","), "comma-separated file extensions to index")
	limit := fs.Int("limit", 5, "maximum number of results")
	mode := fs.String("mode", string(ranker.ModeTFIDF), "scoring mode: tfidf, count or bm25")
	normalize := fs.Bool("normalize", false, "divide scores by document length")
	scores := fs.Bool("scores", false, "print scores next to filenames")
	verbose := fs.Bool("v", false, "log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fmt.Fprintln(stderr, "usage: docsearch [-dir DIR | -zip FILE [-url URL] | -index DATADIR] [flags] QUERY")
		fs.PrintDefaults()
		return 2
	}
	level := "error"
	if *verbose {
		level = "info"
	}
	slog.SetDefault(logger.New(stderr, level, "text"))

	scoring, err := ranker.ParseMode(*mode)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	ctx := context.Background()
	gen, err := loadGeneration(ctx, *dir, *zipPath, *url, *dataDir, strings.Split(*exts, ","), stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	s := store.New()
	s.Activate(gen)
	res, err := executor.New(s).Execute(ctx, query, *limit,
		executor.WithMode(scoring),
		executor.WithLengthNormalization(*normalize),
	)
	if err != nil {
		printError(stderr, query, err)
		if errors.Is(err, apperrors.ErrQuerySyntax) || errors.Is(err, apperrors.ErrInvalidLimit) {
			return 2
		}
		return 1
	}
	if res.EmptyIndex {
		fmt.Fprintln(stderr, "index is empty")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, hit := range res.Hits {
		if *scores {
			fmt.Fprintf(tw, "%.4f\t%s\n", hit.Score, hit.Filename)
		} else {
			fmt.Fprintln(tw, hit.Filename)
		}
	}
	tw.Flush()
	return 0
}

func loadGeneration(ctx context.Context, dir, zipPath, url, dataDir string, exts []string, stderr io.Writer) (*index.Generation, error) {
	var src source.Source
	switch {
	case dataDir != "":
		latest, err := segment.Latest(dataDir)
		if err != nil {
			return nil, err
		}
		return segment.Load(latest.Path)
	case dir != "":
		src = source.DirSource{Root: dir, Extensions: exts}
	case zipPath != "":
		if url != "" {
			fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			defer cancel()
			if _, err := source.Fetch(fetchCtx, nil, url, zipPath); err != nil {
				return nil, err
			}
		}
		src = source.ZipSource{Path: zipPath, Extensions: exts}
	default:
		return nil, fmt.Errorf("one of -dir, -zip or -index is required")
	}

	b := index.NewBuilder()
	report, err := source.Ingest(ctx, src, builderIndexer{b})
	if err != nil {
		return nil, err
	}
	for _, name := range report.Skipped {
		fmt.Fprintf(stderr, "skipped %s: not decodable text\n", name)
	}
	return b.Commit()
}

type builderIndexer struct {
	b *index.Builder
}

func (bi builderIndexer) IndexDocument(_ context.Context, filename string, content string) error {
	_, err := bi.b.AddDocument(filename, content)
	return err
}

func printError(w io.Writer, query string, err error) {
	var syntaxErr *apperrors.SyntaxError
	if errors.As(err, &syntaxErr) {
		fmt.Fprintln(w, err)
		fmt.Fprintf(w, "  %s\n  %s^\n", query, strings.Repeat(" ", syntaxErr.Pos))
		return
	}
	fmt.Fprintln(w, err)
}
