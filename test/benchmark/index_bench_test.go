// Package benchmark measures indexing, persistence and query throughput
// across the indexer and searcher packages.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

var corpusTerms = []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}

func docBody(i int) string {
	return fmt.Sprintf("# %s notes\n\nthis document covers %s %s %s in production systems",
		corpusTerms[i%len(corpusTerms)],
		corpusTerms[(i+1)%len(corpusTerms)],
		corpusTerms[(i+2)%len(corpusTerms)],
		corpusTerms[(i+3)%len(corpusTerms)])
}

func buildGeneration(b *testing.B, docs int) *index.Generation {
	b.Helper()
	builder := index.NewBuilder()
	for i := 0; i < docs; i++ {
		if _, err := builder.AddDocument(fmt.Sprintf("docs/%05d.md", i), docBody(i)); err != nil {
			b.Fatal(err)
		}
	}
	gen, err := builder.Commit()
	if err != nil {
		b.Fatal(err)
	}
	return gen
}

// BenchmarkBuilderAdd measures per-document insert throughput into a
// pending build.
func BenchmarkBuilderAdd(b *testing.B) {
	builder := index.NewBuilder()
	body := "this is a benchmark document with several terms for testing the indexing performance of the builder"
	b.ReportAllocs()
	b.SetBytes(int64(len(body)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := builder.AddDocument(fmt.Sprintf("doc-%d.md", i), body); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBuilderCommit measures freezing a build into an immutable
// generation.
func BenchmarkBuilderCommit(b *testing.B) {
	for _, docs := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", docs), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buildGeneration(b, docs)
			}
		})
	}
}

// BenchmarkSegmentRoundTrip writes a generation and loads it back for each
// codec.
func BenchmarkSegmentRoundTrip(b *testing.B) {
	gen := buildGeneration(b, 5000)
	for _, codec := range []segment.Codec{segment.CodecNone, segment.CodecZstd, segment.CodecLZ4} {
		b.Run(codec.String(), func(b *testing.B) {
			w := segment.NewWriter(b.TempDir(), codec)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				path, err := w.Write(gen)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := segment.Load(path); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineIndex measures engine indexing throughput with periodic
// commits to disk.
func BenchmarkEngineIndex(b *testing.B) {
	for _, batch := range []int{100, 1000} {
		b.Run(fmt.Sprintf("commit_every_%d", batch), func(b *testing.B) {
			engine, err := indexer.NewEngine(config.IndexerConfig{
				DataDir:           b.TempDir(),
				Compression:       "zstd",
				CommitMaxDocs:     batch,
				RetainGenerations: 2,
			})
			if err != nil {
				b.Fatal(err)
			}
			defer engine.Close()

			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := engine.IndexDocument(ctx, fmt.Sprintf("bench-%d.md", i), docBody(i)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
