package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

var markdownSamples = map[string]string{
	"heading": "# Getting Started with the CLI",
	"section": `## Configuration

Set ` + "`indexer.dataDir`" + ` to the directory holding gen_*.dsx files. The searcher
watches it and activates each new generation once the rename completes.
Queries such as "atomic commit" OR filename:setup stay valid across reloads.`,
	"page": strings.Repeat(`Generations are immutable: a commit freezes postings, sorts them by
document id and writes a compressed segment. Readers hold a handle on the
generation they started with, so swapping in a new one never blocks a query.
Stop-word removal and stemming are optional; the default analyzer only
lower-cases and splits on punctuation (e.g. foo_bar-v2.1 -> foo bar v2 1).
`, 25),
}

func BenchmarkTokens(b *testing.B) {
	for name, text := range markdownSamples {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				n := 0
				for range tokenizer.Tokens(text) {
					n++
				}
				_ = n
			}
		})
	}
}

func BenchmarkAnalyzers(b *testing.B) {
	text := markdownSamples["page"]
	analyzers := map[string]tokenizer.Analyzer{
		"default":   tokenizer.Default,
		"stopwords": {StopWords: true},
		"stem":      {StopWords: true, MinLength: 2, Stem: true},
	}
	for name, a := range analyzers {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = a.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := markdownSamples["section"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}

func BenchmarkTokenizeDocumentSize(b *testing.B) {
	line := "docs/setup.mdx: index, commit & search; "
	for _, size := range []int{64, 1 << 10, 16 << 10, 256 << 10} {
		text := strings.Repeat(line, size/len(line)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}
