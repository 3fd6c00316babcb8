package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// Generation is one immutable snapshot of the inverted index. Nothing
// mutates a Generation after Commit or Load returns it, so any number of
// goroutines may read it without synchronization.
type Generation struct {
	id          uint64
	baseID      uint64
	analyzer    tokenizer.Analyzer
	fields      map[Field]map[string]PostingList
	docLengths  []int
	filenames   []string
	totalTokens int64
}

// Snapshot is the raw material of a generation, used by the segment codec
// to rebuild one from disk.
type Snapshot struct {
	ID         uint64
	BaseID     uint64
	Analyzer   tokenizer.Analyzer
	DocLengths []int
	Filenames  []string
	Entries    []TermEntry
}

// FromSnapshot assembles a Generation. The caller hands over ownership of
// every slice in s.
func FromSnapshot(s Snapshot) *Generation {
	g := &Generation{
		id:         s.ID,
		baseID:     s.BaseID,
		analyzer:   s.Analyzer,
		fields:     newFieldMaps(),
		docLengths: s.DocLengths,
		filenames:  s.Filenames,
	}
	for _, l := range s.DocLengths {
		g.totalTokens += int64(l)
	}
	for _, e := range s.Entries {
		if !e.Field.Valid() {
			continue
		}
		g.fields[e.Field][e.Term] = e.Postings
	}
	return g
}

// Empty returns a generation with no documents and no terms.
func Empty() *Generation {
	return &Generation{fields: newFieldMaps()}
}

func newFieldMaps() map[Field]map[string]PostingList {
	m := make(map[Field]map[string]PostingList, len(Fields))
	for _, f := range Fields {
		m[f] = make(map[string]PostingList)
	}
	return m
}

// ID is the generation sequence number; BaseID the generation it was built on.
func (g *Generation) ID() uint64     { return g.id }
func (g *Generation) BaseID() uint64 { return g.baseID }

// Analyzer returns the normalization policy the generation was built with.
// Queries must be normalized with the same policy.
func (g *Generation) Analyzer() tokenizer.Analyzer { return g.analyzer }

// Postings returns the postings list of term in field, or nil when the
// term is not in the vocabulary.
func (g *Generation) Postings(field Field, term string) PostingList {
	return g.fields[field][term]
}

// DocFreq returns the number of documents containing term in field.
func (g *Generation) DocFreq(field Field, term string) int {
	return len(g.fields[field][term])
}

func (g *Generation) DocCount() int {
	return len(g.filenames)
}

// DocLength returns the content token count of docID.
func (g *Generation) DocLength(docID uint32) int {
	if int(docID) >= len(g.docLengths) {
		return 0
	}
	return g.docLengths[docID]
}

func (g *Generation) Filename(docID uint32) string {
	if int(docID) >= len(g.filenames) {
		return ""
	}
	return g.filenames[docID]
}

func (g *Generation) TotalTokens() int64 {
	return g.totalTokens
}

func (g *Generation) AvgDocLength() float64 {
	if len(g.docLengths) == 0 {
		return 0
	}
	return float64(g.totalTokens) / float64(len(g.docLengths))
}

// VocabularySize counts distinct terms across all fields.
func (g *Generation) VocabularySize() int {
	n := 0
	for _, terms := range g.fields {
		n += len(terms)
	}
	return n
}

// Entries returns every (field, term) postings pair sorted by field order
// then term, the order the segment writer lays them out.
func (g *Generation) Entries() []TermEntry {
	entries := make([]TermEntry, 0, g.VocabularySize())
	for _, f := range Fields {
		terms := g.fields[f]
		start := len(entries)
		for term, postings := range terms {
			entries = append(entries, TermEntry{Field: f, Term: term, Postings: postings})
		}
		sub := entries[start:]
		sort.Slice(sub, func(i, j int) bool {
			return sub[i].Term < sub[j].Term
		})
	}
	return entries
}

// Snapshot exposes the generation's tables for serialization. The returned
// slices are shared and must not be modified.
func (g *Generation) Snapshot() Snapshot {
	return Snapshot{
		ID:         g.id,
		BaseID:     g.baseID,
		Analyzer:   g.analyzer,
		DocLengths: g.docLengths,
		Filenames:  g.filenames,
		Entries:    g.Entries(),
	}
}
