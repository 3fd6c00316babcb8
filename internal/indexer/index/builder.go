package index

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Builder accumulates documents into private working state and freezes it
// into a Generation on Commit. A Builder is not safe for concurrent use;
// callers serialize AddDocument and Commit.
type Builder struct {
	analyzer tokenizer.Analyzer
	base     *Generation

	fields      map[Field]map[string]PostingList
	docLengths  []int
	filenames   []string
	totalTokens int64
	size        int64
	added       int
	sealed      bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithAnalyzer sets the normalization policy. It is ignored when the
// Builder extends a base generation, which already fixes the policy.
func WithAnalyzer(a tokenizer.Analyzer) Option {
	return func(b *Builder) { b.analyzer = a }
}

// WithBase makes the Builder start from the documents of an existing
// generation. New documents get DocIDs after the base's last one and the
// committed generation records base.ID() as its BaseID. Base postings are
// shared, never modified.
func WithBase(base *Generation) Option {
	return func(b *Builder) { b.base = base }
}

// NewBuilder creates an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.base != nil {
		b.analyzer = b.base.analyzer
	}
	b.Reset()
	return b
}

// Reset discards every document added since construction (or since the
// last Reset) and unseals the Builder. A Builder with a base returns to
// exactly the base's documents.
func (b *Builder) Reset() {
	b.fields = newFieldMaps()
	b.docLengths = nil
	b.filenames = nil
	b.totalTokens = 0
	b.size = 0
	b.added = 0
	b.sealed = false
	if b.base == nil {
		return
	}
	for f, terms := range b.base.fields {
		dst := b.fields[f]
		for term, postings := range terms {
			// Clipping forces the first append to copy, keeping the base
			// generation's backing arrays untouched.
			dst[term] = slices.Clip(postings)
		}
	}
	b.docLengths = slices.Clip(b.base.docLengths)
	b.filenames = slices.Clip(b.base.filenames)
	b.totalTokens = b.base.totalTokens
}

// AddDocument tokenizes content, assigns the next DocID and records the
// term statistics of both the content and filename fields. Content that is
// not valid UTF-8 text yields a *errors.DecodeError; the document is then
// not added and no DocID is consumed.
func (b *Builder) AddDocument(filename string, content string) (uint32, error) {
	if b.sealed {
		return 0, apperrors.ErrBuilderSealed
	}
	if err := checkText(filename, content); err != nil {
		return 0, err
	}
	docID := uint32(len(b.filenames))

	length := b.addField(FieldContent, docID, content)
	b.addField(FieldFilename, docID, filename)

	b.docLengths = append(b.docLengths, length)
	b.filenames = append(b.filenames, filename)
	b.totalTokens += int64(length)
	b.size += int64(len(filename) + 16)
	b.added++
	return docID, nil
}

// AddBytes is AddDocument for raw bytes, as read from files or archives.
func (b *Builder) AddBytes(filename string, content []byte) (uint32, error) {
	return b.AddDocument(filename, string(content))
}

func (b *Builder) addField(field Field, docID uint32, text string) int {
	termData := make(map[string]*Posting)
	order := make([]string, 0, 16)
	length := 0
	for tok := range b.analyzer.Tokens(text) {
		p, exists := termData[tok.Term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Positions: make([]int, 0, 4),
			}
			termData[tok.Term] = p
			order = append(order, tok.Term)
		}
		p.Frequency++
		p.Positions = append(p.Positions, tok.Position)
		length++
	}
	terms := b.fields[field]
	for _, term := range order {
		posting := termData[term]
		// DocIDs only grow, so appending keeps every list sorted.
		terms[term] = append(terms[term], *posting)
		b.size += int64(len(term) + len(posting.Positions)*8 + 32)
	}
	return length
}

// Commit freezes the working state into an immutable Generation and seals
// the Builder. An empty Builder commits to a valid empty generation.
func (b *Builder) Commit() (*Generation, error) {
	if b.sealed {
		return nil, apperrors.ErrBuilderSealed
	}
	b.sealed = true
	var baseID uint64
	if b.base != nil {
		baseID = b.base.id
	}
	return &Generation{
		id:          baseID + 1,
		baseID:      baseID,
		analyzer:    b.analyzer,
		fields:      b.fields,
		docLengths:  slices.Clip(b.docLengths),
		filenames:   slices.Clip(b.filenames),
		totalTokens: b.totalTokens,
	}, nil
}

// Added returns how many documents were added since the last Reset,
// excluding documents inherited from the base.
func (b *Builder) Added() int {
	return b.added
}

// DocCount returns the number of documents the next Commit will contain.
func (b *Builder) DocCount() int {
	return len(b.filenames)
}

// Size is an approximate byte count of the postings added since Reset.
func (b *Builder) Size() int64 {
	return b.size
}

func (b *Builder) Analyzer() tokenizer.Analyzer {
	return b.analyzer
}

// checkText rejects content that cannot be tokenized as text.
func checkText(filename, content string) error {
	if utf8.ValidString(content) {
		if i := strings.IndexByte(content, 0); i >= 0 {
			return &apperrors.DecodeError{Filename: filename, Offset: i, Reason: "NUL byte in content"}
		}
		return nil
	}
	for i := 0; i < len(content); {
		r, size := utf8.DecodeRuneInString(content[i:])
		if r == utf8.RuneError && size <= 1 {
			return &apperrors.DecodeError{Filename: filename, Offset: i, Reason: "invalid UTF-8"}
		}
		i += size
	}
	return nil
}
