package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Reader gives access to one segment file held in memory. Every structural
// check runs in Open, so a Reader that opened cleanly only fails on
// individual postings that do not decode.
type Reader struct {
	path     string
	header   Header
	dict     []DictEntry
	manifest manifest
	postings []byte
}

// maxPostingsBytes bounds the decompressed postings block a header may
// claim.
const maxPostingsBytes = 1 << 32

// Open reads and validates the segment at path. Any damage is reported as
// a *CorruptIndexError.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segment file: %w", err)
	}
	corrupt := func(format string, args ...any) error {
		return &apperrors.CorruptIndexError{Path: path, Reason: fmt.Sprintf(format, args...)}
	}

	if len(data) < HeaderSize+FooterSize {
		return nil, corrupt("file is %d bytes, shorter than header and footer", len(data))
	}
	if string(data[0:4]) != Magic {
		return nil, corrupt("bad magic bytes %x", data[0:4])
	}
	footer := data[len(data)-FooterSize:]
	if string(footer[28:32]) != Magic {
		return nil, corrupt("bad footer magic %x", footer[28:32])
	}
	header := unmarshalHeader(data[:HeaderSize])
	if header.Version != FormatVersion {
		return nil, corrupt("unsupported format version %d", header.Version)
	}

	body := int64(len(data) - FooterSize)
	dictOffset := int64(binary.LittleEndian.Uint64(footer[0:8]))
	dictSize := int64(binary.LittleEndian.Uint64(footer[8:16]))
	manifestSize := int64(binary.LittleEndian.Uint64(footer[16:24]))
	if header.PostOffset != int64(HeaderSize) || header.PostSize < 0 ||
		dictOffset != header.PostOffset+header.PostSize ||
		dictSize < 0 || manifestSize < 0 ||
		dictOffset+dictSize+manifestSize != body {
		return nil, corrupt("section offsets do not match file size %d", len(data))
	}
	if header.PostRawSize < 0 || header.PostRawSize > maxPostingsBytes ||
		(header.Codec == CodecNone && header.PostRawSize != header.PostSize) {
		return nil, corrupt("implausible raw postings size %d for a %d byte block", header.PostRawSize, header.PostSize)
	}

	postings := data[header.PostOffset:dictOffset]
	dictData := data[dictOffset : dictOffset+dictSize]
	manifestData := data[dictOffset+dictSize : body]

	checksum := crc32.NewIEEE()
	checksum.Write(data[:HeaderSize])
	checksum.Write(postings)
	checksum.Write(dictData)
	checksum.Write(manifestData)
	if want := binary.LittleEndian.Uint32(footer[24:28]); checksum.Sum32() != want {
		return nil, corrupt("checksum mismatch: computed %08x, stored %08x", checksum.Sum32(), want)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, corrupt("parsing dictionary: %v", err)
	}
	var m manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		return nil, corrupt("parsing manifest: %v", err)
	}
	if m.Generation != header.Generation {
		return nil, corrupt("manifest generation %d, header %d", m.Generation, header.Generation)
	}
	if len(m.Filenames) != len(m.DocLengths) || uint32(len(m.Filenames)) != header.DocCount {
		return nil, corrupt("manifest lists %d filenames and %d lengths for %d documents",
			len(m.Filenames), len(m.DocLengths), header.DocCount)
	}
	if uint32(len(dict)) != header.TermCount {
		return nil, corrupt("dictionary has %d terms, header %d", len(dict), header.TermCount)
	}

	raw, err := decompress(header.Codec, postings, int(header.PostRawSize))
	if err != nil {
		return nil, corrupt("postings block: %v", err)
	}
	for i, e := range dict {
		if !e.Field.Valid() {
			return nil, corrupt("dictionary entry %d has unknown field %q", i, e.Field)
		}
		if e.PostOffset < 0 || e.PostLen < 0 || e.PostOffset+int64(e.PostLen) > int64(len(raw)) {
			return nil, corrupt("postings for %s:%q out of bounds", e.Field, e.Term)
		}
		if i > 0 && !entryLess(dict[i-1], e) {
			return nil, corrupt("dictionary not sorted at entry %d", i)
		}
	}

	return &Reader{
		path:     path,
		header:   header,
		dict:     dict,
		manifest: m,
		postings: raw,
	}, nil
}

// Load opens the segment at path and materializes its generation.
func Load(path string) (*index.Generation, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	return r.Generation()
}

func fieldRank(f index.Field) int {
	for i, name := range index.Fields {
		if name == f {
			return i
		}
	}
	return len(index.Fields)
}

func entryLess(a, b DictEntry) bool {
	if a.Field != b.Field {
		return fieldRank(a.Field) < fieldRank(b.Field)
	}
	return a.Term < b.Term
}

// Postings decodes the postings of one term, or returns nil if the term is
// not in the segment.
func (r *Reader) Postings(field index.Field, term string) (index.PostingList, error) {
	key := DictEntry{Field: field, Term: term}
	idx := sort.Search(len(r.dict), func(i int) bool {
		return !entryLess(r.dict[i], key)
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.decode(r.dict[idx])
}

func (r *Reader) decode(e DictEntry) (index.PostingList, error) {
	pl, err := decodePostings(r.postings[e.PostOffset:e.PostOffset+int64(e.PostLen)], int(r.header.DocCount))
	if err != nil {
		return nil, &apperrors.CorruptIndexError{Path: r.path, Reason: fmt.Sprintf("postings for %s:%q: %v", e.Field, e.Term, err)}
	}
	if len(pl) != e.DocFreq {
		return nil, &apperrors.CorruptIndexError{Path: r.path, Reason: fmt.Sprintf("postings for %s:%q hold %d documents, dictionary says %d", e.Field, e.Term, len(pl), e.DocFreq)}
	}
	return pl, nil
}

// Generation decodes every postings list and assembles the generation.
func (r *Reader) Generation() (*index.Generation, error) {
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, e := range r.dict {
		pl, err := r.decode(e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Field: e.Field, Term: e.Term, Postings: pl})
	}
	return index.FromSnapshot(index.Snapshot{
		ID:         r.manifest.Generation,
		BaseID:     r.manifest.Base,
		Analyzer:   r.manifest.Analyzer,
		DocLengths: r.manifest.DocLengths,
		Filenames:  r.manifest.Filenames,
		Entries:    entries,
	}), nil
}

func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}
