// Package segment persists index generations as single self-describing
// files named gen_<id>.dsx.
//
// Layout, little endian:
//
//	header      64 bytes: magic, version, codec, field/term/doc counts,
//	            generation ID, postings offset and sizes, creation time
//	postings    varint delta-encoded postings, compressed with the codec
//	dictionary  JSON array of (field, term, offset, length, docfreq)
//	manifest    JSON object: generation IDs, analyzer, doc lengths, filenames
//	footer      32 bytes: dictionary offset and size, manifest size,
//	            CRC32 of header+postings+dictionary+manifest, magic
package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

const (
	Magic         = "DSX1"
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".dsx"
)

// Header is the fixed-size block at the start of every segment.
type Header struct {
	Version     uint32
	Codec       Codec
	FieldCount  uint32
	TermCount   uint32
	DocCount    uint32
	Generation  uint64
	PostOffset  int64
	PostSize    int64
	PostRawSize int64
	CreatedAt   int64
}

func (h Header) marshal() []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	b[8] = byte(h.Codec)
	binary.LittleEndian.PutUint32(b[12:16], h.FieldCount)
	binary.LittleEndian.PutUint32(b[16:20], h.TermCount)
	binary.LittleEndian.PutUint32(b[20:24], h.DocCount)
	binary.LittleEndian.PutUint64(b[24:32], h.Generation)
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.PostRawSize))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.CreatedAt))
	return b
}

func unmarshalHeader(b []byte) Header {
	return Header{
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		Codec:       Codec(b[8]),
		FieldCount:  binary.LittleEndian.Uint32(b[12:16]),
		TermCount:   binary.LittleEndian.Uint32(b[16:20]),
		DocCount:    binary.LittleEndian.Uint32(b[20:24]),
		Generation:  binary.LittleEndian.Uint64(b[24:32]),
		PostOffset:  int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:    int64(binary.LittleEndian.Uint64(b[40:48])),
		PostRawSize: int64(binary.LittleEndian.Uint64(b[48:56])),
		CreatedAt:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

// DictEntry locates one term's postings inside the decompressed postings
// block.
type DictEntry struct {
	Field      index.Field `json:"f"`
	Term       string      `json:"t"`
	PostOffset int64       `json:"o"`
	PostLen    int         `json:"l"`
	DocFreq    int         `json:"d"`
}

type manifest struct {
	Generation uint64             `json:"generation"`
	Base       uint64             `json:"base"`
	Analyzer   tokenizer.Analyzer `json:"analyzer"`
	DocLengths []int              `json:"doc_lengths"`
	Filenames  []string           `json:"filenames"`
}

// Writer serialises generations into a data directory.
type Writer struct {
	dataDir string
	codec   Codec
	logger  *slog.Logger
}

func NewWriter(dataDir string, codec Codec) *Writer {
	return &Writer{
		dataDir: dataDir,
		codec:   codec,
		logger:  slog.Default().With("component", "segment-writer"),
	}
}

// FileName returns the segment file name for a generation ID.
func FileName(id uint64) string {
	return fmt.Sprintf("gen_%d%s", id, Extension)
}

// Write atomically creates the segment file for gen. It writes to a .tmp
// file, syncs it and renames it into place, so readers only ever see
// complete files.
func (w *Writer) Write(gen *index.Generation) (string, error) {
	snap := gen.Snapshot()

	var raw []byte
	dict := make([]DictEntry, 0, len(snap.Entries))
	fields := make(map[index.Field]struct{})
	for _, entry := range snap.Entries {
		offset := len(raw)
		raw = appendPostings(raw, entry.Postings)
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: int64(offset),
			PostLen:    len(raw) - offset,
			DocFreq:    len(entry.Postings),
		})
		fields[entry.Field] = struct{}{}
	}

	codec := w.codec
	postings, err := compress(codec, raw)
	if errors.Is(err, errIncompressible) {
		codec, postings, err = CodecNone, raw, nil
	}
	if err != nil {
		return "", fmt.Errorf("compressing postings: %w", err)
	}

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	manifestData, err := json.Marshal(manifest{
		Generation: snap.ID,
		Base:       snap.BaseID,
		Analyzer:   snap.Analyzer,
		DocLengths: snap.DocLengths,
		Filenames:  snap.Filenames,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}

	header := Header{
		Version:     FormatVersion,
		Codec:       codec,
		FieldCount:  uint32(len(fields)),
		TermCount:   uint32(len(dict)),
		DocCount:    uint32(len(snap.Filenames)),
		Generation:  snap.ID,
		PostOffset:  int64(HeaderSize),
		PostSize:    int64(len(postings)),
		PostRawSize: int64(len(raw)),
		CreatedAt:   time.Now().Unix(),
	}

	headerData := header.marshal()
	dictOffset := header.PostOffset + header.PostSize
	checksum := crc32.NewIEEE()
	checksum.Write(headerData)
	checksum.Write(postings)
	checksum.Write(dictData)
	checksum.Write(manifestData)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(footer[0:8], uint64(dictOffset))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(manifestData)))
	binary.LittleEndian.PutUint32(footer[24:28], checksum.Sum32())
	copy(footer[28:32], Magic)

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	name := FileName(snap.ID)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	for _, part := range [][]byte{headerData, postings, dictData, manifestData, footer} {
		if _, err := f.Write(part); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("writing segment: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming segment file: %w", err)
	}

	w.logger.Info("segment written",
		"file", name,
		"generation", snap.ID,
		"docs", header.DocCount,
		"terms", header.TermCount,
		"codec", codec.String(),
		"postings_bytes", len(postings),
		"postings_raw_bytes", len(raw),
	)
	return name, nil
}
