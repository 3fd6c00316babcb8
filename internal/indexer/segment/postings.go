package segment

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// appendPostings encodes pl as uvarints: the posting count, then per
// posting the DocID delta, the frequency, the position count and the
// position deltas.
func appendPostings(buf []byte, pl index.PostingList) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(pl)))
	var prevDoc uint32
	for i, p := range pl {
		delta := p.DocID
		if i > 0 {
			delta = p.DocID - prevDoc
		}
		prevDoc = p.DocID
		buf = binary.AppendUvarint(buf, uint64(delta))
		buf = binary.AppendUvarint(buf, uint64(p.Frequency))
		buf = binary.AppendUvarint(buf, uint64(len(p.Positions)))
		prevPos := 0
		for _, pos := range p.Positions {
			buf = binary.AppendUvarint(buf, uint64(pos-prevPos))
			prevPos = pos
		}
	}
	return buf
}

var errTruncated = errors.New("truncated postings")

type uvarintReader struct {
	data []byte
	off  int
	err  error
}

func (r *uvarintReader) next() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		r.err = errTruncated
		return 0
	}
	r.off += n
	return v
}

// decodePostings reverses appendPostings and checks that DocIDs ascend
// strictly and stay below docCount.
func decodePostings(data []byte, docCount int) (index.PostingList, error) {
	r := &uvarintReader{data: data}
	n := r.next()
	if r.err != nil {
		return nil, r.err
	}
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("posting count %d exceeds block size", n)
	}
	pl := make(index.PostingList, 0, n)
	var doc uint64
	for i := uint64(0); i < n; i++ {
		delta := r.next()
		if i > 0 && delta == 0 {
			return nil, fmt.Errorf("posting %d repeats document %d", i, doc)
		}
		doc += delta
		freq := r.next()
		npos := r.next()
		if r.err != nil {
			return nil, r.err
		}
		if doc >= uint64(docCount) {
			return nil, fmt.Errorf("document %d out of range (%d documents)", doc, docCount)
		}
		if npos > uint64(len(data)) {
			return nil, fmt.Errorf("position count %d exceeds block size", npos)
		}
		positions := make([]int, npos)
		pos := 0
		for j := range positions {
			pos += int(r.next())
			positions[j] = pos
		}
		if r.err != nil {
			return nil, r.err
		}
		pl = append(pl, index.Posting{DocID: uint32(doc), Frequency: int(freq), Positions: positions})
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after postings", len(data)-r.off)
	}
	return pl, nil
}
