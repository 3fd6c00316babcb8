package index

// Field names a searchable part of a document.
type Field string

const (
	FieldContent  Field = "content"
	FieldFilename Field = "filename"
)

// Fields lists every indexed field in serialization order.
var Fields = []Field{FieldContent, FieldFilename}

// Valid reports whether f is one of the indexed fields.
func (f Field) Valid() bool {
	return f == FieldContent || f == FieldFilename
}

// Posting links a term to one document. Positions are ascending token
// offsets within the field.
type Posting struct {
	DocID     uint32
	Frequency int
	Positions []int
}

// PostingList holds the postings of one term ordered by ascending DocID,
// with no DocID repeated.
type PostingList []Posting

// DocIDs returns the document IDs in list order.
func (pl PostingList) DocIDs() []uint32 {
	ids := make([]uint32, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

// Find returns the posting for docID using binary search.
func (pl PostingList) Find(docID uint32) (Posting, bool) {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pl[mid].DocID < docID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(pl) && pl[lo].DocID == docID {
		return pl[lo], true
	}
	return Posting{}, false
}

// TermEntry pairs a term with its postings, used when walking a generation
// in sorted order.
type TermEntry struct {
	Field    Field
	Term     string
	Postings PostingList
}
