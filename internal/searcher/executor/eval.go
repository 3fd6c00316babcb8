package executor

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

// docSet is a set of document IDs. When negated it stands for every
// document except ids, which lets NOT operands be combined without
// materializing the whole collection.
type docSet struct {
	ids     *roaring.Bitmap
	negated bool
}

type evaluator struct {
	gen    *index.Generation
	leaves map[string]index.PostingList
}

func newEvaluator(gen *index.Generation) *evaluator {
	return &evaluator{gen: gen, leaves: make(map[string]index.PostingList)}
}

func (ev *evaluator) eval(e parser.Expr) docSet {
	switch e := e.(type) {
	case parser.Term, parser.Phrase:
		return docSet{ids: roaring.BitmapOf(ev.leaf(e).DocIDs()...)}
	case parser.Not:
		s := ev.eval(e.Expr)
		s.negated = !s.negated
		return s
	case parser.And:
		l, r := ev.eval(e.Left), ev.eval(e.Right)
		switch {
		case !l.negated && !r.negated:
			return docSet{ids: roaring.And(l.ids, r.ids)}
		case !l.negated:
			return docSet{ids: roaring.AndNot(l.ids, r.ids)}
		case !r.negated:
			return docSet{ids: roaring.AndNot(r.ids, l.ids)}
		default:
			return docSet{ids: roaring.Or(l.ids, r.ids), negated: true}
		}
	case parser.Or:
		l, r := ev.eval(e.Left), ev.eval(e.Right)
		switch {
		case !l.negated && !r.negated:
			return docSet{ids: roaring.Or(l.ids, r.ids)}
		case !l.negated:
			return docSet{ids: roaring.AndNot(r.ids, l.ids), negated: true}
		case !r.negated:
			return docSet{ids: roaring.AndNot(l.ids, r.ids), negated: true}
		default:
			return docSet{ids: roaring.And(l.ids, r.ids), negated: true}
		}
	}
	return docSet{ids: roaring.New()}
}

// leaf resolves a Term or Phrase to its postings, memoized so scoring
// reuses the lists built during evaluation.
func (ev *evaluator) leaf(e parser.Expr) index.PostingList {
	key := e.String()
	if pl, ok := ev.leaves[key]; ok {
		return pl
	}
	var pl index.PostingList
	switch e := e.(type) {
	case parser.Term:
		pl = ev.gen.Postings(e.Field, e.Text)
	case parser.Phrase:
		pl = matchPhrase(ev.gen, e)
	}
	ev.leaves[key] = pl
	return pl
}

// matchPhrase returns one posting per document containing the phrase,
// with the number of occurrences as Frequency and the start positions.
func matchPhrase(gen *index.Generation, p parser.Phrase) index.PostingList {
	lists := make([]index.PostingList, len(p.Terms))
	for i, term := range p.Terms {
		lists[i] = gen.Postings(p.Field, term)
		if len(lists[i]) == 0 {
			return nil
		}
	}
	var out index.PostingList
	cursors := make([]int, len(lists))
	for _, first := range lists[0] {
		doc := make([]index.Posting, len(lists))
		doc[0] = first
		found := true
		for i := 1; i < len(lists); i++ {
			l := lists[i]
			for cursors[i] < len(l) && l[cursors[i]].DocID < first.DocID {
				cursors[i]++
			}
			if cursors[i] == len(l) {
				return out
			}
			if l[cursors[i]].DocID != first.DocID {
				found = false
				break
			}
			doc[i] = l[cursors[i]]
		}
		if !found {
			continue
		}
		var starts []int
		for _, start := range first.Positions {
			ok := true
			for i := 1; i < len(doc); i++ {
				if _, hit := slices.BinarySearch(doc[i].Positions, start+i); !hit {
					ok = false
					break
				}
			}
			if ok {
				starts = append(starts, start)
			}
		}
		if len(starts) > 0 {
			out = append(out, index.Posting{DocID: first.DocID, Frequency: len(starts), Positions: starts})
		}
	}
	return out
}
