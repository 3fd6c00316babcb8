package ranker

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Mode selects the scoring function.
type Mode string

const (
	// ModeTFIDF scores tf * (ln((N+1)/(df+1)) + 1), summed over query terms.
	ModeTFIDF Mode = "tfidf"
	// ModeCount sums raw term occurrences.
	ModeCount Mode = "count"
	ModeBM25  Mode = "bm25"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTFIDF, ModeCount, ModeBM25:
		return m, nil
	case "":
		return ModeTFIDF, nil
	}
	return "", fmt.Errorf("%w: unknown scoring mode %q", apperrors.ErrInvalidInput, s)
}

type ScoredDoc struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

type RankParams struct {
	Mode Mode
	// NormalizeLength divides each candidate's whole score by its content
	// length, at least 1, whichever field the matching leaves target.
	NormalizeLength bool
	TotalDocs       int
	AvgDocLength    float64
}

// Leaf is the scoring input of one positive query leaf. For a phrase,
// Postings holds one entry per matching document with the phrase
// occurrence count as Frequency.
type Leaf struct {
	Postings index.PostingList
}

// Rank scores every candidate against the leaves. Candidates must be
// sorted by ascending DocID; the result keeps that order.
func Rank(leaves []Leaf, candidates []uint32, params RankParams, docLength func(uint32) int) []ScoredDoc {
	result := make([]ScoredDoc, len(candidates))
	for i, id := range candidates {
		result[i].DocID = id
	}
	for _, leaf := range leaves {
		df := len(leaf.Postings)
		if df == 0 {
			continue
		}
		idf := computeIDF(params.Mode, params.TotalDocs, df)
		// Both lists are sorted, so one forward pass pairs them up.
		j := 0
		for i := range result {
			for j < len(leaf.Postings) && leaf.Postings[j].DocID < result[i].DocID {
				j++
			}
			if j == len(leaf.Postings) {
				break
			}
			p := leaf.Postings[j]
			if p.DocID != result[i].DocID {
				continue
			}
			tf := float64(p.Frequency)
			switch params.Mode {
			case ModeCount:
				result[i].Score += tf
			case ModeBM25:
				result[i].Score += idf * computeTFNorm(tf, float64(docLength(p.DocID)), params.AvgDocLength)
			default:
				result[i].Score += tf * idf
			}
		}
	}
	if params.NormalizeLength {
		for i := range result {
			result[i].Score /= float64(max(1, docLength(result[i].DocID)))
		}
	}
	return result
}

func computeIDF(mode Mode, totalDocs int, docFreq int) float64 {
	switch mode {
	case ModeCount:
		return 1
	case ModeBM25:
		numerator := float64(totalDocs) - float64(docFreq)
		denominator := float64(docFreq) + 0.5
		return math.Log(numerator/denominator + 1)
	}
	return math.Log(float64(totalDocs+1)/float64(docFreq+1)) + 1
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
