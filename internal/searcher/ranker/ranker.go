// Package ranker scores candidate documents with the fixed weights used by
// documentation search boxes: a hit in a page title outranks a hit in the
// body, and exact term hits outrank partial (substring) hits.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

const (
	ScoreTitle        = 15
	ScorePartialTitle = 7
	ScoreTerm         = 5
	ScorePartialTerm  = 2
)

type MatchKind int

const (
	MatchTerm MatchKind = iota
	MatchTitle
	MatchPartialTerm
	MatchPartialTitle
)

// Score returns the base score of a match kind.
func (k MatchKind) Score() int {
	switch k {
	case MatchTitle:
		return ScoreTitle
	case MatchPartialTitle:
		return ScorePartialTitle
	case MatchTerm:
		return ScoreTerm
	default:
		return ScorePartialTerm
	}
}

// TermScores maps document -> best score for one query term.
type TermScores map[int]int

// Add records a posting matched with kind, keeping the best score per doc.
// A match is recorded even when a negative weight pulls its score below zero.
func (ts TermScores) Add(p searchindex.Posting, kind MatchKind) {
	score := kind.Score() + p.Weight
	if prev, seen := ts[p.Doc]; !seen || score > prev {
		ts[p.Doc] = score
	}
}

type ScoredDoc struct {
	Index    string  `json:"index,omitempty"`
	Doc      int     `json:"doc"`
	DocName  string  `json:"docname"`
	Filename string  `json:"filename"`
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
}

// Less orders by score descending, then index name and docname ascending.
func Less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.DocName < b.DocName
}

// Rank sums each candidate's per-term best scores and returns the top limit
// documents. limit <= 0 returns every candidate.
func Rank(
	perTerm []TermScores,
	candidates map[int]struct{},
	idx *searchindex.Index,
	limit int,
) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(candidates))
	for docID := range candidates {
		doc, ok := idx.Document(docID)
		if !ok {
			continue
		}
		var score int
		for _, ts := range perTerm {
			score += ts[docID]
		}
		result = append(result, ScoredDoc{
			Doc:      docID,
			DocName:  doc.Name,
			Filename: doc.Filename,
			Title:    doc.Title,
			Score:    float64(score),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return Less(result[i], result[j])
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
