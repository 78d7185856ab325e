package executor

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
)

// Partial (substring) matching is only attempted for query terms longer
// than this many runes.
const minPartialLen = 2

// ctxCheckEvery bounds how many keys a partial scan visits between
// cancellation checks.
const ctxCheckEvery = 1024

type SearchResult struct {
	Index     string             `json:"index,omitempty"`
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
}

type Executor struct {
	logger *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates plan against a single index. Each query term is matched
// by its stem and by the word as typed, case-insensitively, in both the body
// and title tables.
func (e *Executor) Execute(ctx context.Context, name string, idx *searchindex.Index, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if len(plan.Terms) == 0 {
		return &SearchResult{
			Index:     name,
			Query:     plan.RawQuery,
			Results:   []ranker.ScoredDoc{},
			TermStats: map[string]int{},
		}, nil
	}

	perTerm := make([]ranker.TermScores, 0, len(plan.Terms))
	termStats := make(map[string]int, len(plan.Terms))
	for _, qt := range plan.Terms {
		ts, err := collect(ctx, idx, qt)
		if err != nil {
			return nil, err
		}
		perTerm = append(perTerm, ts)
		termStats[qt.Term] = len(ts)
	}

	var candidates map[int]struct{}
	switch plan.Type {
	case parser.QueryAND:
		candidates = intersect(perTerm)
	case parser.QueryOR:
		candidates = union(perTerm)
	}
	for _, qt := range plan.ExcludeTerms {
		for doc := range exactDocs(idx, qt) {
			delete(candidates, doc)
		}
	}

	ranked := ranker.Rank(perTerm, candidates, idx, limit)
	for i := range ranked {
		ranked[i].Index = name
	}
	e.logger.Debug("query executed",
		"index", name,
		"query", plan.RawQuery,
		"candidates", len(candidates),
		"results", len(ranked),
	)
	return &SearchResult{
		Index:     name,
		Query:     plan.RawQuery,
		TotalHits: len(candidates),
		Results:   ranked,
		TermStats: termStats,
	}, nil
}

// variants lists the distinct keys qt may be stored under: its Porter stem,
// its Porter2 stem and the unstemmed word.
func variants(qt parser.QueryTerm) []string {
	out := []string{qt.Term}
	for _, v := range []string{qt.Alt, qt.Raw} {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func foldedKeys(qt parser.QueryTerm, fold func(string) []string) []string {
	var keys []string
	for _, v := range variants(qt) {
		keys = append(keys, fold(v)...)
	}
	return keys
}

func collect(ctx context.Context, idx *searchindex.Index, qt parser.QueryTerm) (ranker.TermScores, error) {
	ts := ranker.TermScores{}
	tables := []struct {
		postings map[string]searchindex.PostingList
		fold     func(string) []string
		exact    ranker.MatchKind
		partial  ranker.MatchKind
	}{
		{idx.Terms, idx.FoldedTerms, ranker.MatchTerm, ranker.MatchPartialTerm},
		{idx.TitleTerms, idx.FoldedTitleTerms, ranker.MatchTitle, ranker.MatchPartialTitle},
	}
	for _, tbl := range tables {
		keys := foldedKeys(qt, tbl.fold)
		for _, key := range keys {
			for _, p := range tbl.postings[key] {
				ts.Add(p, tbl.exact)
			}
		}
		if len(keys) > 0 || utf8.RuneCountInString(qt.Term) <= minPartialLen {
			continue
		}
		if err := scanPartial(ctx, tbl.postings, qt, func(p searchindex.Posting) {
			ts.Add(p, tbl.partial)
		}); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func scanPartial(ctx context.Context, table map[string]searchindex.PostingList, qt parser.QueryTerm, add func(searchindex.Posting)) error {
	needles := variants(qt)
	n := 0
	for key, pl := range table {
		n++
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		lower := strings.ToLower(key)
		for _, needle := range needles {
			if strings.Contains(lower, needle) {
				for _, p := range pl {
					add(p)
				}
				break
			}
		}
	}
	return nil
}

// exactDocs returns the documents matched exactly by qt in either table.
// Exclusions never use partial matching.
func exactDocs(idx *searchindex.Index, qt parser.QueryTerm) map[int]struct{} {
	docs := make(map[int]struct{})
	for _, key := range foldedKeys(qt, idx.FoldedTerms) {
		for _, p := range idx.Terms[key] {
			docs[p.Doc] = struct{}{}
		}
	}
	for _, key := range foldedKeys(qt, idx.FoldedTitleTerms) {
		for _, p := range idx.TitleTerms[key] {
			docs[p.Doc] = struct{}{}
		}
	}
	return docs
}

func intersect(perTerm []ranker.TermScores) map[int]struct{} {
	if len(perTerm) == 0 {
		return make(map[int]struct{})
	}
	shortest := 0
	for i, ts := range perTerm {
		if len(ts) < len(perTerm[shortest]) {
			shortest = i
		}
	}
	candidates := make(map[int]struct{}, len(perTerm[shortest]))
	for doc := range perTerm[shortest] {
		candidates[doc] = struct{}{}
	}
	for i, ts := range perTerm {
		if i == shortest {
			continue
		}
		for doc := range candidates {
			if _, ok := ts[doc]; !ok {
				delete(candidates, doc)
			}
		}
	}
	return candidates
}

func union(perTerm []ranker.TermScores) map[int]struct{} {
	result := make(map[int]struct{})
	for _, ts := range perTerm {
		for doc := range ts {
			result[doc] = struct{}{}
		}
	}
	return result
}
