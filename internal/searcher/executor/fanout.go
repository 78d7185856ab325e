package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
)

// maxParallel caps concurrent per-index evaluations in a fan-out.
const maxParallel = 8

// Target is one named index taking part in a fan-out.
type Target struct {
	Name  string
	Index *searchindex.Index
}

// FanOut evaluates plan against every target concurrently and merges the
// per-index rankings into one list. Term stats and hit counts are summed.
func (e *Executor) FanOut(ctx context.Context, targets []Target, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	results := make([]*SearchResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, t := range targets {
		g.Go(func() error {
			res, err := e.Execute(gctx, t.Name, t.Index, plan, limit)
			if err != nil {
				return fmt.Errorf("index %s: %w", t.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &SearchResult{
		Query:     plan.RawQuery,
		Results:   []ranker.ScoredDoc{},
		TermStats: make(map[string]int),
	}
	lists := make([][]ranker.ScoredDoc, 0, len(results))
	for _, res := range results {
		merged.TotalHits += res.TotalHits
		for term, n := range res.TermStats {
			merged.TermStats[term] += n
		}
		lists = append(lists, res.Results)
	}
	if len(plan.Terms) > 0 {
		merged.Results = merger.Merge(lists, limit)
	}
	e.logger.Info("fan-out query executed",
		"query", plan.RawQuery,
		"indexes", len(targets),
		"total_hits", merged.TotalHits,
		"results", len(merged.Results),
	)
	return merged, nil
}
