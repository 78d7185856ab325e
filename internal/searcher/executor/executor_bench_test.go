package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

// syntheticIndex builds an index of numDocs documents over a vocabulary of
// numTerms terms, each posted to every seventh document.
func syntheticIndex(numDocs, numTerms int) *searchindex.Index {
	idx := &searchindex.Index{
		DocNames:   make([]string, numDocs),
		Filenames:  make([]string, numDocs),
		Titles:     make([]string, numDocs),
		Terms:      make(map[string]searchindex.PostingList, numTerms),
		TitleTerms: make(map[string]searchindex.PostingList),
	}
	for i := range numDocs {
		idx.DocNames[i] = fmt.Sprintf("page%05d", i)
		idx.Filenames[i] = idx.DocNames[i] + ".rst"
		idx.Titles[i] = fmt.Sprintf("Page %d", i)
	}
	for t := range numTerms {
		var pl searchindex.PostingList
		for d := t % 7; d < numDocs; d += 7 {
			pl = append(pl, searchindex.Posting{Doc: d})
		}
		idx.Terms[fmt.Sprintf("term%05d", t)] = pl
	}
	return idx
}

func BenchmarkExecuteFixture(b *testing.B) {
	idx := loadFixture(b)
	queries := []struct {
		name  string
		query string
	}{
		{"single", "floquet"},
		{"and", "quspin python"},
		{"or", "spin OR bose"},
		{"exclude", "hamiltonian -floquet"},
	}
	exec := New()
	ctx := context.Background()
	for _, q := range queries {
		plan := parser.Parse(q.query)
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := exec.Execute(ctx, "quspin", idx, plan, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkPartialScan measures the substring pass, which visits every key.
func BenchmarkPartialScan(b *testing.B) {
	for _, numTerms := range []int{1000, 10000, 100000} {
		idx := syntheticIndex(5000, numTerms)
		plan := parser.Parse("erm0012")
		exec := New()
		b.Run(fmt.Sprintf("terms_%d", numTerms), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := exec.Execute(context.Background(), "synthetic", idx, plan, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
