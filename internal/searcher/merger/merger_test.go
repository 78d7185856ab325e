package merger

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
)

func doc(index, name string, score float64) ranker.ScoredDoc {
	return ranker.ScoredDoc{Index: index, DocName: name, Score: score}
}

func TestMerge(t *testing.T) {
	lists := [][]ranker.ScoredDoc{
		{doc("b", "intro", 15), doc("b", "api", 5)},
		{doc("a", "intro", 15), doc("a", "usage", 10)},
		{},
	}
	got := Merge(lists, 3)
	want := []ranker.ScoredDoc{
		doc("a", "intro", 15),
		doc("b", "intro", 15),
		doc("a", "usage", 10),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDefaultLimit(t *testing.T) {
	var list []ranker.ScoredDoc
	for i := 0; i < 25; i++ {
		list = append(list, doc("x", string(rune('a'+i)), float64(i)))
	}
	got := Merge([][]ranker.ScoredDoc{list}, 0)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if got[0].Score != 24 || got[9].Score != 15 {
		t.Errorf("unexpected bounds: first %v, last %v", got[0].Score, got[9].Score)
	}
}
