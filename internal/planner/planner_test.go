package planner

import (
	"testing"

	"github.com/jpequegn/testguard/internal/testtree"
)

func TestPlan_SingleBatchWhenWholeTreeFits(t *testing.T) {
	tree := testtree.Build([]string{"A.B.T1", "A.B.T2", "A.C.T3"})
	batches := Plan(tree, 5000)

	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if len(batches[0].Tests) != 3 {
		t.Errorf("expected 3 tests in batch, got %d", len(batches[0].Tests))
	}
}

func TestPlan_EveryBatchRespectsCeilingOrIsSingleton(t *testing.T) {
	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, "N.M"+itoa(i))
	}
	tree := testtree.Build(ids)
	batches := Plan(tree, 10)

	total := 0
	for _, b := range batches {
		total += len(b.Tests)
		if len(b.Tests) > 10 && len(b.Tests) != 1 {
			t.Errorf("batch %q has %d tests, exceeds ceiling and is not a singleton", b.Label, len(b.Tests))
		}
		if len(b.FilterPrefixes) == 0 {
			t.Errorf("batch %q has no filter prefixes", b.Label)
		}
	}
	if total != len(ids) {
		t.Errorf("batches cover %d tests, want %d", total, len(ids))
	}
}

func TestPlan_SplitSubtreesEachCarryOnePrefix(t *testing.T) {
	ids := []string{"A.T1", "A.T2", "B.T3", "B.T4"}
	tree := testtree.Build(ids)
	batches := Plan(tree, 2)

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	for _, b := range batches {
		if len(b.FilterPrefixes) != 1 {
			t.Errorf("expected each single-subtree batch to carry one prefix, got %v", b.FilterPrefixes)
		}
	}
}

func TestPlan_OversizedLeafFallsBackToChunking(t *testing.T) {
	ids := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		ids = append(ids, "A.B.Method(x: "+itoa(i)+")")
	}
	tree := testtree.Build(ids)
	batches := Plan(tree, 10)

	total := 0
	for _, b := range batches {
		if len(b.Tests) > 10 {
			t.Errorf("batch %q has %d tests, exceeds ceiling", b.Label, len(b.Tests))
		}
		total += len(b.Tests)
	}
	if total != len(ids) {
		t.Errorf("batches cover %d tests, want %d", total, len(ids))
	}
	if len(batches) < 2 {
		t.Fatalf("expected the oversized leaf to split into multiple batches, got %d", len(batches))
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
