// Package planner packs a test tree's maximal-under-limit subtrees into an
// ordered list of batches, each bounded by a per-batch test count ceiling.
package planner

import (
	"fmt"

	"github.com/jpequegn/testguard/internal/testtree"
)

// DefaultMaxTestsPerBatch is the planner ceiling used when a caller doesn't
// override it (config knob maxTestsPerBatch).
const DefaultMaxTestsPerBatch = 5000

// Batch is an ordered list of identifiers routed through a single worker
// invocation behind one OR filter.
type Batch struct {
	Label          string
	Tests          []string
	FilterPrefixes []string
	Depth          int
}

// Plan packs tree's eligible subtrees into batches bounded by
// maxTestsPerBatch. Nodes are visited in child-name order and packed
// greedily: a node joins the current batch if doing so would not exceed
// the ceiling, otherwise the current batch is emitted and a new one
// started.
func Plan(tree *testtree.Node, maxTestsPerBatch int) []*Batch {
	return PlanAtDepth(tree, maxTestsPerBatch, 0)
}

// PlanAtDepth is Plan with an explicit recursion depth, used by the
// isolation scheduler when it re-plans a drill-down subtree.
func PlanAtDepth(tree *testtree.Node, maxTestsPerBatch int, depth int) []*Batch {
	if maxTestsPerBatch <= 0 {
		maxTestsPerBatch = DefaultMaxTestsPerBatch
	}

	eligible := testtree.MaximalUnderLimit(tree, maxTestsPerBatch)

	var batches []*Batch
	var current []*testtree.Node
	currentCount := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, buildBatch(current, depth, len(batches)))
		current = nil
		currentCount = 0
	}

	for _, node := range eligible {
		count := testtree.Total(node)
		if count > maxTestsPerBatch {
			// §4.C fallback: a leaf whose own parametric cases alone
			// outnumber the ceiling has no finer subtree to select, so
			// enumerate its tests directly instead of emitting one
			// oversized batch.
			flush()
			batches = append(batches, chunkOversizedNode(node, maxTestsPerBatch, depth, len(batches))...)
			continue
		}
		if currentCount > 0 && currentCount+count > maxTestsPerBatch {
			flush()
		}
		current = append(current, node)
		currentCount += count
	}
	flush()

	return batches
}

// chunkOversizedNode splits a single overflow leaf's tests into
// contiguous chunks no larger than maxTestsPerBatch, since node itself
// has no children to select a smaller unit from.
func chunkOversizedNode(node *testtree.Node, maxTestsPerBatch, depth, startIndex int) []*Batch {
	tests := testtree.AllTests(node)
	var batches []*Batch
	for len(tests) > 0 {
		n := maxTestsPerBatch
		if n > len(tests) {
			n = len(tests)
		}
		chunk := tests[:n]
		tests = tests[n:]

		label := fmt.Sprintf("batch-%d", startIndex+len(batches))
		if node.FullPath != "" {
			label = fmt.Sprintf("%s-part-%d", node.FullPath, len(batches))
		}
		batches = append(batches, &Batch{
			Label:          label,
			Tests:          chunk,
			FilterPrefixes: []string{node.FullPath},
			Depth:          depth,
		})
	}
	return batches
}

func buildBatch(nodes []*testtree.Node, depth, index int) *Batch {
	var tests []string
	prefixSeen := make(map[string]bool)
	var prefixes []string

	for _, n := range nodes {
		tests = append(tests, testtree.AllTests(n)...)
		if !prefixSeen[n.FullPath] {
			prefixSeen[n.FullPath] = true
			prefixes = append(prefixes, n.FullPath)
		}
	}

	label := fmt.Sprintf("batch-%d", index)
	if len(nodes) == 1 && nodes[0].FullPath != "" {
		label = nodes[0].FullPath
	}

	return &Batch{
		Label:          label,
		Tests:          tests,
		FilterPrefixes: prefixes,
		Depth:          depth,
	}
}
