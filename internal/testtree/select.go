package testtree

// MaximalUnderLimit returns the set of nodes the batch planner should treat
// as packable units: starting at the root (whose parent is always treated
// as "over the limit", so a tree that fits in one batch selects the root
// outright), it descends and selects a node once its own total is at or
// under limit and its parent's was not.
//
// A leaf node (no children) whose total still exceeds limit — only
// possible when a single method's parametric cases alone outnumber the
// limit — is selected anyway: there is nothing smaller to subdivide the
// tree into. The planner is responsible for further chunking such a
// node's own tests so no emitted batch exceeds limit.
func MaximalUnderLimit(root *Node, limit int) []*Node {
	var selected []*Node
	var walk func(node *Node, parentOverLimit bool)
	walk = func(node *Node, parentOverLimit bool) {
		if node.total <= limit && parentOverLimit {
			selected = append(selected, node)
			return
		}
		if len(node.Children) == 0 {
			selected = append(selected, node)
			return
		}
		overLimit := node.total > limit
		for _, child := range OrderedChildren(node) {
			walk(child, overLimit)
		}
	}
	walk(root, true)
	return selected
}
