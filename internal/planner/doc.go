// Package planner turns a testtree.Node into an ordered list of Batches,
// each respecting a maxTestsPerBatch ceiling.
//
// Combining sibling subtrees into one batch keeps the filter string bounded
// in length while reducing the number of child-process launches; the
// per-batch ceiling keeps any one hang localised to at most that many
// tests.
package planner
