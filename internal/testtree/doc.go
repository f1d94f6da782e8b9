// Package testtree builds the hierarchical prefix tree the batch planner
// packs into batches.
//
// Identifiers are split on "." for namespace/class segments and, within the
// final segment, on "_" so that naming conventions like
// Method_WhenX_ThenY produce additional nesting. Parenthesised parametric
// suffixes are stripped for placement but kept in the raw identifier
// attached to the node, so reporting and filtering still see the original
// name.
//
// A tree is built once per scheduling phase and never mutated afterward;
// recursive drill-down builds a brand new tree from the surviving suspect
// set rather than editing the original.
package testtree
