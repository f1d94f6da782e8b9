// Package aggregator merges per-batch outcomes into a single Run Result,
// applying the §4.G override rules: a later pass overrides an earlier
// failed or timed-out classification for the same identifier, a failure
// overrides a timeout, and duplicate classifications for one identifier
// collapse to one entry. Counts are always recomputed from the final
// identifier sets rather than summed from the inputs, so Merge is
// idempotent and order-independent.
package aggregator
