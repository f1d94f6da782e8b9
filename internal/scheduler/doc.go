// Package scheduler is the isolation scheduler, the centrepiece of the
// core: it runs a tree's planned batches concurrently through
// internal/batchrun, merges outcomes behind a single writer, and — when
// a batch hangs — recursively subdivides its unclassified tests until
// every hanging test is isolated to a singleton batch.
//
// Each batch runs in a goroutine tracked by a sourcegraph/conc WaitGroup,
// and a counting semaphore caps how many batches run at once. A hung
// batch's drill-down submits its sub-batches from inside the goroutine
// that discovered the hang. The WaitGroup's Wait blocks until that
// dynamically growing set of goroutines drains, giving O(log N) expected
// recursion depth per isolated hang without a separately managed queue.
package scheduler
