package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/jpequegn/testguard/internal/batchrun"
	"github.com/jpequegn/testguard/internal/planner"
	"github.com/jpequegn/testguard/internal/testtree"
)

// Options configures the isolation scheduler.
type Options struct {
	// Concurrency is the number of in-flight batches permitted (P).
	Concurrency int
	// MaxTestsPerBatch is the top-level planner ceiling; drill-down
	// levels compute their own reduced ceiling per hung subtree.
	MaxTestsPerBatch int
	Logger           *slog.Logger
}

// Result is what the scheduler hands to the outcome aggregator: every
// batch outcome observed, plus the identifiers isolated as hanging and
// the labels of batches that failed outright (worker crash, no results).
type Result struct {
	Outcomes        []*batchrun.Outcome
	IsolatedHanging []string
	FailedBatches   []string
}

// Scheduler orchestrates batches concurrently against a shared Runner.
type Scheduler struct {
	runner *batchrun.Runner
	opts   Options
}

// New creates a Scheduler bounded to opts.Concurrency in-flight batches.
func New(runner *batchrun.Runner, opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxTestsPerBatch <= 0 {
		opts.MaxTestsPerBatch = planner.DefaultMaxTestsPerBatch
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{runner: runner, opts: opts}
}

// Run plans tree's top-level batches and drives them — and every
// drill-down batch they spawn — to completion, returning the merged
// Result. Run blocks until the queue is empty and no batch is in
// flight; cancelling ctx stops new batches from being submitted and
// requests cancellation of every in-flight one, but Run still returns
// normally with whatever was collected.
//
// Per spec §4.F/§5, in-flight batches are bounded by an explicit
// counting semaphore rather than a fixed-worker pool: drill-down
// submits new batches from inside a goroutine that is itself occupying
// one of the P slots, and a pool whose own worker goroutines are the
// only readers of its task queue deadlocks the moment P goroutines are
// all blocked trying to enqueue further work (trivially with the
// default P=1, where the sole worker would have to wait on itself).
// conc.WaitGroup supplies panic-safe goroutine bookkeeping without
// imposing that bounded-worker-pool shape.
func (s *Scheduler) Run(ctx context.Context, tree *testtree.Node) *Result {
	result := &Result{}
	var mu sync.Mutex
	var wg conc.WaitGroup
	sem := make(chan struct{}, s.opts.Concurrency)

	var submit func(batch *planner.Batch)
	submit = func(batch *planner.Batch) {
		if ctx.Err() != nil {
			return
		}
		wg.Go(func() {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			outcome := s.runner.Run(ctx, batch)

			mu.Lock()
			result.Outcomes = append(result.Outcomes, outcome)
			if !outcome.Hung && !outcome.HadResults {
				result.FailedBatches = append(result.FailedBatches, batch.Label)
			}
			mu.Unlock()

			if !outcome.Hung {
				return
			}

			if len(batch.Tests) == 1 {
				mu.Lock()
				result.IsolatedHanging = append(result.IsolatedHanging, batch.Tests[0])
				mu.Unlock()
				return
			}

			s.drillDown(ctx, batch, outcome, submit, result, &mu)
		})
	}

	for _, batch := range planner.PlanAtDepth(tree, s.opts.MaxTestsPerBatch, 0) {
		submit(batch)
	}

	wg.Wait()
	return result
}

// drillDown implements §4.F's drill-down rule: U is the tests neither
// passed, failed nor skipped in outcome; a singleton U is isolated directly,
// otherwise U is rebuilt into its own subtree and replanned at half the
// ceiling, recursing until every hang is isolated.
func (s *Scheduler) drillDown(ctx context.Context, batch *planner.Batch, outcome *batchrun.Outcome, submit func(*planner.Batch), result *Result, mu *sync.Mutex) {
	classified := make(map[string]bool, len(outcome.Passed)+len(outcome.Failed))
	for _, id := range outcome.Passed {
		classified[strings.ToLower(id)] = true
	}
	for _, id := range outcome.Failed {
		classified[strings.ToLower(id)] = true
	}
	for _, id := range outcome.Skipped {
		classified[strings.ToLower(id)] = true
	}

	var unclassified []string
	for _, t := range batch.Tests {
		if !classified[strings.ToLower(t)] {
			unclassified = append(unclassified, t)
		}
	}
	if len(unclassified) == 0 {
		return
	}
	if len(unclassified) == 1 {
		mu.Lock()
		result.IsolatedHanging = append(result.IsolatedHanging, unclassified[0])
		mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		return
	}

	subtree := testtree.Build(unclassified)
	reducedLimit := (len(unclassified) + 1) / 2
	for _, sub := range planner.PlanAtDepth(subtree, reducedLimit, batch.Depth+1) {
		submit(sub)
	}
}
