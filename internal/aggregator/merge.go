package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/jpequegn/testguard/internal/batchrun"
)

// classification ranks, used so a higher-ranked observation overrides a
// lower-ranked one for the same identifier: passed beats failed and
// timedOut; failed beats timedOut; skipped never conflicts with the
// others in practice but is ranked above timedOut so a definitive skip
// is not clobbered by a stale guard-fired reading of the same test from
// an earlier batch.
const (
	rankTimedOut = iota
	rankSkipped
	rankFailed
	rankPassed
)

type entry struct {
	display        string
	classification int
	durationMs     int64
	timestamp      time.Time
}

// Merge folds every batch outcome and the scheduler's isolated-hanging
// list into one RunResult. Merge is idempotent and order-independent: it
// only ever looks at the final identifier sets, never at call order.
func Merge(runID string, startedAt time.Time, duration time.Duration, outcomes []*batchrun.Outcome, isolatedHanging []string, failedBatches []string) *RunResult {
	entries := make(map[string]*entry)

	durationFor := func(o *batchrun.Outcome, id string) int64 {
		if ms, ok := o.Durations[strings.ToLower(id)]; ok {
			return ms
		}
		return o.Duration.Milliseconds()
	}

	upsert := func(id string, classification int, durationMs int64, ts time.Time) {
		key := strings.ToLower(id)
		if existing, ok := entries[key]; ok {
			if classification > existing.classification {
				existing.classification = classification
				existing.display = id
			}
			if durationMs > existing.durationMs {
				existing.durationMs = durationMs
			}
			if ts.Before(existing.timestamp) {
				existing.timestamp = ts
			}
			return
		}
		entries[key] = &entry{display: id, classification: classification, durationMs: durationMs, timestamp: ts}
	}

	for _, o := range outcomes {
		for _, id := range o.Passed {
			upsert(id, rankPassed, durationFor(o, id), o.StartedAt)
		}
		for _, id := range o.Failed {
			upsert(id, rankFailed, durationFor(o, id), o.StartedAt)
		}
		for _, id := range o.Skipped {
			upsert(id, rankSkipped, 0, o.StartedAt)
		}
		for _, id := range o.TimedOut {
			upsert(id, rankTimedOut, 0, o.StartedAt)
		}
	}

	isolated := dedupeCasefold(isolatedHanging)
	for _, id := range isolated {
		// An isolated identifier is reported exactly once, in
		// IsolatedHanging; drop any timedOut/failed/passed reading a
		// containing batch left behind for it.
		delete(entries, strings.ToLower(id))
	}

	result := &RunResult{
		RunID:           runID,
		StartedAt:       startedAt,
		Duration:        duration,
		IsolatedHanging: isolated,
		FailedBatches:   dedupeCasefold(failedBatches),
	}

	for _, e := range entries {
		switch e.classification {
		case rankPassed:
			result.Passed = append(result.Passed, e.display)
		case rankFailed:
			result.Failed = append(result.Failed, e.display)
		case rankSkipped:
			result.Skipped = append(result.Skipped, e.display)
		case rankTimedOut:
			result.TimedOut = append(result.TimedOut, e.display)
		}
	}

	sort.Strings(result.Passed)
	sort.Strings(result.Failed)
	sort.Strings(result.Skipped)
	sort.Strings(result.TimedOut)
	sort.Strings(result.IsolatedHanging)
	sort.Strings(result.FailedBatches)

	result.PassedCount = len(result.Passed)
	result.FailedCount = len(result.Failed)
	result.SkippedCount = len(result.Skipped)
	result.TimedOutCount = len(result.TimedOut)
	result.IsolatedHangingCount = len(result.IsolatedHanging)

	return result
}

func dedupeCasefold(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		key := strings.ToLower(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}
