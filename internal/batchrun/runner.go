package batchrun

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jpequegn/testguard/internal/planner"
	"github.com/jpequegn/testguard/internal/protocol"
	"github.com/jpequegn/testguard/internal/resultfiles"
	"github.com/jpequegn/testguard/internal/workerclient"
)

// Options configures how every batch in a run is executed.
type Options struct {
	WorkerBinaryPath      string
	WorkerArgs            []string
	WorkerEnv             []string
	Assembly              string
	PerTestTimeoutSeconds int
	ResultRoot            string
	GracePeriod           time.Duration
	Logger                *slog.Logger

	// MinWallClockGuard and MinIdleGuard override the §4.E guard floors
	// (120s and 90s respectively). Left at zero they default to those
	// floors; tests shrink them to keep hang-isolation scenarios fast.
	MinWallClockGuard time.Duration
	MinIdleGuard      time.Duration
}

// Runner executes batches one at a time against a fresh worker each,
// suitable for being called concurrently by the isolation scheduler — a
// Runner holds no batch-specific state between calls.
type Runner struct {
	opts Options
}

// New creates a Runner from opts, filling in the documented defaults.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PerTestTimeoutSeconds <= 0 {
		opts.PerTestTimeoutSeconds = 30
	}
	if opts.MinWallClockGuard <= 0 {
		opts.MinWallClockGuard = 120 * time.Second
	}
	if opts.MinIdleGuard <= 0 {
		opts.MinIdleGuard = 90 * time.Second
	}
	return &Runner{opts: opts}
}

// Run executes batch through one worker process and returns its
// classified Outcome. It never returns an error: every failure mode is
// folded into the Outcome per §4.E.
func (r *Runner) Run(ctx context.Context, batch *planner.Batch) *Outcome {
	start := time.Now()
	out := &Outcome{
		Label:     batch.Label,
		Attempted: len(batch.Tests),
		Filter:    BuildFilter(batch.FilterPrefixes),
		StartedAt: start,
		ExitCode:  -1,
	}
	defer func() { out.Duration = time.Since(start) }()

	resultDir := ""
	if r.opts.ResultRoot != "" {
		dir, err := resultfiles.NewResultDir(r.opts.ResultRoot, batch.Label)
		if err != nil {
			r.opts.Logger.Warn("batchrun: failed to create result dir", "batch", batch.Label, "error", err)
		} else {
			resultDir = dir
			defer resultfiles.Cleanup(resultDir)
		}
	}

	handle, err := workerclient.Spawn(ctx, workerclient.Options{
		BinaryPath:  r.opts.WorkerBinaryPath,
		Args:        r.opts.WorkerArgs,
		Env:         r.opts.WorkerEnv,
		ResultDir:   resultDir,
		GracePeriod: r.opts.GracePeriod,
		Logger:      r.opts.Logger,
	})
	if err != nil {
		out.Reason = "spawn failed: " + err.Error()
		return out
	}
	defer handle.Close()

	events, err := handle.Run(ctx, r.opts.Assembly, batch.Tests, r.opts.PerTestTimeoutSeconds)
	if err != nil {
		out.Reason = "run failed to start: " + err.Error()
		return out
	}

	passed := newIDSet()
	failed := newIDSet()
	skipped := newIDSet()
	timedOut := newIDSet()
	inFlight := newIDSet()

	wallClockGuard := guardDuration(r.opts.PerTestTimeoutSeconds, 2, r.opts.MinWallClockGuard)
	idleGuard := maxDuration(wallClockGuard/2, r.opts.MinIdleGuard)

	var wallTimer *time.Timer
	var wallTimerC <-chan time.Time
	idleTicker := time.NewTicker(idleCheckInterval(idleGuard))
	defer idleTicker.Stop()
	defer func() {
		if wallTimer != nil {
			wallTimer.Stop()
		}
	}()

	guardFired := false

loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if wallTimer == nil {
				wallTimer = time.NewTimer(wallClockGuard)
				wallTimerC = wallTimer.C
			}
			switch v := ev.(type) {
			case protocol.StartedEvent:
				out.HadResults = true
				inFlight.add(v.FullyQualifiedName)
			case protocol.PassedEvent:
				out.HadResults = true
				inFlight.remove(v.FullyQualifiedName)
				failed.remove(v.FullyQualifiedName)
				timedOut.remove(v.FullyQualifiedName)
				skipped.remove(v.FullyQualifiedName)
				passed.add(v.FullyQualifiedName)
				out.recordDuration(v.FullyQualifiedName, int64(v.DurationMs))
			case protocol.FailedEvent:
				out.HadResults = true
				inFlight.remove(v.FullyQualifiedName)
				passed.remove(v.FullyQualifiedName)
				skipped.remove(v.FullyQualifiedName)
				if looksLikeTimeout(v.ErrorMessage) {
					failed.remove(v.FullyQualifiedName)
					timedOut.add(v.FullyQualifiedName)
				} else {
					timedOut.remove(v.FullyQualifiedName)
					failed.add(v.FullyQualifiedName)
				}
				out.recordDuration(v.FullyQualifiedName, int64(v.DurationMs))
			case protocol.SkippedEvent:
				out.HadResults = true
				inFlight.remove(v.FullyQualifiedName)
				passed.remove(v.FullyQualifiedName)
				failed.remove(v.FullyQualifiedName)
				timedOut.remove(v.FullyQualifiedName)
				skipped.add(v.FullyQualifiedName)
			case protocol.OutputEvent:
				// liveness/diagnostics only; does not count as a result
			case protocol.CompletedEvent:
				out.ExitCode = 0
				break loop
			case protocol.ErrorEvent:
				out.Reason = v.Message
				break loop
			}
		case <-wallTimerC:
			guardFired = true
			handle.RequestCancel()
			break loop
		case <-idleTicker.C:
			if time.Since(handle.LastActivity()) >= idleGuard {
				guardFired = true
				handle.RequestCancel()
				break loop
			}
		case <-ctx.Done():
			handle.RequestCancel()
			break loop
		}
	}

	if guardFired {
		for _, id := range inFlight.slice() {
			timedOut.add(id)
		}
	}
	if out.ExitCode == -1 {
		_ = handle.Close()
		if code := handle.ExitCode(); code >= 0 {
			out.ExitCode = code
		}
	}

	hangArtefacts := resultfiles.HangArtefactsPresent(resultDir)
	out.Passed = passed.slice()
	out.Failed = failed.slice()
	out.Skipped = skipped.slice()
	out.TimedOut = timedOut.slice()
	out.Hung = guardFired || len(out.TimedOut) > 0 || hangArtefacts

	classify(out, guardFired)
	return out
}

// classify fills in Reason following the §4.E decision table for cases
// not already explained by an in-stream ErrorEvent.
func classify(out *Outcome, guardFired bool) {
	switch {
	case guardFired:
		out.Reason = "guard"
	case len(out.TimedOut) > 0:
		if out.Reason == "" {
			out.Reason = "timed-out"
		}
	case len(out.Failed) > 0:
		// failed outcome; no special reason needed
	case out.ExitCode == 0:
		// succeeded
	case out.Reason != "":
		// a worker-reported ErrorEvent already explains the failure
	case !out.HadResults:
		out.Reason = "no-results"
	default:
		out.Reason = "exit-mismatch"
	}
}

func guardDuration(perTestTimeoutSeconds int, multiplier int, floor time.Duration) time.Duration {
	candidate := time.Duration(perTestTimeoutSeconds*multiplier) * time.Second
	return maxDuration(candidate, floor)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// idleCheckInterval picks how often the idle guard polls LastActivity:
// a quarter of the guard itself, capped at 5s for production-sized guards
// and never below 10ms, so it shrinks for the small guard overrides tests
// use.
func idleCheckInterval(idleGuard time.Duration) time.Duration {
	interval := idleGuard / 4
	if interval > 5*time.Second {
		interval = 5 * time.Second
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

func looksLikeTimeout(errorMessage string) bool {
	lower := strings.ToLower(errorMessage)
	return strings.Contains(lower, "test timed out") || strings.Contains(lower, "timeout exceeded")
}
