package batchrun

import (
	"context"
	"testing"
	"time"

	"github.com/jpequegn/testguard/internal/planner"
)

func newTestRunner(t *testing.T, script string, opts Options) *Runner {
	t.Helper()
	opts.WorkerBinaryPath = "sh"
	opts.WorkerArgs = []string{"-c", script}
	opts.GracePeriod = 100 * time.Millisecond
	return New(opts)
}

func TestRunner_AllPass(t *testing.T) {
	script := `
printf '%s\n' '{"type":"started","fullyQualifiedName":"A.B.T1"}'
printf '%s\n' '{"type":"passed","fullyQualifiedName":"A.B.T1","durationMs":5}'
printf '%s\n' '{"type":"started","fullyQualifiedName":"A.B.T2"}'
printf '%s\n' '{"type":"passed","fullyQualifiedName":"A.B.T2","durationMs":5}'
printf '%s\n' '{"type":"completed","passed":2,"failed":0,"skipped":0,"totalDurationMs":10}'
`
	r := newTestRunner(t, script, Options{})
	batch := &planner.Batch{Label: "A.B", Tests: []string{"A.B.T1", "A.B.T2"}, FilterPrefixes: []string{"A.B"}}

	out := r.Run(context.Background(), batch)

	if !out.Succeeded() {
		t.Fatalf("expected success, got %+v", out)
	}
	if len(out.Passed) != 2 {
		t.Errorf("expected 2 passed, got %v", out.Passed)
	}
}

func TestRunner_FailedTestClassifiesFailed(t *testing.T) {
	script := `
printf '%s\n' '{"type":"started","fullyQualifiedName":"A.T1"}'
printf '%s\n' '{"type":"failed","fullyQualifiedName":"A.T1","durationMs":5,"errorMessage":"assertion failed"}'
printf '%s\n' '{"type":"completed","passed":0,"failed":1,"skipped":0,"totalDurationMs":5}'
`
	r := newTestRunner(t, script, Options{})
	batch := &planner.Batch{Label: "A", Tests: []string{"A.T1"}, FilterPrefixes: []string{"A"}}

	out := r.Run(context.Background(), batch)

	if out.Succeeded() {
		t.Fatal("expected failure, got success")
	}
	if out.Hung {
		t.Error("plain assertion failure must not be classified as hung")
	}
	if len(out.Failed) != 1 || out.Failed[0] != "A.T1" {
		t.Errorf("expected A.T1 in failed, got %v", out.Failed)
	}
}

func TestRunner_IdleGuardFiresOnHang(t *testing.T) {
	script := `
printf '%s\n' '{"type":"started","fullyQualifiedName":"A.Hang"}'
sleep 5
`
	r := newTestRunner(t, script, Options{
		PerTestTimeoutSeconds: 1,
		MinWallClockGuard:     1 * time.Second,
		MinIdleGuard:          300 * time.Millisecond,
	})
	batch := &planner.Batch{Label: "A", Tests: []string{"A.Hang"}, FilterPrefixes: []string{"A"}}

	start := time.Now()
	out := r.Run(context.Background(), batch)
	elapsed := time.Since(start)

	if !out.Hung {
		t.Fatalf("expected hung outcome, got %+v", out)
	}
	if out.Reason != "guard" {
		t.Errorf("expected reason=guard, got %q", out.Reason)
	}
	if len(out.TimedOut) != 1 || out.TimedOut[0] != "A.Hang" {
		t.Errorf("expected A.Hang in timedOut, got %v", out.TimedOut)
	}
	if elapsed > 4*time.Second {
		t.Errorf("guard took too long to fire: %v", elapsed)
	}
}

func TestRunner_ContradictoryEventsStayDisjoint(t *testing.T) {
	script := `
printf '%s\n' '{"type":"started","fullyQualifiedName":"A.T1"}'
printf '%s\n' '{"type":"passed","fullyQualifiedName":"A.T1","durationMs":5}'
printf '%s\n' '{"type":"failed","fullyQualifiedName":"A.T1","durationMs":5,"errorMessage":"flaked after passing"}'
printf '%s\n' '{"type":"completed","passed":0,"failed":1,"skipped":0,"totalDurationMs":10}'
`
	r := newTestRunner(t, script, Options{})
	batch := &planner.Batch{Label: "A", Tests: []string{"A.T1"}, FilterPrefixes: []string{"A"}}

	out := r.Run(context.Background(), batch)

	if len(out.Passed) != 0 {
		t.Errorf("a later failed event must retract the earlier passed classification, got passed=%v", out.Passed)
	}
	if len(out.Failed) != 1 || out.Failed[0] != "A.T1" {
		t.Errorf("expected A.T1 in failed, got %v", out.Failed)
	}
}

func TestRunner_NoResultsClassifiedFailed(t *testing.T) {
	r := newTestRunner(t, `exit 1`, Options{})
	batch := &planner.Batch{Label: "A", Tests: []string{"A.T1"}, FilterPrefixes: []string{"A"}}

	out := r.Run(context.Background(), batch)

	if out.Succeeded() {
		t.Fatal("expected failure for a worker producing no results")
	}
	if out.Hung {
		t.Error("a clean early exit is not a hang")
	}
	if out.Reason == "" {
		t.Error("expected a reason to be set")
	}
}
