package workerclient

import (
	"context"
	"testing"
	"time"

	"github.com/jpequegn/testguard/internal/protocol"
)

func spawnScript(t *testing.T, script string) *Handle {
	t.Helper()
	h, err := Spawn(context.Background(), Options{
		BinaryPath:  "sh",
		Args:        []string{"-c", script},
		GracePeriod: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHandle_DiscoverRoundTrip(t *testing.T) {
	h := spawnScript(t, `printf '%s\n' '{"type":"discovered","discovered":[{"fullyQualifiedName":"Pkg.TestA","displayName":"TestA"}]}'`)

	tests, err := h.Discover(context.Background(), "pkg.test")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(tests) != 1 || tests[0].FullyQualifiedName != "Pkg.TestA" {
		t.Errorf("unexpected tests: %+v", tests)
	}
}

func TestHandle_DiscoverToleratesNoisyStdout(t *testing.T) {
	h := spawnScript(t, `echo "module init: loading plugins..."; printf '%s\n' '{"type":"discovered","discovered":[{"fullyQualifiedName":"Pkg.TestA"}]}'`)

	tests, err := h.Discover(context.Background(), "pkg.test")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(tests) != 1 {
		t.Errorf("expected 1 test despite noisy stdout, got %d", len(tests))
	}
}

func TestHandle_DiscoverSynthesizesErrorOnPrematureExit(t *testing.T) {
	h := spawnScript(t, `exit 1`)

	_, err := h.Discover(context.Background(), "pkg.test")
	if err == nil {
		t.Fatal("expected error on premature exit, got nil")
	}
	var werr *WorkerError
	if !asWorkerError(err, &werr) {
		t.Fatalf("expected *WorkerError, got %T: %v", err, err)
	}
}

func TestHandle_RunRoundTrip(t *testing.T) {
	h := spawnScript(t, `
printf '%s\n' '{"type":"started","fullyQualifiedName":"Pkg.TestA"}'
printf '%s\n' '{"type":"passed","fullyQualifiedName":"Pkg.TestA","durationMs":12}'
printf '%s\n' '{"type":"completed","passed":1,"failed":0,"skipped":0,"totalDurationMs":12}'
`)

	events, err := h.Run(context.Background(), "pkg.test", []string{"Pkg.TestA"}, 30)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var saw []protocol.Type
	for msg := range events {
		saw = append(saw, msg.MessageType())
	}

	if len(saw) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(saw), saw)
	}
	if saw[len(saw)-1] != protocol.TypeCompleted {
		t.Errorf("expected stream to terminate with completed, got %v", saw[len(saw)-1])
	}
}

func TestHandle_RunSynthesizesErrorOnPrematureExit(t *testing.T) {
	h := spawnScript(t, `printf '%s\n' '{"type":"started","fullyQualifiedName":"Pkg.TestA"}'`)

	events, err := h.Run(context.Background(), "pkg.test", []string{"Pkg.TestA"}, 30)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var last protocol.Message
	for msg := range events {
		last = msg
	}
	if _, ok := last.(protocol.ErrorEvent); !ok {
		t.Errorf("expected synthesized ErrorEvent as terminal message, got %T", last)
	}
}

func TestHandle_RunCancelledByContext(t *testing.T) {
	h := spawnScript(t, `sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	events, err := h.Run(ctx, "pkg.test", []string{"Pkg.TestA"}, 30)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var last protocol.Message
	for msg := range events {
		last = msg
	}
	if _, ok := last.(protocol.ErrorEvent); !ok {
		t.Errorf("expected synthesized ErrorEvent on cancellation, got %T", last)
	}
}

func TestHandle_CloseForceKillsHungWorker(t *testing.T) {
	h := spawnScript(t, `sleep 5`)

	start := time.Now()
	if err := h.Close(); err != nil {
		// a kill-induced exit error is expected and fine here
		t.Logf("close returned: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Close took %v, expected force-kill well under the sleep duration", elapsed)
	}
}

func TestHandle_CloseIsIdempotent(t *testing.T) {
	h := spawnScript(t, `true`)

	if err := h.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestHandle_CloseDoesNotHangOnAbandonedNoisyWorker(t *testing.T) {
	h := spawnScript(t, `
printf '%s\n' '{"type":"started","fullyQualifiedName":"Pkg.TestA"}'
i=0
while [ $i -lt 500 ]; do
  printf '%s\n' '{"type":"output","fullyQualifiedName":"Pkg.TestA","line":"noise"}'
  i=$((i + 1))
done
sleep 5
`)

	events, err := h.Run(context.Background(), "pkg.test", []string{"Pkg.TestA"}, 30)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Consume a single event and then abandon the channel entirely, as
	// a batch guard firing and the executor moving on would: the worker
	// keeps writing hundreds more lines nobody ever reads.
	<-events

	start := time.Now()
	if err := h.Close(); err != nil {
		t.Logf("close returned: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Close took %v, expected the abandoned noisy worker to still be force-killed promptly", elapsed)
	}
}

func asWorkerError(err error, target **WorkerError) bool {
	we, ok := err.(*WorkerError)
	if !ok {
		return false
	}
	*target = we
	return true
}
