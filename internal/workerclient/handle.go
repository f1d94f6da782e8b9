package workerclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpequegn/testguard/internal/protocol"
)

// DefaultGracePeriod is how long Close waits for the worker to exit
// on its own after its stdin is closed before force-terminating it.
const DefaultGracePeriod = 2 * time.Second

// Options configures a worker process spawn.
type Options struct {
	// BinaryPath is the worker executable to launch.
	BinaryPath string
	// Args are extra arguments passed to the worker binary.
	Args []string
	// Env holds additional "KEY=VALUE" entries appended to the worker's
	// inherited environment.
	Env []string
	// ResultDir is passed to the worker as TESTGUARD_RESULT_DIR, the
	// well-known configuration knob the underlying test engine uses to
	// write result files and hang artefacts (see internal/resultfiles).
	ResultDir string
	// GracePeriod overrides DefaultGracePeriod.
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Handle exclusively owns one worker process and its two stream endpoints.
// It must not be shared between goroutines issuing concurrent operations;
// one batch executor owns one Handle for the duration of one batch.
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	bw     *bufio.Writer
	logger *slog.Logger
	grace  time.Duration

	msgs     chan protocol.Message
	exited   chan struct{}
	exitErr  error
	activity atomic.Int64 // unix nanoseconds of last output line seen

	closeOnce sync.Once
	stdinOnce sync.Once
}

// Spawn launches the worker binary and starts its stdio pumps.
func Spawn(ctx context.Context, opts Options) (*Handle, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	cmd := exec.CommandContext(ctx, opts.BinaryPath, opts.Args...)
	if opts.ResultDir != "" || len(opts.Env) > 0 {
		cmd.Env = cmd.Environ()
		if opts.ResultDir != "" {
			cmd.Env = append(cmd.Env, "TESTGUARD_RESULT_DIR="+opts.ResultDir)
		}
		cmd.Env = append(cmd.Env, opts.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("workerclient: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("workerclient: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("workerclient: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("workerclient: start %s: %w", opts.BinaryPath, err)
	}

	h := &Handle{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		bw:     bufio.NewWriter(stdin),
		logger: opts.Logger,
		grace:  grace,
		msgs:   make(chan protocol.Message, 64),
		exited: make(chan struct{}),
	}
	h.touch()

	var pumpsDone sync.WaitGroup
	pumpsDone.Add(2)
	go h.pumpStdout(stdout, &pumpsDone)
	go h.pumpNoise(stderr, &pumpsDone)
	go h.waitProcess(&pumpsDone)

	return h, nil
}

func (h *Handle) touch() {
	h.activity.Store(time.Now().UnixNano())
}

// LastActivity returns the timestamp of the last line observed on either
// stdout or stderr, used by the batch executor's idle guard.
func (h *Handle) LastActivity() time.Time {
	return time.Unix(0, h.activity.Load())
}

func (h *Handle) pumpStdout(r io.Reader, done *sync.WaitGroup) {
	defer done.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		h.touch()
		line := scanner.Bytes()
		msg, ok := protocol.Decode(line)
		if !ok {
			h.logger.Debug("workerclient: ignoring unparsable line", "line", string(line))
			continue
		}
		// A non-blocking send: once the consumer (Discover/Run's
		// caller) has stopped reading — e.g. a batch guard fired and
		// the executor moved on to tearing down the handle — this
		// loop must still reach EOF on its own schedule rather than
		// block forever, or cmd.Wait (which this pump's WaitGroup
		// gates) never runs and Close hangs waiting on h.exited. A
		// runaway worker's trailing output is simply dropped past the
		// buffer.
		select {
		case h.msgs <- msg:
		default:
			h.logger.Warn("workerclient: dropping message, consumer not keeping up", "type", msg.MessageType())
		}
	}
}

// pumpNoise drains stderr for liveness tracking only; the worker protocol
// never carries structured messages on stderr.
func (h *Handle) pumpNoise(r io.Reader, done *sync.WaitGroup) {
	defer done.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		h.touch()
		h.logger.Debug("workerclient: stderr", "line", scanner.Text())
	}
}

// waitProcess calls cmd.Wait only after both stdio pumps have drained, per
// the documented exec.Cmd contract that Wait must not race a pipe reader.
func (h *Handle) waitProcess(pumpsDone *sync.WaitGroup) {
	pumpsDone.Wait()
	h.exitErr = h.cmd.Wait()
	close(h.exited)
}

// Send writes m as one line to the worker's stdin.
func (h *Handle) Send(m protocol.Message) error {
	return protocol.EncodeLine(h.bw, m)
}

// Discover sends a discover command and accumulates events until
// discovered or error, per the §4.B discovery contract.
func (h *Handle) Discover(ctx context.Context, assembly string) ([]protocol.DiscoveredTest, error) {
	if err := h.Send(protocol.DiscoverCmd{Assembly: assembly}); err != nil {
		// A worker that already exited is reported below as a WorkerError.
		h.logger.Debug("workerclient: send discover failed", "error", err)
	}
	for {
		select {
		case msg := <-h.msgs:
			switch v := msg.(type) {
			case protocol.DiscoveredEvent:
				return v.Tests, nil
			case protocol.ErrorEvent:
				return nil, &WorkerError{Message: v.Message, Details: v.Details}
			}
			// other message types are ignored during discovery
		case <-h.exited:
			if len(h.msgs) > 0 {
				continue // output queued before the exit is delivered first
			}
			return nil, &WorkerError{Message: "worker exited before discovery completed", Details: exitErrString(h.exitErr)}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Run sends a run command and returns a channel of events terminated by a
// CompletedEvent or ErrorEvent (synthesized if the worker dies mid-stream).
// The channel is closed after the terminal event is delivered.
func (h *Handle) Run(ctx context.Context, assembly string, tests []string, timeoutSeconds int) (<-chan protocol.Message, error) {
	if err := h.Send(protocol.RunCmd{Assembly: assembly, Tests: tests, TimeoutSeconds: timeoutSeconds}); err != nil {
		// A worker that already exited still has its queued output relayed,
		// followed by the synthesized ErrorEvent below.
		h.logger.Debug("workerclient: send run failed", "error", err)
	}

	out := make(chan protocol.Message, 64)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-h.msgs:
				// A guard firing upstream (batchrun's idle/wall-clock
				// checks) can make the caller stop reading out entirely;
				// h.exited eventually closes once Close force-kills the
				// worker, so select on it here too rather than block
				// forever on a send nobody will ever accept.
				select {
				case out <- msg:
				default:
					select {
					case out <- msg:
					case <-h.exited:
						return
					case <-ctx.Done():
						return
					}
				}
				switch msg.(type) {
				case protocol.CompletedEvent, protocol.ErrorEvent:
					return
				}
			case <-h.exited:
				if len(h.msgs) > 0 {
					continue // relay output queued before the exit first
				}
				select {
				case out <- protocol.ErrorEvent{
					Message: "worker exited before run completed",
					Details: exitErrString(h.exitErr),
				}:
				default:
				}
				return
			case <-ctx.Done():
				select {
				case out <- protocol.ErrorEvent{Message: "run cancelled", Details: ctx.Err().Error()}:
				default:
				}
				return
			}
		}
	}()
	return out, nil
}

// ExitCode returns the worker's process exit code, or -1 if the process
// has not yet exited or its exit state is unavailable.
func (h *Handle) ExitCode() int {
	select {
	case <-h.exited:
	default:
		return -1
	}
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// RequestCancel asks the worker to stop: it sends a cancel message
// best-effort and closes stdin, which is itself sufficient to trigger the
// worker's parent-death liveness check.
func (h *Handle) RequestCancel() {
	_ = h.Send(protocol.CancelCmd{})
	h.closeStdin()
}

func (h *Handle) closeStdin() {
	h.stdinOnce.Do(func() {
		_ = h.stdin.Close()
	})
}

// Close performs the scoped release contract: stdin is closed, the
// terminal exit is awaited up to the grace period, and the process is
// force-terminated if it is still alive. Idempotent.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closeStdin()
		select {
		case <-h.exited:
		case <-time.After(h.grace):
			if killErr := h.cmd.Process.Kill(); killErr != nil {
				h.logger.Warn("workerclient: force-kill failed", "error", killErr)
			}
			// A grandchild that inherited the worker's stdout/stderr can
			// hold the pipes open past the kill; closing the parent ends
			// lets both pumps finish so h.exited closes.
			_ = h.stdout.Close()
			_ = h.stderr.Close()
			<-h.exited
		}
		err = h.exitErr
	})
	return err
}

// WorkerError wraps an ErrorEvent or a premature exit as a Go error.
type WorkerError struct {
	Message string
	Details string
}

func (e *WorkerError) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func exitErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
