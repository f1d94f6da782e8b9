package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jpequegn/testguard/internal/protocol"
)

// GoTestAdapter runs Go packages via `go test -json`. It is the reference
// Adapter shipped with testguard; assembly is a Go package path or import
// pattern (e.g. "./..." or "github.com/acme/widget/internal/store").
type GoTestAdapter struct {
	// GoBin overrides the "go" binary looked up on PATH, for testing.
	GoBin string
}

// NewGoTestAdapter creates a GoTestAdapter using the "go" binary on PATH.
func NewGoTestAdapter() *GoTestAdapter {
	return &GoTestAdapter{GoBin: "go"}
}

func (a *GoTestAdapter) goBin() string {
	if a.GoBin != "" {
		return a.GoBin
	}
	return "go"
}

// CanHandle accepts any Go import pattern: "./...", a package path, or a
// directory path.
func (a *GoTestAdapter) CanHandle(assembly string) bool {
	return strings.HasSuffix(assembly, "...") ||
		strings.HasPrefix(assembly, "./") ||
		strings.HasPrefix(assembly, "/") ||
		strings.Contains(assembly, "/")
}

// Discover runs `go test -list` against assembly and parses the plain
// test-name listing it prints, one name per line, terminated by an "ok"
// summary line that is not itself a test name.
func (a *GoTestAdapter) Discover(ctx context.Context, assembly string) ([]protocol.DiscoveredTest, error) {
	cmd := exec.CommandContext(ctx, a.goBin(), "test", "-list", ".*", assembly)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("engine: go test -list %s: %w: %s", assembly, err, stderr.String())
	}

	var tests []protocol.DiscoveredTest
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "ok ") || strings.HasPrefix(line, "FAIL") || strings.HasPrefix(line, "---") {
			continue
		}
		tests = append(tests, protocol.DiscoveredTest{
			FullyQualifiedName: line,
			DisplayName:        line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("engine: reading go test -list output: %w", err)
	}
	return tests, nil
}

// Run executes `go test -json`, optionally filtered to tests, and streams
// translated events.
func (a *GoTestAdapter) Run(ctx context.Context, assembly string, tests []string) (<-chan protocol.Message, error) {
	args := []string{"test", "-json"}
	if filter := buildRunFilter(tests); filter != "" {
		args = append(args, "-run", filter)
	}
	args = append(args, assembly)

	cmd := exec.CommandContext(ctx, a.goBin(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine: start go test: %w", err)
	}

	out := make(chan protocol.Message, 64)
	go func() {
		defer close(out)
		translateGoTestJSON(stdout, out)
		_ = cmd.Wait()
	}()
	return out, nil
}

// goTestEvent mirrors the JSON object `go test -json` emits per line, as
// documented by `go help test` / cmd/test2json.
type goTestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// translateGoTestJSON decodes a `go test -json` stream from r and writes
// the equivalent protocol messages to out, finishing with exactly one
// CompletedEvent. It is split out from Run so the translation logic can
// be exercised directly against a canned stream in tests.
func translateGoTestJSON(r io.Reader, out chan<- protocol.Message) {
	dec := json.NewDecoder(r)
	failureOutput := make(map[string]*strings.Builder)
	var passed, failed, skipped int
	var total time.Duration

	appendOutput := func(test, text string) {
		b, ok := failureOutput[test]
		if !ok {
			b = &strings.Builder{}
			failureOutput[test] = b
		}
		b.WriteString(text)
	}

	for {
		var ev goTestEvent
		if err := dec.Decode(&ev); err != nil {
			break
		}
		if ev.Test == "" {
			continue
		}
		switch ev.Action {
		case "run":
			out <- protocol.StartedEvent{FullyQualifiedName: ev.Test}
		case "output":
			appendOutput(ev.Test, ev.Output)
			out <- protocol.OutputEvent{FullyQualifiedName: ev.Test, Text: ev.Output}
		case "pass":
			d := time.Duration(ev.Elapsed * float64(time.Second))
			total += d
			passed++
			out <- protocol.PassedEvent{FullyQualifiedName: ev.Test, DurationMs: float64(d.Milliseconds())}
			delete(failureOutput, ev.Test)
		case "fail":
			d := time.Duration(ev.Elapsed * float64(time.Second))
			total += d
			failed++
			out <- protocol.FailedEvent{
				FullyQualifiedName: ev.Test,
				DurationMs:         float64(d.Milliseconds()),
				ErrorMessage:       strings.TrimSpace(builderString(failureOutput[ev.Test])),
			}
			delete(failureOutput, ev.Test)
		case "skip":
			skipped++
			out <- protocol.SkippedEvent{
				FullyQualifiedName: ev.Test,
				Reason:             strings.TrimSpace(builderString(failureOutput[ev.Test])),
			}
			delete(failureOutput, ev.Test)
		}
	}

	out <- protocol.CompletedEvent{
		Passed:          passed,
		Failed:          failed,
		Skipped:         skipped,
		TotalDurationMs: float64(total.Milliseconds()),
	}
}

func builderString(b *strings.Builder) string {
	if b == nil {
		return ""
	}
	return b.String()
}

// buildRunFilter builds a `go test -run` alternation over the top-level
// test name of each requested identifier. Subtests are addressed by
// their parent's top-level name: go test -run has no way to alternate
// across full "/"-qualified paths of differing depth in one invocation,
// so requesting a leaf subtest runs its whole parent test, and the events
// of every subtest of that parent are reported; they are not filtered
// back to the requested tests.
func buildRunFilter(tests []string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, t := range tests {
		top := t
		if idx := strings.Index(t, "/"); idx >= 0 {
			top = t[:idx]
		}
		if top == "" || seen[top] {
			continue
		}
		seen[top] = true
		parts = append(parts, "^"+regexp.QuoteMeta(top)+"$")
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "|")
}
