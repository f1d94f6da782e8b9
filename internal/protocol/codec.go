package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// wireMessage is the flattened on-the-wire shape: every variant-specific
// field lives on one struct with lower-camel JSON tags, and null/zero
// fields are elided via omitempty. This mirrors how the worker protocol
// is specified: one self-describing object per line, not a nested
// discriminated envelope.
type wireMessage struct {
	Type Type `json:"type"`

	Assembly       string   `json:"assembly,omitempty"`
	Tests          []string `json:"tests,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitempty"`

	Discovered []wireDiscoveredTest `json:"discovered,omitempty"`

	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
	DisplayName        string `json:"displayName,omitempty"`
	SkipReason         string `json:"skipReason,omitempty"`

	DurationMs   float64 `json:"durationMs,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	StackTrace   string  `json:"stackTrace,omitempty"`
	Reason       string  `json:"reason,omitempty"`

	Text string `json:"text,omitempty"`

	Passed          int     `json:"passed,omitempty"`
	Failed          int     `json:"failed,omitempty"`
	Skipped         int     `json:"skipped,omitempty"`
	TotalDurationMs float64 `json:"totalDurationMs,omitempty"`

	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

type wireDiscoveredTest struct {
	FullyQualifiedName string `json:"fullyQualifiedName"`
	DisplayName        string `json:"displayName,omitempty"`
	SkipReason         string `json:"skipReason,omitempty"`
}

// Encode writes m as a single line (no trailing newline) to w.
func Encode(w io.Writer, m Message) error {
	wire, err := toWire(m)
	if err != nil {
		return err
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("protocol: encode %s: %w", m.MessageType(), err)
	}
	_, err = w.Write(data)
	return err
}

// EncodeLine writes m followed by a newline and flushes bw.
func EncodeLine(bw *bufio.Writer, m Message) error {
	if err := Encode(bw, m); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}

func toWire(m Message) (wireMessage, error) {
	wire := wireMessage{Type: m.MessageType()}
	switch v := m.(type) {
	case DiscoverCmd:
		wire.Assembly = v.Assembly
	case RunCmd:
		wire.Assembly = v.Assembly
		wire.Tests = v.Tests
		wire.TimeoutSeconds = v.TimeoutSeconds
	case CancelCmd:
		// no fields
	case DiscoveredEvent:
		wire.Discovered = make([]wireDiscoveredTest, len(v.Tests))
		for i, t := range v.Tests {
			wire.Discovered[i] = wireDiscoveredTest{
				FullyQualifiedName: t.FullyQualifiedName,
				DisplayName:        t.DisplayName,
				SkipReason:         t.SkipReason,
			}
		}
	case StartedEvent:
		wire.FullyQualifiedName = v.FullyQualifiedName
		wire.DisplayName = v.DisplayName
	case PassedEvent:
		wire.FullyQualifiedName = v.FullyQualifiedName
		wire.DisplayName = v.DisplayName
		wire.DurationMs = v.DurationMs
	case FailedEvent:
		wire.FullyQualifiedName = v.FullyQualifiedName
		wire.DisplayName = v.DisplayName
		wire.DurationMs = v.DurationMs
		wire.ErrorMessage = v.ErrorMessage
		wire.StackTrace = v.StackTrace
	case SkippedEvent:
		wire.FullyQualifiedName = v.FullyQualifiedName
		wire.DisplayName = v.DisplayName
		wire.Reason = v.Reason
	case OutputEvent:
		wire.FullyQualifiedName = v.FullyQualifiedName
		wire.Text = v.Text
	case CompletedEvent:
		wire.Passed = v.Passed
		wire.Failed = v.Failed
		wire.Skipped = v.Skipped
		wire.TotalDurationMs = v.TotalDurationMs
	case ErrorEvent:
		wire.Message = v.Message
		wire.Details = v.Details
	default:
		return wireMessage{}, fmt.Errorf("protocol: unencodable message type %T", m)
	}
	return wire, nil
}

// Decode parses one line into a Message. It returns ok=false only when line
// is not well-formed JSON or carries no type field — callers must skip the
// line and keep reading rather than abort the stream. A well-formed object
// with an unrecognised type decodes to an UnknownEvent instead of failing,
// so new event types never break an older coordinator.
func Decode(line []byte) (msg Message, ok bool) {
	var wire wireMessage
	if err := json.Unmarshal(line, &wire); err != nil {
		return nil, false
	}
	if wire.Type == "" {
		return nil, false
	}

	switch wire.Type {
	case TypeDiscover:
		return DiscoverCmd{Assembly: wire.Assembly}, true
	case TypeRun:
		return RunCmd{Assembly: wire.Assembly, Tests: wire.Tests, TimeoutSeconds: wire.TimeoutSeconds}, true
	case TypeCancel:
		return CancelCmd{}, true
	case TypeDiscovered:
		tests := make([]DiscoveredTest, len(wire.Discovered))
		for i, t := range wire.Discovered {
			tests[i] = DiscoveredTest{
				FullyQualifiedName: t.FullyQualifiedName,
				DisplayName:        t.DisplayName,
				SkipReason:         t.SkipReason,
			}
		}
		return DiscoveredEvent{Tests: tests}, true
	case TypeStarted:
		return StartedEvent{FullyQualifiedName: wire.FullyQualifiedName, DisplayName: wire.DisplayName}, true
	case TypePassed:
		return PassedEvent{
			FullyQualifiedName: wire.FullyQualifiedName,
			DisplayName:        wire.DisplayName,
			DurationMs:         wire.DurationMs,
		}, true
	case TypeFailed:
		return FailedEvent{
			FullyQualifiedName: wire.FullyQualifiedName,
			DisplayName:        wire.DisplayName,
			DurationMs:         wire.DurationMs,
			ErrorMessage:       wire.ErrorMessage,
			StackTrace:         wire.StackTrace,
		}, true
	case TypeSkipped:
		return SkippedEvent{FullyQualifiedName: wire.FullyQualifiedName, DisplayName: wire.DisplayName, Reason: wire.Reason}, true
	case TypeOutput:
		return OutputEvent{FullyQualifiedName: wire.FullyQualifiedName, Text: wire.Text}, true
	case TypeCompleted:
		return CompletedEvent{
			Passed:          wire.Passed,
			Failed:          wire.Failed,
			Skipped:         wire.Skipped,
			TotalDurationMs: wire.TotalDurationMs,
		}, true
	case TypeError:
		return ErrorEvent{Message: wire.Message, Details: wire.Details}, true
	default:
		return UnknownEvent{Raw: wire.Type}, true
	}
}
