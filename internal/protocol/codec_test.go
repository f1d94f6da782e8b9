package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.ContainsRune(buf.Bytes(), '\n') {
		t.Fatalf("encoded line must not contain embedded newline: %q", buf.String())
	}
	decoded, ok := Decode(buf.Bytes())
	if !ok {
		t.Fatalf("decode failed for %#v (wire: %s)", m, buf.String())
	}
	return decoded
}

func TestCodec_RoundTrip(t *testing.T) {
	cases := []Message{
		DiscoverCmd{Assembly: "MyTests.dll"},
		RunCmd{Assembly: "MyTests.dll", Tests: []string{"A.B.C"}, TimeoutSeconds: 30},
		CancelCmd{},
		DiscoveredEvent{Tests: []DiscoveredTest{
			{FullyQualifiedName: "A.B.C", DisplayName: "C"},
			{FullyQualifiedName: "A.B.D", DisplayName: "D", SkipReason: "flaky"},
		}},
		StartedEvent{FullyQualifiedName: "A.B.C", DisplayName: "C"},
		PassedEvent{FullyQualifiedName: "A.B.C", DisplayName: "C", DurationMs: 12.5},
		FailedEvent{FullyQualifiedName: "A.B.C", DisplayName: "C", DurationMs: 1, ErrorMessage: "boom", StackTrace: "at X"},
		SkippedEvent{FullyQualifiedName: "A.B.C", DisplayName: "C", Reason: "ignored"},
		OutputEvent{FullyQualifiedName: "A.B.C", Text: "hello"},
		CompletedEvent{Passed: 3, Failed: 1, Skipped: 0, TotalDurationMs: 42},
		ErrorEvent{Message: "NoFrameworkDetected", Details: "no adapter claimed MyTests.dll"},
	}

	for _, m := range cases {
		got := roundTrip(t, m)
		if !reflect.DeepEqual(got, m) {
			t.Errorf("round trip mismatch: got %#v, want %#v", got, m)
		}
	}
}

func TestDecode_MalformedLineDoesNotAbortStream(t *testing.T) {
	lines := [][]byte{
		[]byte("HELLO STDOUT"),
		[]byte("{not json"),
		[]byte(""),
		[]byte(`{"type":"passed","fullyQualifiedName":"A.B.C","durationMs":5}`),
	}

	var successes int
	for _, line := range lines {
		if msg, ok := Decode(line); ok {
			successes++
			if msg.MessageType() != TypePassed {
				t.Errorf("expected only the valid line to decode, got %v", msg)
			}
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 successful decode among noisy lines, got %d", successes)
	}
}

func TestDecode_UnknownTypeDoesNotFail(t *testing.T) {
	msg, ok := Decode([]byte(`{"type":"heartbeat","message":"still alive"}`))
	if !ok {
		t.Fatal("expected unknown-type message to decode successfully")
	}
	unknown, isUnknown := msg.(UnknownEvent)
	if !isUnknown {
		t.Fatalf("expected UnknownEvent, got %T", msg)
	}
	if unknown.Raw != "heartbeat" {
		t.Errorf("expected raw type to be preserved, got %q", unknown.Raw)
	}
}

func TestEncode_NullFieldsElided(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, StartedEvent{FullyQualifiedName: "A.B.C"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte("displayName")) {
		t.Errorf("expected empty displayName to be elided, got %s", buf.String())
	}
}
