package protocol

// Type is the wire discriminator carried by every message.
type Type string

const (
	TypeDiscover   Type = "discover"
	TypeRun        Type = "run"
	TypeCancel     Type = "cancel"
	TypeDiscovered Type = "discovered"
	TypeStarted    Type = "started"
	TypePassed     Type = "passed"
	TypeFailed     Type = "failed"
	TypeSkipped    Type = "skipped"
	TypeOutput     Type = "output"
	TypeCompleted  Type = "completed"
	TypeError      Type = "error"
)

// String returns the wire discriminator string.
func (t Type) String() string { return string(t) }

// Message is implemented by every protocol variant. Type identifies which
// variant a decoded message is without a type switch on the Go type itself,
// which lets callers branch on the wire name directly.
type Message interface {
	MessageType() Type
}

// DiscoverCmd asks the worker to discover tests in an assembly.
type DiscoverCmd struct {
	Assembly string
}

func (DiscoverCmd) MessageType() Type { return TypeDiscover }

// RunCmd asks the worker to run an assembly, optionally filtered to a test
// subset and under a per-test timeout.
type RunCmd struct {
	Assembly       string
	Tests          []string
	TimeoutSeconds int
}

func (RunCmd) MessageType() Type { return TypeRun }

// CancelCmd requests the worker stop whatever it is doing.
type CancelCmd struct{}

func (CancelCmd) MessageType() Type { return TypeCancel }

// DiscoveredTest describes one test found during discovery.
type DiscoveredTest struct {
	FullyQualifiedName string
	DisplayName        string
	SkipReason         string
}

// DiscoveredEvent reports the result of a discover command.
type DiscoveredEvent struct {
	Tests []DiscoveredTest
}

func (DiscoveredEvent) MessageType() Type { return TypeDiscovered }

// StartedEvent reports a test beginning execution.
type StartedEvent struct {
	FullyQualifiedName string
	DisplayName        string
}

func (StartedEvent) MessageType() Type { return TypeStarted }

// PassedEvent reports a test's successful completion.
type PassedEvent struct {
	FullyQualifiedName string
	DisplayName        string
	DurationMs         float64
}

func (PassedEvent) MessageType() Type { return TypePassed }

// FailedEvent reports a test's failure.
type FailedEvent struct {
	FullyQualifiedName string
	DisplayName        string
	DurationMs         float64
	ErrorMessage       string
	StackTrace         string
}

func (FailedEvent) MessageType() Type { return TypeFailed }

// SkippedEvent reports a test that was not executed.
type SkippedEvent struct {
	FullyQualifiedName string
	DisplayName        string
	Reason             string
}

func (SkippedEvent) MessageType() Type { return TypeSkipped }

// OutputEvent carries captured test output, forwarded mostly so the
// coordinator's idle guard has a timestamp to reset against.
type OutputEvent struct {
	FullyQualifiedName string
	Text               string
}

func (OutputEvent) MessageType() Type { return TypeOutput }

// CompletedEvent is the terminal event of a successful run.
type CompletedEvent struct {
	Passed          int
	Failed          int
	Skipped         int
	TotalDurationMs float64
}

func (CompletedEvent) MessageType() Type { return TypeCompleted }

// ErrorEvent is the terminal event when the worker could not complete the
// in-flight operation (no framework detected, discovery failed, crash, ...).
type ErrorEvent struct {
	Message string
	Details string
}

func (ErrorEvent) MessageType() Type { return TypeError }

// UnknownEvent preserves an unrecognised-but-well-formed message so callers
// can choose to ignore it without the stream aborting.
type UnknownEvent struct {
	Raw Type
}

func (u UnknownEvent) MessageType() Type { return u.Raw }
