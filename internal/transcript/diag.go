package transcript

import "fmt"

// DiagCode classifies a non-fatal condition observed while applying parts.
type DiagCode string

const (
	DiagUnknownPart        DiagCode = "unknown_part"
	DiagMalformedPart      DiagCode = "malformed_part"
	DiagRejectedTransition DiagCode = "rejected_transition"
	DiagOrphanToolResult   DiagCode = "orphan_tool_result"
)

// Diagnostic records a condition that was absorbed instead of raised.
// Nothing in this package returns errors or panics on bad input; callers
// that care subscribe through a sink.
type Diagnostic struct {
	Code      DiagCode
	MessageID string
	PartID    string
	Detail    string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s message=%s part=%s: %s", d.Code, d.MessageID, d.PartID, d.Detail)
}

// DiagnosticSink receives diagnostics as they occur. A nil sink discards.
type DiagnosticSink func(Diagnostic)
