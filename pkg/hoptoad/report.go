// report.go defines the canonical crash report data structure for hoptoad.

package hoptoad

import (
	"maps"
	"time"
)

// Environment tag keys written to the cgi-data section of every notice.
const (
	TagDevice          = "Device"
	TagPlatformVersion = "Platform Version"
	TagAppVersion      = "App Version"

	// TagGoroutineID holds the id of the goroutine that panicked or
	// crashed, when known.
	TagGoroutineID = "Goroutine ID"
)

// StackFrame is one call frame of a backtrace.
type StackFrame struct {
	// Symbol is the fully qualified function name, e.g. "main.(*Server).Serve".
	Symbol string

	// File is the source file path. Empty when the file is unknown.
	File string

	// Line is the source line number.
	// Uses pointer to distinguish "unknown" from line zero.
	Line *int
}

// CauseFrame holds the frames of one link of a causal chain.
type CauseFrame struct {
	// Frames are ordered innermost call first.
	Frames []StackFrame

	// CausedBy describes the next link ("<type>: <message>").
	// Empty on the last link of the chain.
	CausedBy string
}

// Request carries request-scoped context for a report. All fields are empty
// for failures captured outside of a request.
type Request struct {
	URL       string
	Component string
	Action    string
}

// Report is one captured failure.
// A Report is fully built before any I/O happens and is treated as immutable
// afterwards; pass it by value and use Clone before changing nested data.
type Report struct {
	// Identity fields

	// ID is a unique identifier for this report (UUID). Not part of the notice.
	ID string

	// CapturedAt is when the failure was captured. Not part of the notice.
	CapturedAt time.Time

	// Failure details

	// ErrorType is the concrete failure classification (the Go type name).
	ErrorType string

	// Message is the human-readable summary tagged with the app version,
	// e.g. "[1.4.0] connection reset".
	Message string

	// CausalChain starts with the reported failure and follows its causes.
	CausalChain []CauseFrame

	// Context

	// Environment holds free-form tags. TagDevice, TagPlatformVersion and
	// TagAppVersion are always written to the notice.
	Environment map[string]string

	// Request is the optional request context.
	Request Request

	// ContextID optionally links the report to a cxdb context.
	// Uses pointer to distinguish "not set" from "zero value".
	ContextID *uint64
}

// Frames returns every frame of the causal chain in notice order.
func (r Report) Frames() []StackFrame {
	var frames []StackFrame
	for _, cause := range r.CausalChain {
		frames = append(frames, cause.Frames...)
	}
	return frames
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	out := r
	out.Environment = maps.Clone(r.Environment)
	if r.CausalChain != nil {
		out.CausalChain = make([]CauseFrame, len(r.CausalChain))
		for i, cause := range r.CausalChain {
			out.CausalChain[i] = CauseFrame{
				Frames:   append([]StackFrame(nil), cause.Frames...),
				CausedBy: cause.CausedBy,
			}
		}
	}
	if r.ContextID != nil {
		id := *r.ContextID
		out.ContextID = &id
	}
	return out
}

// Line returns a pointer to n, for building StackFrame values.
func Line(n int) *int {
	return &n
}
