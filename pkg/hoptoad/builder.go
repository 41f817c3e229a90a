// builder.go turns Go errors and recovered panic values into Reports.

package hoptoad

import (
	"errors"
	"fmt"
	"strconv"

	pkgerrors "github.com/pkg/errors"
)

// maxChainDepth bounds error chain traversal; cyclic Unwrap implementations
// exist in the wild.
const maxChainDepth = 64

// StackFramer is implemented by errors that carry their own backtrace in
// notice form. It takes precedence over any other stack source.
type StackFramer interface {
	StackFrames() []StackFrame
}

// stackTracer matches errors created by github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// chainLink is one error of an unwrapped chain.
type chainLink struct {
	err    error
	frames []StackFrame
}

// buildReport materializes a Report for err. pcs is the stack captured at
// the capture site and is used for the outermost link when the error
// carries no stack of its own.
func buildReport(err error, pcs []uintptr, meta Metadata, env map[string]string) Report {
	links := unwrapChain(err)

	chain := make([]CauseFrame, len(links))
	for i, link := range links {
		frames := link.frames
		if frames == nil && i == 0 {
			frames = framesFromPCs(pcs)
		}
		chain[i] = CauseFrame{Frames: frames}
		if i+1 < len(links) {
			chain[i].CausedBy = describe(links[i+1].err)
		}
	}

	return Report{
		ErrorType:   errorType(links[0].err),
		Message:     tagMessage(meta.AppVersion, err.Error()),
		CausalChain: chain,
		Environment: env,
	}
}

// buildPanicReport materializes a Report for a recovered panic value.
func buildPanicReport(value any, pcs []uintptr, meta Metadata, env map[string]string) Report {
	if err, ok := value.(error); ok {
		r := buildReport(err, nil, meta, env)
		if len(r.CausalChain) > 0 && r.CausalChain[0].Frames == nil {
			r.CausalChain[0].Frames = trimPanicFrames(framesFromPCs(pcs))
		}
		return r
	}
	return Report{
		ErrorType: fmt.Sprintf("%T", value),
		Message:   tagMessage(meta.AppVersion, formatRecovered(value)),
		CausalChain: []CauseFrame{
			{Frames: trimPanicFrames(framesFromPCs(pcs))},
		},
		Environment: env,
	}
}

// buildCrashReport materializes a Report from a parsed runtime crash dump.
func buildCrashReport(dump crashDump, meta Metadata, env map[string]string) Report {
	if dump.goroutine > 0 {
		if env == nil {
			env = make(map[string]string, 1)
		}
		env[TagGoroutineID] = strconv.FormatInt(dump.goroutine, 10)
	}
	return Report{
		ErrorType:   dump.kind,
		Message:     tagMessage(meta.AppVersion, dump.message),
		CausalChain: []CauseFrame{{Frames: dump.frames}},
		Environment: env,
	}
}

// unwrapChain follows err through errors.Unwrap, taking the first error of
// a joined error. Adjacent links with identical text are merged so wrappers
// that only attach a stack (pkg/errors withStack) do not show up as causes.
func unwrapChain(err error) []chainLink {
	var links []chainLink
	for depth := 0; err != nil && depth < maxChainDepth; depth++ {
		link := chainLink{err: err, frames: stackOf(err)}
		if n := len(links); n > 0 && links[n-1].err.Error() == err.Error() {
			if links[n-1].frames == nil {
				links[n-1].frames = link.frames
			}
		} else {
			links = append(links, link)
		}
		err = nextCause(err)
	}
	return links
}

func nextCause(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

// stackOf returns the frames an error carries itself, or nil.
func stackOf(err error) []StackFrame {
	switch e := err.(type) {
	case StackFramer:
		return e.StackFrames()
	case stackTracer:
		st := e.StackTrace()
		pcs := make([]uintptr, len(st))
		for i, f := range st {
			// pkg/errors stores return addresses; runtime.CallersFrames
			// expects the same.
			pcs[i] = uintptr(f)
		}
		return framesFromPCs(pcs)
	}
	return nil
}

func errorType(err error) string {
	return fmt.Sprintf("%T", err)
}

// describe renders the "caused by" summary for a chain link.
func describe(err error) string {
	return errorType(err) + ": " + err.Error()
}

func tagMessage(version, msg string) string {
	return "[" + version + "] " + msg
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
