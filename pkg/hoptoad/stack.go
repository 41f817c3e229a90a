// stack.go converts Go call stacks and goroutine dumps into StackFrames.

package hoptoad

import (
	"bytes"
	"reflect"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

const maxStackDepth = 128

// captureStack records the program counters of the calling goroutine,
// starting skip frames above the caller of captureStack.
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// framesFromPCs resolves program counters into frames, innermost first.
func framesFromPCs(pcs []uintptr) []StackFrame {
	if len(pcs) == 0 {
		return nil
	}
	frames := make([]StackFrame, 0, len(pcs))
	iter := runtime.CallersFrames(pcs)
	for {
		fr, more := iter.Next()
		if fr.Function != "" || fr.File != "" {
			frame := StackFrame{Symbol: fr.Function, File: fr.File}
			if frame.Symbol == "" {
				frame.Symbol = Unknown
			}
			if fr.Line > 0 {
				frame.Line = Line(fr.Line)
			}
			frames = append(frames, frame)
		}
		if !more {
			break
		}
	}
	return frames
}

// trimPanicFrames drops the frames above the panicking function when pcs
// were captured inside a deferred call: the deferred function itself,
// runtime.gopanic and runtime helpers such as runtime.goPanicIndex.
func trimPanicFrames(frames []StackFrame) []StackFrame {
	for i, f := range frames {
		if f.Symbol != "runtime.gopanic" {
			continue
		}
		rest := frames[i+1:]
		for len(rest) > 0 && strings.HasPrefix(rest[0].Symbol, "runtime.") {
			rest = rest[1:]
		}
		return rest
	}
	return frames
}

// goroutineID returns the id of the calling goroutine, or 0 if it cannot be
// determined.
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		id, err := strconv.ParseInt(string(buf[:i]), 10, 64)
		if err == nil {
			return id
		}
	}
	return 0
}

// Regex patterns for goroutine dump parsing
var (
	// Match goroutine headers like "goroutine 1 [running]:" or
	// "goroutine 7 gp=0xc000007 m=0 mp=0x5b0 [running]:"
	goroutineHeaderPattern = regexp.MustCompile(`^goroutine (\d+)\b.*\[.*\]:$`)

	// Match file lines like "/app/main.go:42 +0x1d" or "/app/main.go:42"
	fileLinePattern = regexp.MustCompile(`^(.+):(\d+)(?: \+0x[0-9a-fA-F]+)?(?: .*)?$`)
)

// ownPackage prefixes the symbols of this package in a dump.
var ownPackage = reflect.TypeOf(repanicHandler{}).PkgPath() + "."

// recoveredSuffixes are appended by the runtime to the message of a panic
// that was recovered and raised again.
var recoveredSuffixes = []string{" [recovered, repanicked]", " [recovered]"}

// crashDump is the parsed form of the runtime's crash output.
type crashDump struct {
	kind      string // "panic" or "fatal error"
	message   string
	goroutine int64
	frames    []StackFrame
}

// parseCrashDump extracts the failure line and the frames of the first
// goroutine from output written by the Go runtime when a process dies.
// Returns false when data holds no recognizable failure.
func parseCrashDump(data []byte) (crashDump, bool) {
	var dump crashDump
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if msg, ok := strings.CutPrefix(line, "panic: "); ok {
			dump.kind = "panic"
			for _, suffix := range recoveredSuffixes {
				msg = strings.TrimSuffix(msg, suffix)
			}
			dump.message = msg
			break
		}
		if msg, ok := strings.CutPrefix(line, "fatal error: "); ok {
			dump.kind = "fatal error"
			dump.message = msg
			break
		}
	}
	if dump.kind == "" {
		return crashDump{}, false
	}

	// Advance to the first goroutine header; it is the one that crashed.
	for ; i < len(lines); i++ {
		if m := goroutineHeaderPattern.FindStringSubmatch(strings.TrimSpace(lines[i])); m != nil {
			dump.goroutine, _ = strconv.ParseInt(m[1], 10, 64)
			i++
			break
		}
	}

	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			break
		}
		if strings.HasPrefix(line, "\t") {
			continue
		}
		frame := StackFrame{Symbol: funcName(line)}
		if strings.HasPrefix(line, "created by ") {
			frame.Symbol = funcName(strings.TrimPrefix(line, "created by "))
		}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
			if m := fileLinePattern.FindStringSubmatch(strings.TrimSpace(lines[i+1])); m != nil {
				frame.File = m[1]
				if n, err := strconv.Atoi(m[2]); err == nil {
					frame.Line = Line(n)
				}
			}
			i++
		}
		if frame.Symbol != "" {
			dump.frames = append(dump.frames, frame)
		}
	}

	dump.frames = trimRepanicFrames(dump.frames)
	return dump, true
}

// trimRepanicFrames drops the frames of a panic re-raised by Guard, up to
// and including the original panic call, so the dump starts at the function
// that panicked.
func trimRepanicFrames(frames []StackFrame) []StackFrame {
	seenOwn := false
	for i, f := range frames {
		switch {
		case strings.HasPrefix(f.Symbol, ownPackage):
			seenOwn = true
		case seenOwn && f.Symbol == "panic":
			return frames[i+1:]
		}
	}
	return frames
}

// funcName strips the argument list and goroutine suffix from a dump line
// such as "main.(*T).run(0xc000010000, {0x4b, 0x2})" or
// "main.main in goroutine 1".
func funcName(line string) string {
	line = strings.TrimSpace(line)
	if idx := strings.Index(line, " in goroutine "); idx > 0 {
		line = line[:idx]
	}
	if strings.HasSuffix(line, ")") {
		if idx := strings.LastIndex(line, "("); idx > 0 {
			line = line[:idx]
		}
	}
	return line
}
