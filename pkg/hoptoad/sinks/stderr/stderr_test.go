package stderr

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

func TestStderrSink_ImplementsSinkInterface(t *testing.T) {
	var _ hoptoad.Sink = NewStderrSink()
}

func captureStderr(fn func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	os.Stderr = old
	return buf.String()
}

func sampleReport() hoptoad.Report {
	return hoptoad.Report{
		ID:         "rep-123",
		CapturedAt: time.Date(2025, 1, 26, 15, 4, 5, 0, time.UTC),
		ErrorType:  "*net.OpError",
		Message:    "[1.0] dial tcp: connection refused",
		CausalChain: []hoptoad.CauseFrame{
			{
				Frames:   []hoptoad.StackFrame{{Symbol: "main.dial", File: "/app/main.go", Line: hoptoad.Line(42)}},
				CausedBy: "*os.SyscallError: connect: connection refused",
			},
			{
				Frames: []hoptoad.StackFrame{{Symbol: "syscall.connect"}},
			},
		},
		Environment: map[string]string{
			hoptoad.TagDevice:          "ThinkPad X1",
			hoptoad.TagPlatformVersion: "linux 6.1.0",
		},
		Request: hoptoad.Request{URL: "/orders/7", Component: "orders", Action: "show"},
	}
}

func TestStderrSink_Write_FormatsOutput(t *testing.T) {
	sink := NewStderrSink()

	output := captureStderr(func() {
		sink.Write(context.Background(), sampleReport())
	})

	for _, want := range []string{
		"[HOPTOAD] 2025-01-26T15:04:05Z *net.OpError",
		"in orders#show",
		"(/orders/7)",
		"Message: [1.0] dial tcp: connection refused",
		"Report: rep-123",
		"Fingerprint: " + hoptoad.Fingerprint(sampleReport()),
		"Device: ThinkPad X1 (linux 6.1.0)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q:\n%s", want, output)
		}
	}
}

func TestStderrSink_Write_IncludesContext(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStderrSink(WithWriter(&buf))

	contextID := uint64(12345)
	report := hoptoad.Report{ErrorType: "test", Message: "test message", ContextID: &contextID}
	if err := sink.Write(context.Background(), report); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if !strings.Contains(buf.String(), "Context: 12345") {
		t.Errorf("Output should contain context ID:\n%s", buf.String())
	}
}

func TestStderrSink_WithVerbose_IncludesBacktrace(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStderrSink(WithVerbose(), WithWriter(&buf))

	if err := sink.Write(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "main.dial (/app/main.go:42)") {
		t.Errorf("Verbose output should include frames:\n%s", output)
	}
	if !strings.Contains(output, "caused by: *os.SyscallError") {
		t.Errorf("Verbose output should include causes:\n%s", output)
	}
	if !strings.Contains(output, "syscall.connect (:?)") {
		t.Errorf("Unknown lines should render as '?':\n%s", output)
	}
}

func TestStderrSink_NonVerbose_ExcludesBacktrace(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStderrSink(WithWriter(&buf))

	sink.Write(context.Background(), sampleReport())

	if strings.Contains(buf.String(), "main.dial") {
		t.Errorf("Non-verbose output should not include the backtrace")
	}
}

func TestStderrSink_FlushAndClose_ReturnNil(t *testing.T) {
	sink := NewStderrSink()
	if err := sink.Flush(context.Background()); err != nil {
		t.Errorf("Flush returned error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
