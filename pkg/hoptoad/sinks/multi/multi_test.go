package multi

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// mockSink is a test sink that tracks calls and can return errors.
type mockSink struct {
	mu       sync.Mutex
	reports  []hoptoad.Report
	writeErr error
	flushErr error
	closeErr error
	closed   bool
}

func (s *mockSink) Write(ctx context.Context, report hoptoad.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.reports = append(s.reports, report)
	return nil
}

func (s *mockSink) Flush(ctx context.Context) error {
	return s.flushErr
}

func (s *mockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *mockSink) getReports() []hoptoad.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]hoptoad.Report, len(s.reports))
	copy(result, s.reports)
	return result
}

func (s *mockSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestMultiSink_ImplementsSinkInterface(t *testing.T) {
	var _ hoptoad.Sink = NewMultiSink()
}

func TestMultiSink_Write_CallsAllSinks(t *testing.T) {
	sink1 := &mockSink{}
	sink2 := &mockSink{}
	sink3 := &mockSink{}
	multi := NewMultiSink(sink1, sink2, sink3)

	if err := multi.Write(context.Background(), hoptoad.Report{ID: "rep-123"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	for i, sink := range []*mockSink{sink1, sink2, sink3} {
		reports := sink.getReports()
		if len(reports) != 1 {
			t.Errorf("sink%d: expected 1 report, got %d", i+1, len(reports))
		}
		if len(reports) > 0 && reports[0].ID != "rep-123" {
			t.Errorf("sink%d: wrong report ID", i+1)
		}
	}
}

func TestMultiSink_Write_AggregatesErrors(t *testing.T) {
	err1 := errors.New("sink1 error")
	err2 := errors.New("sink2 error")
	sink3 := &mockSink{}
	multi := NewMultiSink(&mockSink{writeErr: err1}, &mockSink{writeErr: err2}, sink3)

	err := multi.Write(context.Background(), hoptoad.Report{})
	if err == nil {
		t.Fatal("Write should return error when sinks fail")
	}
	if !errors.Is(err, err1) || !errors.Is(err, err2) {
		t.Errorf("Error should contain both sink errors: %v", err)
	}
	if len(sink3.getReports()) != 1 {
		t.Error("sink3 should still receive the report after earlier sinks fail")
	}
}

func TestMultiSink_Flush_AggregatesErrors(t *testing.T) {
	err1 := errors.New("flush error 1")
	err2 := errors.New("flush error 2")
	multi := NewMultiSink(&mockSink{flushErr: err1}, &mockSink{flushErr: err2})

	err := multi.Flush(context.Background())
	if !errors.Is(err, err1) || !errors.Is(err, err2) {
		t.Errorf("Flush should aggregate all errors, got %v", err)
	}
}

func TestMultiSink_Close_CallsAllSinks(t *testing.T) {
	err1 := errors.New("close error 1")
	sink1 := &mockSink{closeErr: err1}
	sink2 := &mockSink{}
	multi := NewMultiSink(sink1, sink2)

	if err := multi.Close(); !errors.Is(err, err1) {
		t.Errorf("Close = %v, want %v", err, err1)
	}
	if !sink1.isClosed() || !sink2.isClosed() {
		t.Error("all sinks should be closed")
	}
}

func TestMultiSink_SkipsNilSinks(t *testing.T) {
	sink := &mockSink{}
	multi := NewMultiSink(nil, sink, nil)

	if err := multi.Write(context.Background(), hoptoad.Report{}); err != nil {
		t.Errorf("Write returned error: %v", err)
	}
	if len(sink.getReports()) != 1 {
		t.Error("non-nil sink should receive the report")
	}
}

func TestMultiSink_EmptySinks(t *testing.T) {
	multi := NewMultiSink()

	if err := multi.Write(context.Background(), hoptoad.Report{}); err != nil {
		t.Errorf("Write with no sinks should return nil, got: %v", err)
	}
	if err := multi.Flush(context.Background()); err != nil {
		t.Errorf("Flush with no sinks should return nil, got: %v", err)
	}
	if err := multi.Close(); err != nil {
		t.Errorf("Close with no sinks should return nil, got: %v", err)
	}
}
