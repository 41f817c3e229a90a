package hoptoad

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// testSink captures reports for verification in tests.
type testSink struct {
	mu       sync.Mutex
	reports  []Report
	flushes  int
	closed   bool
	writeErr error
	flushErr error
	panicMsg string
}

func (s *testSink) Write(ctx context.Context, report Report) error {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *testSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

func (s *testSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *testSink) getReports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Report, len(s.reports))
	copy(result, s.reports)
	return result
}

func TestCollector_Record_GeneratesID(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	err := collector.Record(context.Background(), Report{ErrorType: "test", Message: "[1.0] test"})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	reports := sink.getReports()
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}

	// Should be a UUID format (36 chars with hyphens)
	if len(reports[0].ID) != 36 {
		t.Errorf("ID length = %d, want 36 (UUID format)", len(reports[0].ID))
	}
}

func TestCollector_Record_SetsCapturedAt(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	before := time.Now()
	if err := collector.Record(context.Background(), Report{ErrorType: "test"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	after := time.Now()

	got := sink.getReports()[0].CapturedAt
	if got.Before(before) || got.After(after) {
		t.Errorf("CapturedAt = %v, want between %v and %v", got, before, after)
	}
}

func TestCollector_Record_PreservesExistingFields(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	existingTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	report := Report{ID: "fixed-id", CapturedAt: existingTime, ErrorType: "test"}

	if err := collector.Record(context.Background(), report); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	got := sink.getReports()[0]
	if got.ID != "fixed-id" {
		t.Errorf("ID was modified to %q", got.ID)
	}
	if !got.CapturedAt.Equal(existingTime) {
		t.Errorf("CapturedAt was modified from %v to %v", existingTime, got.CapturedAt)
	}
}

func TestCollector_Record_AppliesScrubbing(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(
		WithSink(sink),
		WithDefaultScrubbing(),
	)

	report := Report{
		ErrorType: "test",
		Message:   "[1.0] Error with api_key=secret123",
	}

	if err := collector.Record(context.Background(), report); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	got := sink.getReports()[0]
	if strings.Contains(got.Message, "secret123") {
		t.Errorf("Message still contains sensitive data: %q", got.Message)
	}
	if !strings.HasPrefix(got.Message, "[1.0] ") {
		t.Errorf("version tag lost: %q", got.Message)
	}
}

func TestCollector_Record_ReturnsSinkError(t *testing.T) {
	expectedErr := errors.New("sink error")
	sink := &testSink{writeErr: expectedErr}
	collector := NewCollector(WithSink(sink))

	err := collector.Record(context.Background(), Report{})
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestCollector_WithScrubberConfig(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(
		WithSink(sink),
		WithScrubber(ScrubberConfig{MaxMessageSize: 50, ScrubMessages: true}),
	)

	longMessage := "This is a very long message that exceeds the configured maximum size limit"
	if err := collector.Record(context.Background(), Report{Message: longMessage}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	if n := len(sink.getReports()[0].Message); n != 50 {
		t.Errorf("Message should be truncated to 50, length = %d", n)
	}
}

func TestCollector_FlushAndClose(t *testing.T) {
	sink := &testSink{}
	collector := NewCollector(WithSink(sink))

	if err := collector.Flush(context.Background()); err != nil {
		t.Errorf("Flush returned error: %v", err)
	}
	if err := collector.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if sink.flushes != 1 || !sink.closed {
		t.Errorf("flushes = %d, closed = %v", sink.flushes, sink.closed)
	}
}

func TestNewCollector_NilSink(t *testing.T) {
	// Should not panic with nil sink, should use a default
	collector := NewCollector()

	if err := collector.Record(context.Background(), Report{}); err != nil {
		t.Errorf("Record with default sink returned error: %v", err)
	}
}

func TestTeeSink_MirrorErrorsDoNotFailPrimary(t *testing.T) {
	primary := &testSink{}
	mirror := &testSink{writeErr: errors.New("mirror down"), flushErr: errors.New("mirror down")}
	tee := &teeSink{primary: primary, mirror: mirror}

	if err := tee.Write(context.Background(), Report{ID: "r1"}); err != nil {
		t.Errorf("Write returned mirror error: %v", err)
	}
	if err := tee.Flush(context.Background()); err != nil {
		t.Errorf("Flush returned mirror error: %v", err)
	}
	if len(primary.getReports()) != 1 {
		t.Error("primary did not receive the report")
	}
}

func TestTeeSink_PrimaryErrorIsReturned(t *testing.T) {
	primaryErr := errors.New("disk full")
	primary := &testSink{writeErr: primaryErr}
	mirror := &testSink{}
	tee := &teeSink{primary: primary, mirror: mirror}

	if err := tee.Write(context.Background(), Report{ID: "r1"}); !errors.Is(err, primaryErr) {
		t.Errorf("Write = %v, want %v", err, primaryErr)
	}
	if len(mirror.getReports()) != 1 {
		t.Error("mirror should still receive the report")
	}
	if err := tee.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if !primary.closed || !mirror.closed {
		t.Error("Close should close both sinks")
	}
}
