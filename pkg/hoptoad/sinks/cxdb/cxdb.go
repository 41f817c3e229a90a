// Package cxdb provides a sink that mirrors reports into cxdb as
// SystemMessage items.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
)

// CXDBClient is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// CXDBSinkOption configures the CXDB sink.
type CXDBSinkOption func(*cxdbSinkConfig)

type cxdbSinkConfig struct {
	orphanLabels []string
	clientTag    string
}

// WithOrphanLabels sets labels for contexts created for reports that carry
// no context ID.
func WithOrphanLabels(labels []string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.orphanLabels = labels
	}
}

// WithClientTag sets the client tag for orphan contexts.
func WithClientTag(tag string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.clientTag = tag
	}
}

type cxdbSink struct {
	client       CXDBClient
	orphanLabels []string
	clientTag    string
}

// NewCXDBSink creates a sink that writes to cxdb.
func NewCXDBSink(client CXDBClient, opts ...CXDBSinkOption) hoptoad.Sink {
	cfg := &cxdbSinkConfig{
		orphanLabels: []string{"crash", "unlinked"},
		clientTag:    "hoptoad",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &cxdbSink{
		client:       client,
		orphanLabels: cfg.orphanLabels,
		clientTag:    cfg.clientTag,
	}
}

// Write appends the report to its context, or to a new orphan context when
// the report has no context ID.
func (s *cxdbSink) Write(ctx context.Context, report hoptoad.Report) error {
	var contextID uint64
	isOrphan := false

	if report.ContextID != nil {
		contextID = *report.ContextID
	} else {
		head, err := s.client.CreateContext(ctx, 0)
		if err != nil {
			return fmt.Errorf("create orphan context: %w", err)
		}
		contextID = head.ContextID
		isOrphan = true
	}

	item := s.buildConversationItem(report, isOrphan)

	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: report.ID,
	}

	if _, err := s.client.AppendTurn(ctx, req); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *cxdbSink) buildConversationItem(report hoptoad.Report, isOrphan bool) *cxdtypes.ConversationItem {
	// Title: "error_type: truncated_message"
	title := report.ErrorType
	if report.Message != "" {
		const maxMsgLen = 80
		msg := report.Message
		if len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen] + "..."
		}
		title = report.ErrorType + ": " + msg
	}
	if len(title) > 100 {
		title = title[:97] + "..."
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: report.CapturedAt.UnixMilli(),
		ID:        report.ID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title,
			Content: buildReportDetails(report),
		},
	}

	// cxdb expects context metadata on the first turn.
	if isOrphan {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    s.orphanLabels,
			ClientTag: s.clientTag,
		}
	}
	return item
}

type frameDetails struct {
	Method string `json:"method"`
	File   string `json:"file,omitempty"`
	Line   *int   `json:"line,omitempty"`
}

type causeDetails struct {
	Frames   []frameDetails `json:"frames"`
	CausedBy string         `json:"caused_by,omitempty"`
}

// buildReportDetails encodes the full report as JSON for SystemMessage.Content.
func buildReportDetails(report hoptoad.Report) string {
	details := map[string]any{
		"report_id":   report.ID,
		"error_type":  report.ErrorType,
		"message":     report.Message,
		"captured_at": report.CapturedAt,
		"fingerprint": hoptoad.Fingerprint(report),
	}

	if len(report.CausalChain) > 0 {
		chain := make([]causeDetails, len(report.CausalChain))
		for i, cause := range report.CausalChain {
			chain[i].CausedBy = cause.CausedBy
			chain[i].Frames = make([]frameDetails, len(cause.Frames))
			for j, f := range cause.Frames {
				chain[i].Frames[j] = frameDetails{Method: f.Symbol, File: f.File, Line: f.Line}
			}
		}
		details["backtrace"] = chain
	}
	if req := report.Request; req != (hoptoad.Request{}) {
		details["request"] = map[string]string{
			"url":       req.URL,
			"component": req.Component,
			"action":    req.Action,
		}
	}
	if report.ContextID != nil {
		details["context_id"] = *report.ContextID
	}
	if len(report.Environment) > 0 {
		details["environment"] = report.Environment
	}

	jsonBytes, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to encode details: %s"}`, err)
	}
	return string(jsonBytes)
}

// Flush is a no-op for the cxdb sink (writes are synchronous).
func (s *cxdbSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for the cxdb sink.
func (s *cxdbSink) Close() error {
	return nil
}
