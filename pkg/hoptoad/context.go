// context.go provides utilities for propagating run IDs, cxdb context IDs
// and request details through Go context.Context.

package hoptoad

import (
	"context"
	"maps"
)

// Context key types (unexported to avoid collisions)
type runIDKey struct{}
type contextIDKey struct{}
type requestKey struct{}
type tagsKey struct{}

// contextIDSet is used to distinguish "zero value" from "not set"
type contextIDSet struct {
	id uint64
}

// WithRunID returns a context with the run ID attached.
// The run ID correlates hook enrichment with runner-boundary failures.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts the run ID from context.
// Returns empty string and false if not set or if the run ID is empty.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(runIDKey{})
	id, ok := v.(string)
	return id, ok && id != ""
}

// WithContextID returns a context with the cxdb context ID attached.
// Reports captured with this context are linked to the conversation.
func WithContextID(ctx context.Context, contextID uint64) context.Context {
	return context.WithValue(ctx, contextIDKey{}, contextIDSet{id: contextID})
}

// ContextIDFromContext extracts the cxdb context ID from context.
// Returns 0 and false if not set.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	v := ctx.Value(contextIDKey{})
	if v == nil {
		return 0, false
	}
	set, ok := v.(contextIDSet)
	if !ok {
		return 0, false
	}
	return set.id, true
}

// ContextIDProvider is an optional interface that session implementations can
// satisfy to enable automatic context linkage for reports.
//
// The ai-agents-sdk CXDBSession already implements this interface via its
// ContextID() method.
type ContextIDProvider interface {
	ContextID(ctx context.Context) (uint64, error)
}

// WithRequest returns a context carrying request details. Reports captured
// with this context fill the notice's request section from it.
func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFromContext extracts request details from context.
func RequestFromContext(ctx context.Context) (Request, bool) {
	req, ok := ctx.Value(requestKey{}).(Request)
	return req, ok
}

// WithTags returns a context carrying extra environment tags. Tags from
// enclosing contexts are kept; later values win. Extra tags reach mirror
// sinks only; the notice carries the fixed device and version tags.
func WithTags(ctx context.Context, tags map[string]string) context.Context {
	merged := make(map[string]string, len(tags))
	if parent, ok := TagsFromContext(ctx); ok {
		maps.Copy(merged, parent)
	}
	maps.Copy(merged, tags)
	return context.WithValue(ctx, tagsKey{}, merged)
}

// TagsFromContext extracts the extra environment tags from context.
// The returned map must not be modified.
func TagsFromContext(ctx context.Context) (map[string]string, bool) {
	tags, ok := ctx.Value(tagsKey{}).(map[string]string)
	return tags, ok
}
