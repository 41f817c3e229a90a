// interceptor.go implements the process-wide fallback handler chain for
// panics that reach a guarded goroutine boundary.

package hoptoad

import (
	"context"
	"sync/atomic"
)

// Failure is an unrecovered panic handed to the fallback handler.
type Failure struct {
	// Goroutine is the id of the goroutine that panicked, 0 if unknown.
	Goroutine int64

	// Value is the value passed to panic.
	Value any

	// Stack holds the program counters at the point of recovery, including
	// the runtime frames of the panic itself.
	Stack []uintptr

	// reported is set by the interceptor once the failure is persisted.
	reported bool
}

// Handler handles a Failure nobody else recovered.
type Handler interface {
	HandlePanic(f Failure)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(f Failure)

// HandlePanic calls fn(f).
func (fn HandlerFunc) HandlePanic(f Failure) {
	fn(f)
}

// handlerBox lets an interface value live behind an atomic.Pointer.
type handlerBox struct {
	h Handler
}

var fallback atomic.Pointer[handlerBox]

// FallbackHandler returns the current process-wide fallback handler.
// Without any installation this is a handler that re-panics with the
// original value, i.e. Go's default crash.
func FallbackHandler() Handler {
	if b := fallback.Load(); b != nil {
		return b.h
	}
	return repanicHandler{}
}

// SetFallbackHandler installs h and returns the handler it replaced.
// A nil h restores the default.
func SetFallbackHandler(h Handler) Handler {
	var next *handlerBox
	if h != nil {
		next = &handlerBox{h: h}
	}
	prev := FallbackHandler()
	fallback.Store(next)
	return prev
}

// repanicHandler restores Go's default behavior for an unrecovered panic.
// A failure that was already reported is marked in the crash output so the
// dump the runtime writes for it is not ingested as a second report.
type repanicHandler struct{}

func (repanicHandler) HandlePanic(f Failure) {
	if f.reported {
		if c := activeCrash.Load(); c != nil {
			c.markReported(f.Goroutine)
		}
	}
	panic(f.Value)
}

// interceptor reports a failure through the default notifier, then always
// hands it to the handler it replaced.
type interceptor struct {
	previous Handler
}

func (i *interceptor) HandlePanic(f Failure) {
	defer func() { i.previous.HandlePanic(f) }()

	if n := Default(); n != nil {
		f.reported = n.notifyPanic(context.Background(), f.Value, f.Stack, f.Goroutine)
	}
}

// installInterceptor puts an interceptor at the head of the chain unless
// the current handler already is one. Reports whether it installed.
func installInterceptor() bool {
	for {
		cur := fallback.Load()
		var prev Handler = repanicHandler{}
		if cur != nil {
			if _, ok := cur.h.(*interceptor); ok {
				return false
			}
			prev = cur.h
		}
		if fallback.CompareAndSwap(cur, &handlerBox{h: &interceptor{previous: prev}}) {
			return true
		}
	}
}

// Guard recovers a panic and hands it to the fallback handler. With a
// registered notifier the panic is reported and then re-raised, so the
// process still crashes. Use it as the first defer of a goroutine:
//
//	go func() {
//	    defer hoptoad.Guard()
//	    work()
//	}()
func Guard() {
	r := recover()
	if r == nil {
		return
	}
	FallbackHandler().HandlePanic(Failure{
		Goroutine: goroutineID(),
		Value:     r,
		Stack:     captureStack(0),
	})
}

// Go runs fn on a new goroutine guarded by Guard.
func Go(fn func()) {
	go func() {
		defer Guard()
		fn()
	}()
}
