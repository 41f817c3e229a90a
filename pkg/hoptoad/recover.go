// recover.go provides the Recover helper for panic recovery that does not
// crash the process.
// Use this in HTTP handlers, workers, or other code that must keep running.

package hoptoad

import "context"

// Recover captures a panic, reports it through n and returns the recovered
// value. A nil n selects the default notifier.
// Unlike Guard, Recover does NOT re-panic after recording.
//
// Use in defer:
//
//	func handler(ctx context.Context) {
//	    defer hoptoad.Recover(ctx, notifier)
//	    // code that might panic
//	}
func Recover(ctx context.Context, n *Notifier) any {
	r := recover()
	if r == nil {
		return nil
	}

	if n == nil {
		n = Default()
	}
	if n != nil {
		n.notifyPanic(ctx, r, captureStack(0), goroutineID())
	}

	return r
}
