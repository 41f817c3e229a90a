// Package hoptoad captures unhandled failures in a Go process, buffers them on
// disk as Hoptoad v2 XML notices, and delivers the buffered notices to a
// remote collector.
//
// A report is never lost to a crash or a network outage: it is written to the
// storage directory before any delivery is attempted, and a file is removed
// only after the collector answered the upload.
//
// # Core Components
//
//   - Report: the immutable representation of one captured failure
//   - Notice encoding: EncodeNotice/DecodeNotice for the collector's XML schema
//   - Buffer (package buffer): directory-backed set of report files
//   - Engine (package delivery): uploads buffered reports and removes them
//   - Notifier: registration state plus the capture path
//   - Fallback handler chain: process-wide hook for unrecovered panics
//
// # Quick Start
//
//	n, err := hoptoad.Register("/var/lib/myapp/unsent_hoptoad_exceptions", apiKey,
//	    hoptoad.WithEnvironmentName("production"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer hoptoad.Guard()
//
//	hoptoad.Go(func() {
//	    // panics here are reported, then crash the process as usual
//	})
//
//	n.Notify(ctx, err) // manual report
//
// # Design Principles
//
//   - The capture path is synchronous and never panics into the host: any
//     failure while capturing is recovered and logged
//   - The previously installed fallback handler always runs after capture, so
//     the process still crashes the way it would have without hoptoad
//   - Delivery is at-least-once: any collector response removes the file, a
//     transport error keeps it for the next flush
package hoptoad
