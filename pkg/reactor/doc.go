// Package reactor provides the single-goroutine event loop that owns all
// connection state in logwire.
//
// A Loop executes Tasks one at a time, in the order they were posted. Work
// that blocks (socket reads, socket writes, DNS lookups) happens on helper
// goroutines which hand their results back to the loop with Post. Anything
// that mutates connection or registry state must run as a loop task; code
// running on another goroutine marshals onto the loop with Do.
//
// # Usage
//
//	loop := reactor.New(reactor.WithLogger(logger))
//	go func() { _ = loop.Run(ctx) }()
//
//	// Repeating timer, runs on the loop goroutine.
//	t := loop.Every(time.Second, func() error {
//	    sweep()
//	    return nil
//	})
//	defer t.Stop()
//
//	// Query loop-owned state from another goroutine.
//	var n int
//	err := loop.Do(ctx, func() error {
//	    n = registry.Len()
//	    return nil
//	})
//
// # Fault Boundary
//
// A task that returns an error, or panics, does not stop the loop. The error
// (a panic is wrapped in *PanicError) is passed to the fault handler, which
// logs it by default.
//
// Do must never be called from a task: the loop would wait on itself.
package reactor
