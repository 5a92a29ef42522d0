// Package worker provides a fixed-size pool of workers draining a shared,
// unbounded job queue.
//
// Each worker runs on its own goroutine locked to a dedicated OS thread. All
// workers share the consuming end of one dispatch channel behind a mutex: a
// worker locks it, waits for exactly one message, unlocks, and only then runs
// the job. Jobs are delivered in submission order and each one is delivered to
// exactly one worker, but with more than one worker they may complete out of
// order.
//
// # Basic Usage
//
//	pool, err := worker.NewPool(4)
//	if err != nil {
//	    return err
//	}
//	defer pool.Shutdown()
//
//	for i := 0; i < 100; i++ {
//	    _ = pool.Submit(func() {
//	        // do work
//	    })
//	}
//
// # Shutdown
//
// Shutdown sends one stop message per worker and then joins every worker in
// id order. Stop messages queue behind every job accepted before Shutdown, so
// those jobs all run before the workers exit. Submit returns ErrPoolClosed
// once Shutdown has started. Calling Shutdown again is a no-op.
//
// Shutdown must not be called from inside a job. The calling worker would
// wait to join itself and Shutdown would never return. Cancel a context or
// signal another goroutine to shut the pool down instead.
//
// # Panics
//
// A panicking job is recovered by its worker, logged and reported to the
// configured observers; the worker keeps serving. Set
// PoolConfig.PropagatePanics to let the panic crash the process instead.
package worker
