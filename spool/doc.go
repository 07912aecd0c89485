// Package spool runs batches of independent tasks on a bounded worker pool
// under a shared deadline with cooperative cancellation.
//
// Every task settles exactly once:
//
//	Queued -> Running -> Fulfilled | Rejected
//	Queued -> Skipped                 (deadline or cancellation before start)
//
// Settlements are returned in submission order regardless of the order in
// which tasks started or finished. A failing or panicking task never affects
// its siblings.
//
// Example:
//
//	results, err := spool.Run(ctx, tasks, func(o *spool.Options) {
//	    o.Concurrency = 8
//	    o.Deadline = 30 * time.Second
//	})
package spool
