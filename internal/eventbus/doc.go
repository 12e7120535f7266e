// Package eventbus provides the synchronous topic bus that couples the queue
// engine to its collaborators, and the Loop that gives the bus a single
// owning goroutine.
//
// Bus delivery is synchronous and in subscription order, within the caller's
// goroutine. Handlers are isolated from each other: an error or panic in one
// handler is logged and collected, and the remaining handlers still run.
//
// Components running on other goroutines (HTTP dispatch, connectivity probes,
// the IPC server) must never call Publish directly; they Post to the Loop,
// which publishes events one at a time in the order they were posted.
package eventbus
