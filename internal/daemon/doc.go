// Package daemon coordinates the long-running syncqueue process.
//
// It wires the durable store, the event loop, the queue engine, the HTTP
// dispatcher, the connectivity probe and the notification enqueuer into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Every engine interaction is funneled through the event loop so the engine
// only ever runs on one goroutine.
//
// Keep orchestration here: queue semantics belong to internal/queue and
// transport details to internal/dispatch.
package daemon
