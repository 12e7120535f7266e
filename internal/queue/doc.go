// Package queue implements the offline action queue engine.
//
// An Engine owns an ordered list of pending actions and dispatches only the
// head. Outcomes come back as bus events (success, failed, finished, skip);
// the head is retried up to MaxAttempts times before it is dropped. When the
// list drains after one or more successes, a single summary notification is
// enqueued.
//
// Engine methods are not safe for concurrent use. Run them on one goroutine,
// normally the eventbus.Loop that also delivers the queue topics.
package queue
