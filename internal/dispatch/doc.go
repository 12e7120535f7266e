// Package dispatch replays queued actions against the server over HTTP.
//
// Each action payload is a JSON request description
// ({"method", "path", "body"}). The dispatcher issues the request on its own
// goroutine and reports the outcome back onto the event loop as queue topics:
//
//	2xx                         success, then finished(id)
//	network error, timeout,
//	408, 429, 5xx               failed
//	other 4xx                   finished(id)
//	undecodable payload         skip
//
// Outcomes of a dispatch the engine has superseded are discarded.
package dispatch
