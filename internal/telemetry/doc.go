// Package telemetry records queue engine transitions as OpenTelemetry
// counters.
//
// NewRecorder binds to a meter provider (the global one when nil). Callers
// that run without metrics use NoopRecorder.
package telemetry
