// Package logging assembles structured slog loggers and formatting helpers used
// across syncqueue services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and defines the standard field keys (component, action_id, topic,
// event_type) so queue, dispatch, and notification code emit log lines with
// the same shape. NewNop provides a discard logger for tests and wiring code
// that cannot fail.
package logging
