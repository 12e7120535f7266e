// Package notifications delivers user-facing queue summaries via pluggable
// services.
//
// The queue engine only ever calls Enqueuer.Enqueue, which never blocks: a
// background Run loop renders each Notification through the message catalog
// and hands it to a Service. The default Service publishes to ntfy using the
// topic configured in config.toml and degrades to a no-op when notifications
// are disabled. Identical notifications sharing a dedupe key are coalesced
// inside the configured window.
package notifications
