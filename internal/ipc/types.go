package ipc

import (
	"encoding/json"
	"time"

	"syncqueue/internal/dispatch"
	"syncqueue/internal/queue"
)

// ServiceName is the JSON-RPC service prefix.
const ServiceName = "SyncQueue"

// QueueItem is the wire form of a pending action.
type QueueItem struct {
	ID         string          `json:"id"`
	Position   int             `json:"position"`
	Method     string          `json:"method"`
	Path       string          `json:"path"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	InFlight   bool            `json:"in_flight"`
	Payload    json.RawMessage `json:"payload"`
}

// FromAction converts an action at position (zero-based) into its wire form.
func FromAction(a queue.Action, position int, inFlight string) QueueItem {
	item := QueueItem{
		ID:         a.ID,
		Position:   position,
		EnqueuedAt: a.EnqueuedAt,
		InFlight:   a.ID == inFlight,
		Payload:    a.Payload,
	}
	if req, err := dispatch.DecodeRequest(a.Payload); err == nil {
		item.Method = req.Method
		item.Path = req.Path
	}
	return item
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and queue status.
type StatusResponse struct {
	Running      bool       `json:"running"`
	PID          int        `json:"pid"`
	StartedAt    time.Time  `json:"started_at"`
	Online       bool       `json:"online"`
	ProbeEnabled bool       `json:"probe_enabled"`
	Pending      int        `json:"pending"`
	Attempts     int        `json:"attempts"`
	SuccessTally int        `json:"success_tally"`
	Head         *QueueItem `json:"head"`
	DatabasePath string     `json:"database_path"`
	LockPath     string     `json:"lock_path"`
}

// QueueListRequest fetches pending actions.
type QueueListRequest struct{}

// QueueListResponse contains pending actions in processing order.
type QueueListResponse struct {
	Items    []QueueItem `json:"items"`
	Attempts int         `json:"attempts"`
}

// QueueAddRequest enqueues one or more action payloads in order.
type QueueAddRequest struct {
	Payloads []json.RawMessage `json:"payloads"`
}

// QueueAddResponse lists the queued items.
type QueueAddResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueSkipRequest abandons the head action.
type QueueSkipRequest struct{}

// QueueSkipResponse reports the skipped action, if any.
type QueueSkipResponse struct {
	Skipped *QueueItem `json:"skipped"`
}

// QueueRetryRequest restarts the head dispatch.
type QueueRetryRequest struct{}

// QueueRetryResponse reports connectivity after the retry was requested.
type QueueRetryResponse struct {
	Online bool `json:"online"`
}

// QueueClearRequest removes all actions.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
