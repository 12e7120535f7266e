package queue

import (
	"encoding/json"
	"time"

	"syncqueue/internal/store"
)

// Action is one pending state-changing operation awaiting remote confirmation.
// The payload is opaque to the engine.
type Action struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ActionFromRecord converts a durable record into an action.
func ActionFromRecord(rec store.Record) Action {
	return Action{
		ID:         rec.ID,
		Payload:    append(json.RawMessage(nil), rec.Body...),
		EnqueuedAt: rec.CreatedAt,
	}
}

// RemovalReason explains why an action left the head of the queue.
type RemovalReason string

const (
	// ReasonFinished marks the normal completion signal.
	ReasonFinished RemovalReason = "finished"
	// ReasonSkipped marks an explicit skip.
	ReasonSkipped RemovalReason = "skipped"
	// ReasonDropped marks retry exhaustion.
	ReasonDropped RemovalReason = "dropped"
)

// Snapshot is a point-in-time copy of engine state for status reporting.
type Snapshot struct {
	Pending      []Action `json:"pending"`
	Attempts     int      `json:"attempts"`
	SuccessTally int      `json:"success_tally"`
	Working      bool     `json:"working"`
	// InFlight is the ID of the head action with an outstanding dispatch.
	InFlight string `json:"in_flight,omitempty"`
}
