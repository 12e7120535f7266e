package notifications

// Severity classifies a notification for presentation.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Message keys known to the catalog.
const (
	KeySyncSuccess = "sync.success"
	KeySyncDropped = "sync.dropped"
	KeySyncTest    = "sync.test"
)

// Notification is a single fire-and-forget message request.
type Notification struct {
	MessageKey string
	Params     map[string]any
	Severity   Severity
	// DedupeKey lets the delivery layer coalesce repeated identical notifications.
	DedupeKey string
}
