package notifications

import (
	"context"
	"log/slog"
	"time"

	"syncqueue/internal/logging"
)

// Enqueuer accepts notifications without blocking and delivers them from Run.
type Enqueuer struct {
	service  Service
	renderer *Renderer
	logger   *slog.Logger
	window   time.Duration
	now      func() time.Time
	pending  chan Notification

	// lastSent is owned by the Run goroutine.
	lastSent map[string]sentEntry
}

type sentEntry struct {
	text string
	at   time.Time
}

// EnqueuerOption customizes an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithDedupWindow coalesces identical notifications sent within d of each other.
func WithDedupWindow(d time.Duration) EnqueuerOption {
	return func(e *Enqueuer) { e.window = d }
}

// WithBuffer sets how many notifications may wait for delivery.
func WithBuffer(size int) EnqueuerOption {
	return func(e *Enqueuer) {
		if size > 0 {
			e.pending = make(chan Notification, size)
		}
	}
}

// WithLanguage selects the catalog language used for dedupe comparisons.
func WithLanguage(lang string) EnqueuerOption {
	return func(e *Enqueuer) { e.renderer = NewRenderer(lang) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EnqueuerOption {
	return func(e *Enqueuer) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEnqueuer wraps service with an asynchronous, deduplicating front.
func NewEnqueuer(service Service, logger *slog.Logger, opts ...EnqueuerOption) *Enqueuer {
	if service == nil {
		service = noopService{}
	}
	e := &Enqueuer{
		service:  service,
		renderer: NewRenderer("en"),
		logger:   logging.NewComponentLogger(logger, "notifications"),
		now:      time.Now,
		pending:  make(chan Notification, 32),
		lastSent: make(map[string]sentEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue schedules n for delivery. It never blocks; when the buffer is full
// the notification is dropped and logged.
func (e *Enqueuer) Enqueue(n Notification) {
	select {
	case e.pending <- n:
	default:
		logging.WarnWithContext(e.logger, "notification dropped", "notification_dropped",
			logging.String("message_key", n.MessageKey),
			logging.String(logging.FieldImpact, "user will not see this summary"),
			logging.String(logging.FieldErrorHint, "increase notifications.buffer or check ntfy reachability"))
	}
}

// Run delivers queued notifications until ctx is canceled.
func (e *Enqueuer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-e.pending:
			e.deliver(ctx, n)
		}
	}
}

func (e *Enqueuer) deliver(ctx context.Context, n Notification) {
	text := e.renderer.Render(n)
	now := e.now()
	if e.duplicate(n, text, now) {
		e.logger.Debug("notification coalesced", logging.String("dedupe_key", n.DedupeKey))
		return
	}
	if err := e.service.Send(ctx, n); err != nil {
		logging.WarnWithContext(e.logger, "notification delivery failed", "notification_failed",
			logging.String("message_key", n.MessageKey),
			logging.Error(err),
			logging.String(logging.FieldImpact, "user will not see this summary"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"))
		return
	}
	if n.DedupeKey != "" {
		e.lastSent[n.DedupeKey] = sentEntry{text: text, at: now}
	}
	e.logger.Debug("notification sent", logging.String("message_key", n.MessageKey), logging.String("text", text))
}

func (e *Enqueuer) duplicate(n Notification, text string, now time.Time) bool {
	if e.window <= 0 || n.DedupeKey == "" {
		return false
	}
	last, ok := e.lastSent[n.DedupeKey]
	if !ok || last.text != text {
		return false
	}
	return now.Sub(last.at) < e.window
}
