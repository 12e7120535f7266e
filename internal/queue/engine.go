package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"syncqueue/internal/logging"
	"syncqueue/internal/notifications"
	"syncqueue/internal/store"
	"syncqueue/internal/telemetry"
)

const (
	// DefaultCollection is the durable collection holding offline actions.
	DefaultCollection = "offline_requests"
	// MaxAttempts is the number of failures after which the head is dropped.
	MaxAttempts = 3
	// DedupeKeySyncSuccess coalesces repeated drain notifications.
	DedupeKeySyncSuccess = "sync_success"
)

// ErrInvalidPayload is returned by bus handlers that receive an unexpected payload.
var ErrInvalidPayload = errors.New("queue: invalid payload")

// Source reads durable records. It is consulted once, at construction.
type Source interface {
	ReadAll(ctx context.Context, collection string) ([]store.Record, error)
}

// Dispatcher sends an action to the server. It must return without waiting
// for the outcome, which is reported later through the bus. ctx is canceled
// when the dispatch is superseded.
type Dispatcher interface {
	Dispatch(ctx context.Context, action Action)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, action Action)

func (f DispatchFunc) Dispatch(ctx context.Context, action Action) { f(ctx, action) }

// Notifier accepts fire-and-forget notifications.
type Notifier interface {
	Enqueue(n notifications.Notification)
}

// RemovalHook observes actions leaving the head of the queue.
type RemovalHook func(action Action, reason RemovalReason)

// Option configures an Engine.
type Option func(*Engine)

// WithReady installs the readiness predicate consulted by Process.
func WithReady(ready func() bool) Option {
	return func(e *Engine) {
		if ready != nil {
			e.ready = ready
		}
	}
}

// WithDispatchTimeout bounds each dispatch. Zero disables the bound.
func WithDispatchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.dispatchTimeout = d }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "queue") }
}

// WithMetrics sets the transition recorder.
func WithMetrics(recorder telemetry.Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

// WithCollection overrides the durable collection read at construction.
func WithCollection(collection string) Option {
	return func(e *Engine) {
		if collection != "" {
			e.collection = collection
		}
	}
}

// WithRemovalHook registers an observer for head removals.
func WithRemovalHook(hook RemovalHook) Option {
	return func(e *Engine) { e.onRemove = hook }
}

// Engine is the offline action queue state machine.
type Engine struct {
	pending      []Action
	attempts     int
	successTally int
	working      bool

	dispatcher      Dispatcher
	notifier        Notifier
	ready           func() bool
	dispatchTimeout time.Duration
	collection      string
	logger          *slog.Logger
	metrics         telemetry.Recorder
	onRemove        RemovalHook

	root     context.Context
	stop     context.CancelFunc
	inflight *dispatchHandle
	closed   bool
}

type dispatchHandle struct {
	id     string
	cancel context.CancelFunc
	state  *dispatchState
}

// New builds an engine and rehydrates pending actions from source. It does
// not dispatch; call Start once the surrounding wiring is in place.
func New(ctx context.Context, source Source, dispatcher Dispatcher, notifier Notifier, opts ...Option) (*Engine, error) {
	if dispatcher == nil {
		return nil, errors.New("queue: dispatcher is required")
	}
	e := &Engine{
		dispatcher: dispatcher,
		notifier:   notifier,
		ready:      func() bool { return true },
		collection: DefaultCollection,
		logger:     logging.NewComponentLogger(nil, "queue"),
		metrics:    telemetry.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.root, e.stop = context.WithCancel(context.Background())

	if source != nil {
		records, err := source.ReadAll(ctx, e.collection)
		if err != nil {
			e.stop()
			return nil, fmt.Errorf("rehydrate %s: %w", e.collection, err)
		}
		e.pending = make([]Action, 0, len(records))
		for _, rec := range records {
			e.pending = append(e.pending, ActionFromRecord(rec))
		}
	}
	e.logger.Info("queue rehydrated",
		logging.String("collection", e.collection),
		logging.Int("pending", len(e.pending)))
	return e, nil
}

// Add replaces the pending list with a copy of actions and processes when idle.
func (e *Engine) Add(actions []Action) {
	prevHead, hadHead := e.headID()
	e.pending = append([]Action(nil), actions...)
	e.logger.Debug("queue replaced", logging.Int("pending", len(e.pending)))
	head, hasHead := e.headID()
	if !hasHead || !hadHead || head != prevHead {
		e.attempts = 0
	}
	if e.inflight != nil && (!hasHead || head != e.inflight.id) {
		e.supersede()
	}
	if !e.working {
		e.Process()
	}
}

// Process dispatches the head action when the engine is ready and idle.
func (e *Engine) Process() {
	if e.closed {
		return
	}
	if !e.ready() {
		e.logger.Debug("process deferred, not ready")
		return
	}
	if e.working {
		return
	}
	e.working = true
	defer func() { e.working = false }()

	if len(e.pending) == 0 {
		return
	}
	head := e.pending[0]
	if e.inflight != nil && e.inflight.id == head.ID {
		e.logger.Debug("head already dispatched", logging.String(logging.FieldActionID, head.ID))
		return
	}
	e.supersede()

	ctx, handle := e.newDispatch(head.ID)
	e.inflight = handle
	e.metrics.ActionDispatched(ctx)
	e.logger.Debug("dispatching head",
		logging.String(logging.FieldActionID, head.ID),
		logging.Int("attempt", e.attempts+1))
	e.dispatcher.Dispatch(ctx, head)
}

// Start resumes processing, restarting any outstanding head dispatch.
func (e *Engine) Start() {
	if e.working {
		return
	}
	e.supersede()
	e.Process()
}

// OnSkip abandons the head without retry.
func (e *Engine) OnSkip() {
	e.supersede()
	e.attempts = 0
	if removed, ok := e.shift(); ok {
		e.removed(removed, ReasonSkipped)
	}
	if !e.working {
		e.Process()
	}
}

// OnFailure counts a transient failure of the head, dropping it after
// MaxAttempts failures.
func (e *Engine) OnFailure() {
	e.supersede()
	e.metrics.ActionFailed(e.root)
	e.attempts++
	if e.attempts >= MaxAttempts {
		e.attempts = 0
		if removed, ok := e.shift(); ok {
			e.removed(removed, ReasonDropped)
		}
	}
	if !e.working {
		e.Process()
	}
}

// OnSuccess counts a successful head dispatch. Removal waits for OnFinished.
func (e *Engine) OnSuccess() {
	e.metrics.ActionSucceeded(e.root)
	e.successTally++
}

// OnFinished removes the head. id is informational only. When the queue
// drains with successes recorded, one summary notification is sent.
func (e *Engine) OnFinished(id string) {
	e.supersede()
	removed, ok := e.shift()
	if ok {
		if id != "" && id != removed.ID {
			e.logger.Debug("finished id does not match head",
				logging.String(logging.FieldActionID, removed.ID),
				logging.String("finished_id", id))
		}
		e.removed(removed, ReasonFinished)
	}
	if !e.working {
		e.Process()
	}
	if len(e.pending) == 0 && e.successTally > 0 {
		e.notifySuccess()
		e.successTally = 0
	}
}

// HasWork reports whether any action is pending.
func (e *Engine) HasWork() bool {
	return len(e.pending) > 0
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Pending:      append([]Action(nil), e.pending...),
		Attempts:     e.attempts,
		SuccessTally: e.successTally,
		Working:      e.working,
	}
	if e.inflight != nil {
		snap.InFlight = e.inflight.id
	}
	return snap
}

// Close cancels any outstanding dispatch. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.closed = true
	e.supersede()
	e.stop()
}

func (e *Engine) headID() (string, bool) {
	if len(e.pending) == 0 {
		return "", false
	}
	return e.pending[0].ID, true
}

func (e *Engine) shift() (Action, bool) {
	if len(e.pending) == 0 {
		return Action{}, false
	}
	head := e.pending[0]
	e.pending = e.pending[1:]
	return head, true
}

func (e *Engine) removed(action Action, reason RemovalReason) {
	e.metrics.ActionRemoved(e.root, string(reason))
	e.logger.Debug("head removed",
		logging.String(logging.FieldActionID, action.ID),
		logging.String("reason", string(reason)))
	if e.onRemove != nil {
		e.onRemove(action, reason)
	}
}

func (e *Engine) notifySuccess() {
	e.logger.Info("queue drained", logging.Int("records", e.successTally))
	if e.notifier == nil {
		return
	}
	e.notifier.Enqueue(notifications.Notification{
		MessageKey: notifications.KeySyncSuccess,
		Params:     map[string]any{"records": e.successTally},
		Severity:   notifications.SeveritySuccess,
		DedupeKey:  DedupeKeySyncSuccess,
	})
}

func (e *Engine) newDispatch(id string) (context.Context, *dispatchHandle) {
	state := &dispatchState{}
	ctx := context.WithValue(e.root, dispatchKey{}, state)
	var cancel context.CancelFunc
	if e.dispatchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.dispatchTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	return ctx, &dispatchHandle{id: id, cancel: cancel, state: state}
}

// supersede cancels the outstanding dispatch, if any.
func (e *Engine) supersede() {
	if e.inflight == nil {
		return
	}
	e.inflight.state.superseded.Store(true)
	e.inflight.cancel()
	e.inflight = nil
}

type dispatchKey struct{}

type dispatchState struct {
	superseded atomic.Bool
}

// Superseded reports whether the dispatch carried by ctx was replaced or
// abandoned by the engine. Outcomes of a superseded dispatch must not be
// reported. Check it on the engine's goroutine to avoid racing a skip.
func Superseded(ctx context.Context) bool {
	state, ok := ctx.Value(dispatchKey{}).(*dispatchState)
	return ok && state.superseded.Load()
}
