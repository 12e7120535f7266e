package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"syncqueue/internal/config"
	"syncqueue/internal/connectivity"
	"syncqueue/internal/dispatch"
	"syncqueue/internal/eventbus"
	"syncqueue/internal/logging"
	"syncqueue/internal/notifications"
	"syncqueue/internal/queue"
	"syncqueue/internal/store"
	"syncqueue/internal/telemetry"
)

var (
	// ErrAlreadyRunning is returned when the daemon lock is held elsewhere or
	// Start is called twice.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotRunning is returned by queue operations before Start or after Stop.
	ErrNotRunning = errors.New("daemon not running")
)

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotificationService replaces the ntfy service built from config.
func WithNotificationService(svc notifications.Service) Option {
	return func(d *Daemon) {
		if svc != nil {
			d.notifier = svc
		}
	}
}

// WithMeterProvider routes queue counters to provider instead of the global one.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Daemon) { d.meterProvider = provider }
}

// Daemon owns one long-lived queue engine and its collaborators.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store

	bus        *eventbus.Bus
	loop       *eventbus.Loop
	engine     *queue.Engine
	dispatcher *dispatch.HTTPDispatcher
	probe      *connectivity.Probe
	notifier   notifications.Service
	enqueuer   *notifications.Enqueuer
	metrics    telemetry.Recorder

	meterProvider metric.MeterProvider

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	Online       bool
	ProbeEnabled bool
	Pending      int
	Attempts     int
	SuccessTally int
	InFlight     string
	Head         *queue.Action
	DatabasePath string
	LockPath     string
}

// New constructs a daemon and rehydrates the engine from st.
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}

	d.bus = eventbus.New(logger)
	d.loop = eventbus.NewLoop(d.bus, cfg.Queue.EventBuffer, logger)
	d.dispatcher = dispatch.NewHTTP(cfg, d.loop, d.bus, logger)
	d.probe = connectivity.NewProbe(cfg, d.resume, logger)
	d.enqueuer = notifications.NewEnqueuer(d.notifier, logger,
		notifications.WithDedupWindow(cfg.DedupWindow()),
		notifications.WithBuffer(cfg.Notifications.Buffer),
		notifications.WithLanguage(cfg.Notifications.Language))
	d.metrics = telemetry.NewRecorder(d.meterProvider, logger)

	engine, err := queue.New(ctx, st, d.dispatcher, notifyGate{cfg: cfg, next: d.enqueuer},
		queue.WithReady(d.probe.Online),
		queue.WithDispatchTimeout(cfg.DispatchTimeout()),
		queue.WithLogger(logger),
		queue.WithMetrics(d.metrics),
		queue.WithCollection(cfg.Queue.Collection),
		queue.WithRemovalHook(d.onRemoved))
	if err != nil {
		return nil, fmt.Errorf("create queue engine: %w", err)
	}
	engine.Subscribe(d.bus)
	d.engine = engine
	return d, nil
}

// Start acquires the daemon lock and begins processing.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return ErrAlreadyRunning
	}
	if d.stopped {
		return errors.New("daemon cannot be restarted after stop")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: another syncqueue daemon holds %s", ErrAlreadyRunning, d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.goRun(func() error { return d.loop.Run(runCtx) })
	d.goRun(func() error { return d.enqueuer.Run(runCtx) })
	d.goRun(func() error { return d.probe.Run(runCtx) })

	if err := d.loop.Do(runCtx, d.engine.Start); err != nil {
		cancel()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return fmt.Errorf("start queue engine: %w", err)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("syncqueue daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("probe_enabled", d.probe.Enabled()))
	return nil
}

func (d *Daemon) goRun(fn func() error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("daemon worker exited", logging.Error(err))
		}
	}()
}

// Stop cancels outstanding work and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	// Supersede the in-flight dispatch while the loop can still deliver its
	// (discarded) outcome, then drain dispatch goroutines.
	if err := d.loop.Do(context.Background(), d.engine.Close); err != nil {
		// The loop is gone, so nothing else touches the engine.
		d.engine.Close()
	}
	d.dispatcher.Wait()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a new daemon may refuse to start"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"))
	}
	d.running.Store(false)
	d.stopped = true
	d.logger.Info("syncqueue daemon stopped")
}

// Close stops the daemon. The store is owned by the caller.
func (d *Daemon) Close() error {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.engine.Close()
		d.stopped = true
	}
	return nil
}

// resume runs on the probe goroutine after connectivity returns.
func (d *Daemon) resume() {
	if !d.running.Load() {
		return
	}
	if err := d.loop.Do(context.Background(), d.engine.Start); err != nil {
		d.logger.Debug("resume not delivered", logging.Error(err))
	}
}

// Enqueue persists a new action and appends it to the engine's queue.
func (d *Daemon) Enqueue(ctx context.Context, payload json.RawMessage) (queue.Action, error) {
	if !d.running.Load() {
		return queue.Action{}, ErrNotRunning
	}
	if _, err := dispatch.DecodeRequest(payload); err != nil {
		return queue.Action{}, err
	}
	rec, err := d.store.Put(ctx, d.collection(), uuid.NewString(), payload)
	if err != nil {
		return queue.Action{}, fmt.Errorf("persist action: %w", err)
	}
	action := queue.ActionFromRecord(*rec)
	// The record is durable now, so the hand-off ignores caller cancellation.
	err = d.loop.Do(context.Background(), func() {
		pending := d.engine.Snapshot().Pending
		// queue.add replaces the list, so include what is already pending.
		_ = d.bus.Publish(queue.TopicAdd, append(pending, action))
	})
	if err != nil {
		return queue.Action{}, fmt.Errorf("hand action to engine: %w", err)
	}
	d.logger.Info("action queued", logging.String(logging.FieldActionID, action.ID))
	return action, nil
}

// Snapshot returns the engine's current state.
func (d *Daemon) Snapshot(ctx context.Context) (queue.Snapshot, error) {
	if !d.running.Load() {
		return queue.Snapshot{}, ErrNotRunning
	}
	var snap queue.Snapshot
	if err := d.loop.Do(ctx, func() { snap = d.engine.Snapshot() }); err != nil {
		return queue.Snapshot{}, err
	}
	return snap, nil
}

// Skip abandons the head action. It reports the skipped action, if any.
func (d *Daemon) Skip(ctx context.Context) (*queue.Action, error) {
	if !d.running.Load() {
		return nil, ErrNotRunning
	}
	var head *queue.Action
	err := d.loop.Do(ctx, func() {
		pending := d.engine.Snapshot().Pending
		if len(pending) == 0 {
			return
		}
		head = &pending[0]
		_ = d.bus.Publish(queue.TopicSkip, nil)
	})
	if err != nil {
		return nil, err
	}
	return head, nil
}

// Retry re-checks connectivity and restarts the head dispatch.
func (d *Daemon) Retry(ctx context.Context) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	if _, resumed := d.probe.Poll(ctx); resumed {
		return nil
	}
	return d.loop.Do(ctx, d.engine.Start)
}

// Clear removes every stored action and empties the engine's queue.
func (d *Daemon) Clear(ctx context.Context) (int64, error) {
	if !d.running.Load() {
		return 0, ErrNotRunning
	}
	removed, err := d.store.Clear(ctx, d.collection())
	if err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	if err := d.loop.Do(ctx, func() {
		_ = d.bus.Publish(queue.TopicAdd, []queue.Action{})
	}); err != nil {
		return removed, err
	}
	d.logger.Info("queue cleared", logging.Int64("removed_count", removed))
	return removed, nil
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Test(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Online:       d.probe.Online(),
		ProbeEnabled: d.probe.Enabled(),
		DatabasePath: d.store.Path(),
		LockPath:     d.lockPath,
	}
	if !status.Running {
		return status
	}
	status.StartedAt = d.startedAt
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return status
	}
	status.Pending = len(snap.Pending)
	status.Attempts = snap.Attempts
	status.SuccessTally = snap.SuccessTally
	status.InFlight = snap.InFlight
	if len(snap.Pending) > 0 {
		head := snap.Pending[0]
		status.Head = &head
	}
	return status
}

func (d *Daemon) collection() string {
	if c := strings.TrimSpace(d.cfg.Queue.Collection); c != "" {
		return c
	}
	return queue.DefaultCollection
}
