package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"syncqueue/internal/config"
	"syncqueue/internal/daemon"
	"syncqueue/internal/dispatch"
	"syncqueue/internal/logging"
	"syncqueue/internal/notifications"
	"syncqueue/internal/queue"
	"syncqueue/internal/store"
	"syncqueue/internal/testsupport"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n notifications.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) Test(context.Context) error { return nil }

func (f *fakeNotifier) byKey(key string) []notifications.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notifications.Notification
	for _, n := range f.sent {
		if n.MessageKey == key {
			out = append(out, n)
		}
	}
	return out
}

type requestLog struct {
	mu    sync.Mutex
	paths []string
	keys  []string
}

func (r *requestLog) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, req.URL.Path)
	r.keys = append(r.keys, req.Header.Get("Idempotency-Key"))
}

func (r *requestLog) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...), append([]string(nil), r.keys...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newDaemon(t *testing.T, cfg *config.Config, st *store.Store, notifier notifications.Service) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(context.Background(), cfg, st, logging.NewNop(), daemon.WithNotificationService(notifier))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func request(t *testing.T, path string) json.RawMessage {
	t.Helper()
	payload, err := dispatch.Request{Method: http.MethodPost, Path: path, Body: json.RawMessage(`{"ok":true}`)}.Encode()
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return payload
}

func storedCount(t *testing.T, st *store.Store) int {
	t.Helper()
	n, err := st.Count(context.Background(), queue.DefaultCollection)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st, &fakeNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if status := d.Status(ctx); !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning on second start, got %v", err)
	}

	d.Stop()
	if status := d.Status(ctx); status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := d.Enqueue(ctx, request(t, "/x")); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	first := newDaemon(t, cfg, st, &fakeNotifier{})
	second := newDaemon(t, cfg, st, &fakeNotifier{})

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestDaemonReplaysStoredActionsInOrder(t *testing.T) {
	var log requestLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL))
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.PutRecord(t, st, queue.DefaultCollection, "first", map[string]any{"method": "POST", "path": "/one"})
	testsupport.PutRecord(t, st, queue.DefaultCollection, "second", map[string]any{"method": "PUT", "path": "/two"})

	notifier := &fakeNotifier{}
	d := newDaemon(t, cfg, st, notifier)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "store to drain", func() bool { return storedCount(t, st) == 0 })
	waitFor(t, "success notification", func() bool { return len(notifier.byKey(notifications.KeySyncSuccess)) == 1 })

	paths, keys := log.snapshot()
	if len(paths) != 2 || paths[0] != "/one" || paths[1] != "/two" {
		t.Fatalf("unexpected replay order %v", paths)
	}
	if keys[0] != "first" || keys[1] != "second" {
		t.Fatalf("unexpected idempotency keys %v", keys)
	}
	note := notifier.byKey(notifications.KeySyncSuccess)[0]
	if note.Params["records"] != 2 {
		t.Fatalf("expected records=2, got %v", note.Params["records"])
	}
}

func TestDaemonDropsActionAfterThreeFailures(t *testing.T) {
	var log requestLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL))
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &fakeNotifier{}
	d := newDaemon(t, cfg, st, notifier)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	action, err := d.Enqueue(ctx, request(t, "/flaky"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "dropped notification", func() bool { return len(notifier.byKey(notifications.KeySyncDropped)) == 1 })

	if n := storedCount(t, st); n != 0 {
		t.Fatalf("expected dropped action to be deleted, %d remain", n)
	}
	paths, _ := log.snapshot()
	if len(paths) != queue.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", queue.MaxAttempts, len(paths))
	}
	dropped := notifier.byKey(notifications.KeySyncDropped)[0]
	if dropped.Params["action"] != action.ID || dropped.Severity != notifications.SeverityError {
		t.Fatalf("unexpected dropped notification %+v", dropped)
	}
	if len(notifier.byKey(notifications.KeySyncSuccess)) != 0 {
		t.Fatal("a drop must not produce a success notification")
	}
}

func TestDaemonEnqueueRejectsInvalidPayload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st, &fakeNotifier{})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := d.Enqueue(context.Background(), json.RawMessage(`{"path":"relative"}`))
	if !errors.Is(err, dispatch.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if n := storedCount(t, st); n != 0 {
		t.Fatalf("invalid payload must not be stored, found %d", n)
	}
}

func TestDaemonSkipAndClear(t *testing.T) {
	srv := testsupport.NewStalledServer(t)

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL))
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st, &fakeNotifier{})
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := d.Enqueue(ctx, request(t, "/a"))
	if err != nil {
		t.Fatalf("Enqueue a: %v", err)
	}
	second, err := d.Enqueue(ctx, request(t, "/b"))
	if err != nil {
		t.Fatalf("Enqueue b: %v", err)
	}

	snap, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Pending) != 2 || snap.Pending[0].ID != first.ID || snap.InFlight != first.ID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	skipped, err := d.Skip(ctx)
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if skipped == nil || skipped.ID != first.ID {
		t.Fatalf("expected %s to be skipped, got %+v", first.ID, skipped)
	}
	status := d.Status(ctx)
	if status.Pending != 1 || status.Head == nil || status.Head.ID != second.ID {
		t.Fatalf("unexpected status after skip %+v", status)
	}
	if n := storedCount(t, st); n != 1 {
		t.Fatalf("expected skipped action to be deleted, %d stored", n)
	}

	removed, err := d.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	snap, err = d.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Pending) != 0 || snap.InFlight != "" {
		t.Fatalf("expected empty queue after clear, got %+v", snap)
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st, &fakeNotifier{})
	sent, message, err := d.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("expected unsent without error, got sent=%v err=%v", sent, err)
	}
	if message != "ntfy topic not configured" {
		t.Fatalf("unexpected message %q", message)
	}
}

func TestDaemonRetryAfterReconnectDispatchesOnce(t *testing.T) {
	var healthy atomic.Bool
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			up := healthy.Load()
			probes.Add(1)
			if up {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL))
	cfg.Server.HealthPath = "/health"
	cfg.Server.ProbeInterval = 3600
	st := testsupport.MustOpenStore(t, cfg)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	d, err := daemon.New(context.Background(), cfg, st, logging.NewNop(),
		daemon.WithNotificationService(&fakeNotifier{}),
		daemon.WithMeterProvider(provider))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "initial probe", func() bool { return probes.Load() >= 1 })
	if _, err := d.Enqueue(ctx, request(t, "/a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	healthy.Store(true)
	if err := d.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var dispatched int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "syncqueue.actions.dispatched" {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					dispatched += dp.Value
				}
			}
		}
	}
	if dispatched != 1 {
		t.Fatalf("dispatched %d times after reconnect, want 1", dispatched)
	}
}
