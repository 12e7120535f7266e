package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"syncqueue/internal/logging"
	"syncqueue/internal/notifications"
)

type recordingService struct {
	mu    sync.Mutex
	sent  []notifications.Notification
	err   error
	block chan struct{}
	seen  chan struct{}
}

func newRecordingService() *recordingService {
	return &recordingService{seen: make(chan struct{}, 64)}
}

func (r *recordingService) Send(_ context.Context, n notifications.Notification) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.sent = append(r.sent, n)
	err := r.err
	r.mu.Unlock()
	r.seen <- struct{}{}
	return err
}

func (r *recordingService) Test(context.Context) error { return nil }

func (r *recordingService) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingService) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
}

func runEnqueuer(t *testing.T, e *notifications.Enqueuer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func successNote(records int) notifications.Notification {
	return notifications.Notification{
		MessageKey: notifications.KeySyncSuccess,
		Params:     map[string]any{"records": records},
		Severity:   notifications.SeveritySuccess,
		DedupeKey:  "sync_success",
	}
}

func TestEnqueuerDeliversInOrder(t *testing.T) {
	svc := newRecordingService()
	e := notifications.NewEnqueuer(svc, logging.NewNop())
	runEnqueuer(t, e)

	e.Enqueue(successNote(1))
	e.Enqueue(successNote(2))
	svc.wait(t, 2)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.sent[0].Params["records"] != 1 || svc.sent[1].Params["records"] != 2 {
		t.Fatalf("unexpected delivery order: %+v", svc.sent)
	}
}

func TestEnqueuerCoalescesIdenticalNotificationsWithinWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	svc := newRecordingService()
	e := notifications.NewEnqueuer(svc, logging.NewNop(),
		notifications.WithDedupWindow(time.Minute),
		notifications.WithClock(clock))
	runEnqueuer(t, e)

	e.Enqueue(successNote(2))
	svc.wait(t, 1)

	// Same text inside the window is coalesced; a different count is not.
	e.Enqueue(successNote(2))
	e.Enqueue(successNote(5))
	svc.wait(t, 1)
	if got := svc.count(); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}

	advance(2 * time.Minute)
	e.Enqueue(successNote(5))
	svc.wait(t, 1)
	if got := svc.count(); got != 3 {
		t.Fatalf("expected delivery after window elapsed, got %d", got)
	}
}

func TestEnqueuerNeverBlocksWhenBufferFull(t *testing.T) {
	svc := newRecordingService()
	svc.block = make(chan struct{})
	e := notifications.NewEnqueuer(svc, logging.NewNop(), notifications.WithBuffer(1))
	runEnqueuer(t, e)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			e.Enqueue(successNote(i))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full buffer")
	}
	close(svc.block)
}

func TestEnqueuerKeepsRunningAfterSendError(t *testing.T) {
	svc := newRecordingService()
	svc.err = errors.New("ntfy down")
	e := notifications.NewEnqueuer(svc, logging.NewNop(), notifications.WithDedupWindow(time.Hour))
	runEnqueuer(t, e)

	// A failed delivery is not remembered for dedupe, so the retry goes out.
	e.Enqueue(successNote(1))
	e.Enqueue(successNote(1))
	svc.wait(t, 2)
}
