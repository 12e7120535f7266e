package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"syncqueue/internal/dispatch"
	"syncqueue/internal/eventbus"
	"syncqueue/internal/logging"
	"syncqueue/internal/notifications"
	"syncqueue/internal/queue"
	"syncqueue/internal/testsupport"
)

type topicRecorder struct {
	mu     sync.Mutex
	events []string
	ids    []any
	seen   chan struct{}
}

func newTopicRecorder(bus *eventbus.Bus) *topicRecorder {
	r := &topicRecorder{seen: make(chan struct{}, 16)}
	for _, topic := range []string{queue.TopicSkip, queue.TopicSuccess, queue.TopicFailed, queue.TopicFinished} {
		topic := topic
		bus.Subscribe(topic, func(payload any) error {
			r.mu.Lock()
			r.events = append(r.events, topic)
			r.ids = append(r.ids, payload)
			r.mu.Unlock()
			r.seen <- struct{}{}
			return nil
		})
	}
	return r
}

func (r *topicRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *topicRecorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d, got %v", i+1, r.snapshot())
		}
	}
	return r.snapshot()
}

type rig struct {
	bus        *eventbus.Bus
	loop       *eventbus.Loop
	dispatcher *dispatch.HTTPDispatcher
	events     *topicRecorder
}

func newRig(t *testing.T, handler http.Handler) *rig {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithServer(srv.URL))
	cfg.Server.APIToken = "secret"
	bus := eventbus.New(logging.NewNop())
	loop := eventbus.NewLoop(bus, 16, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	r := &rig{
		bus:        bus,
		loop:       loop,
		dispatcher: dispatch.NewHTTP(cfg, loop, bus, logging.NewNop()),
		events:     newTopicRecorder(bus),
	}
	t.Cleanup(func() {
		r.dispatcher.Wait()
		cancel()
		<-done
	})
	return r
}

func payload(t *testing.T, method, path string, body any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	encoded, err := dispatch.Request{Method: method, Path: path, Body: raw}.Encode()
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return encoded
}

func TestDispatchSuccessReportsSuccessThenFinished(t *testing.T) {
	var gotMethod, gotPath, gotKey, gotAuth, gotBody string
	r := newRig(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		gotMethod, gotPath, gotBody = req.Method, req.URL.Path, string(body)
		gotKey = req.Header.Get("Idempotency-Key")
		gotAuth = req.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))

	r.dispatcher.Dispatch(context.Background(), queue.Action{
		ID:      "act-1",
		Payload: payload(t, "post", "/api/v2/cases", map[string]any{"name": "x"}),
	})

	events := r.events.waitFor(t, 2)
	if len(events) != 2 || events[0] != queue.TopicSuccess || events[1] != queue.TopicFinished {
		t.Fatalf("unexpected events %v", events)
	}
	if r.events.ids[1] != "act-1" {
		t.Fatalf("expected finished payload act-1, got %v", r.events.ids[1])
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v2/cases" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotKey != "act-1" {
		t.Fatalf("expected idempotency key act-1, got %q", gotKey)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotBody != `{"name":"x"}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestDispatchStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   []string
	}{
		{name: "server error retries", status: http.StatusBadGateway, want: []string{queue.TopicFailed}},
		{name: "rate limited retries", status: http.StatusTooManyRequests, want: []string{queue.TopicFailed}},
		{name: "request timeout retries", status: http.StatusRequestTimeout, want: []string{queue.TopicFailed}},
		{name: "validation error finishes", status: http.StatusUnprocessableEntity, want: []string{queue.TopicFinished}},
		{name: "not found finishes", status: http.StatusNotFound, want: []string{queue.TopicFinished}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			r.dispatcher.Dispatch(context.Background(), queue.Action{ID: "a", Payload: payload(t, "PATCH", "/x", nil)})
			got := r.events.waitFor(t, len(tc.want))
			if len(got) != len(tc.want) || got[0] != tc.want[0] {
				t.Fatalf("status %d: got %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestDispatchUndecodablePayloadSkips(t *testing.T) {
	r := newRig(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("server should not be contacted")
	}))
	r.dispatcher.Dispatch(context.Background(), queue.Action{ID: "bad", Payload: json.RawMessage(`{"verb":"GET"}`)})
	got := r.events.waitFor(t, 1)
	if got[0] != queue.TopicSkip {
		t.Fatalf("expected skip, got %v", got)
	}
}

func TestDispatchNetworkErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServer(url))
	bus := eventbus.New(logging.NewNop())
	loop := eventbus.NewLoop(bus, 4, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	events := newTopicRecorder(bus)

	d := dispatch.NewHTTP(cfg, loop, bus, logging.NewNop())
	d.Dispatch(context.Background(), queue.Action{ID: "a", Payload: payload(t, "POST", "/x", nil)})
	got := events.waitFor(t, 1)
	d.Wait()
	if got[0] != queue.TopicFailed {
		t.Fatalf("expected failed, got %v", got)
	}
}

func TestDispatchCanceledContextReportsNothing(t *testing.T) {
	release := make(chan struct{})
	r := newRig(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	r.dispatcher.Dispatch(ctx, queue.Action{ID: "a", Payload: payload(t, "POST", "/slow", nil)})
	cancel()
	r.dispatcher.Wait()

	// Flush the loop so any stray report would have been delivered.
	if err := r.loop.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("flush loop: %v", err)
	}
	if got := r.events.snapshot(); len(got) != 0 {
		t.Fatalf("expected no events after cancel, got %v", got)
	}
}

func TestDispatchDeadlineReportsFailure(t *testing.T) {
	release := make(chan struct{})
	r := newRig(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.dispatcher.Dispatch(ctx, queue.Action{ID: "a", Payload: payload(t, "POST", "/slow", nil)})
	got := r.events.waitFor(t, 1)
	if got[0] != queue.TopicFailed {
		t.Fatalf("expected failed after deadline, got %v", got)
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (n *recordingNotifier) Enqueue(note notifications.Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, note)
	n.mu.Unlock()
}

func TestEngineDrainsThroughHTTPDispatcher(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	r := newRig(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		paths = append(paths, req.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))

	notifier := &recordingNotifier{}
	engine, err := queue.New(context.Background(), nil, r.dispatcher, notifier, queue.WithLogger(logging.NewNop()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer engine.Close()
	engine.Subscribe(r.bus)

	actions := []queue.Action{
		{ID: "1", Payload: payload(t, "POST", "/one", nil)},
		{ID: "2", Payload: payload(t, "POST", "/two", nil)},
	}
	if err := r.loop.Post(context.Background(), queue.TopicAdd, actions); err != nil {
		t.Fatalf("post add: %v", err)
	}
	// success + finished per action
	r.events.waitFor(t, 4)

	var hasWork bool
	if err := r.loop.Do(context.Background(), func() { hasWork = engine.HasWork() }); err != nil {
		t.Fatalf("query engine: %v", err)
	}
	if hasWork {
		t.Fatal("expected queue to drain")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 2 || paths[0] != "/one" || paths[1] != "/two" {
		t.Fatalf("unexpected request order %v", paths)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.sent) != 1 || notifier.sent[0].Params["records"] != 2 {
		t.Fatalf("expected one drain notification for 2 records, got %+v", notifier.sent)
	}
}
