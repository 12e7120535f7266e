package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"syncqueue/internal/config"
	"syncqueue/internal/logging"
	"syncqueue/internal/queue"
)

const userAgent = "syncqueue/0.1.0"

// Loop runs a function on the engine's goroutine.
type Loop interface {
	Do(ctx context.Context, fn func()) error
}

// Publisher delivers topics to the engine's handlers.
type Publisher interface {
	Publish(topic string, payload any) error
}

// HTTPDispatcher implements queue.Dispatcher over net/http.
type HTTPDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
	loop    Loop
	bus     Publisher
	logger  *slog.Logger
	wg      sync.WaitGroup
}

var _ queue.Dispatcher = (*HTTPDispatcher)(nil)

// NewHTTP builds a dispatcher for the configured server. Outcomes are
// published to bus from inside loop.
func NewHTTP(cfg *config.Config, loop Loop, bus Publisher, logger *slog.Logger) *HTTPDispatcher {
	timeout := 30 * time.Second
	baseURL := ""
	token := ""
	if cfg != nil {
		if t := cfg.RequestTimeout(); t > 0 {
			timeout = t
		}
		baseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
		token = strings.TrimSpace(cfg.Server.APIToken)
	}
	return &HTTPDispatcher{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		loop:    loop,
		bus:     bus,
		logger:  logging.NewComponentLogger(logger, "dispatch"),
	}
}

// Dispatch starts the request in the background and returns immediately.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, action queue.Action) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, action)
	}()
}

// Wait blocks until every started dispatch has returned.
func (d *HTTPDispatcher) Wait() {
	d.wg.Wait()
}

type event struct {
	topic   string
	payload any
}

func (d *HTTPDispatcher) run(ctx context.Context, action queue.Action) {
	logger := d.logger.With(logging.String(logging.FieldActionID, action.ID))

	req, err := DecodeRequest(action.Payload)
	if err != nil {
		logging.WarnWithContext(logger, "skipping undecodable action", "dispatch_invalid_payload",
			logging.Error(err),
			logging.String(logging.FieldImpact, "action removed without reaching the server"),
			logging.String(logging.FieldErrorHint, "payload must be {method, path, body}"))
		d.report(ctx, logger, event{topic: queue.TopicSkip})
		return
	}

	status, err := d.send(ctx, action.ID, req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Debug("dispatch canceled", logging.Error(err))
			return
		}
		logging.WarnWithContext(logger, "dispatch failed", "dispatch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "action will be retried"),
			logging.String(logging.FieldErrorHint, "check server.base_url reachability"))
		d.report(ctx, logger, event{topic: queue.TopicFailed})
		return
	}

	outcome := Classify(status)
	logger.Info("dispatch completed",
		logging.String("method", req.Method),
		logging.String("path", req.Path),
		logging.Int("status", status),
		logging.String("outcome", outcome.String()))

	switch outcome {
	case OutcomeSuccess:
		d.report(ctx, logger,
			event{topic: queue.TopicSuccess},
			event{topic: queue.TopicFinished, payload: action.ID})
	case OutcomeReject:
		logging.WarnWithContext(logger, "server rejected action", "dispatch_rejected",
			logging.Int("status", status),
			logging.String(logging.FieldImpact, "action removed without being applied"),
			logging.String(logging.FieldErrorHint, "inspect the server logs for the rejected request"))
		d.report(ctx, logger, event{topic: queue.TopicFinished, payload: action.ID})
	default:
		d.report(ctx, logger, event{topic: queue.TopicFailed})
	}
}

func (d *HTTPDispatcher) send(ctx context.Context, id string, r Request) (int, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, d.baseURL+r.Path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", id)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, nil
}

// report publishes events on the loop goroutine unless the dispatch was
// superseded in the meantime.
func (d *HTTPDispatcher) report(ctx context.Context, logger *slog.Logger, events ...event) {
	err := d.loop.Do(context.Background(), func() {
		if queue.Superseded(ctx) {
			logger.Debug("discarding outcome of superseded dispatch")
			return
		}
		for _, ev := range events {
			// The bus logs handler faults itself.
			_ = d.bus.Publish(ev.topic, ev.payload)
		}
	})
	if err != nil {
		logger.Debug("outcome not delivered", logging.Error(err))
	}
}
