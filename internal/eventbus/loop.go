package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"syncqueue/internal/logging"
)

// ErrLoopStopped is returned when posting to a loop that is no longer running.
var ErrLoopStopped = errors.New("eventbus: loop stopped")

type envelope struct {
	topic   string
	payload any
	fn      func()
	done    chan struct{}
}

// Loop serializes bus delivery onto one goroutine.
type Loop struct {
	bus    *Bus
	events chan envelope
	logger *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewLoop creates a loop publishing to bus with room for size pending events.
func NewLoop(bus *Bus, size int, logger *slog.Logger) *Loop {
	if size <= 0 {
		size = 1
	}
	return &Loop{
		bus:     bus,
		events:  make(chan envelope, size),
		logger:  logging.NewComponentLogger(logger, "eventloop"),
		stopped: make(chan struct{}),
	}
}

// Post schedules topic to be published on the loop goroutine.
func (l *Loop) Post(ctx context.Context, topic string, payload any) error {
	return l.enqueue(ctx, envelope{topic: topic, payload: payload})
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.enqueue(ctx, envelope{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		// Run may have handled the envelope just before exiting.
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}
	select {
	case l.events <- env:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers events in FIFO order until ctx is canceled. A loop runs once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-l.events:
			l.handle(env)
		}
	}
}

func (l *Loop) handle(env envelope) {
	if env.fn != nil {
		defer close(env.done)
		defer func() {
			if rec := recover(); rec != nil {
				l.logger.Error("loop task panicked", logging.Any("panic", rec))
			}
		}()
		env.fn()
		return
	}
	l.logger.Debug("delivering event", logging.String(logging.FieldTopic, env.topic))
	// Publish already logs each handler fault.
	_ = l.bus.Publish(env.topic, env.payload)
}
