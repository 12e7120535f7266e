package eventbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"syncqueue/internal/logging"
)

// ErrHandlerPanic wraps a panic recovered from a subscriber.
var ErrHandlerPanic = errors.New("eventbus: handler panic")

// Handler consumes a published payload. Payload is nil for topics that carry none.
type Handler func(payload any) error

// Bus is a synchronous publish/subscribe channel keyed by topic name.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logging.NewComponentLogger(logger, "eventbus"),
	}
}

// Subscribe registers handler for topic. Handlers accumulate and are never removed.
func (b *Bus) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish invokes every handler registered for topic in registration order.
// It returns the joined faults of the handlers that failed.
func (b *Bus) Publish(topic string, payload any) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	var errs []error
	for i, handler := range handlers {
		if err := invoke(handler, payload); err != nil {
			b.logger.Error("event handler failed",
				logging.String(logging.FieldTopic, topic),
				logging.Int("handler", i),
				logging.Error(err))
			errs = append(errs, fmt.Errorf("%s handler %d: %w", topic, i, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribers reports how many handlers are registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

func invoke(handler Handler, payload any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return handler(payload)
}
