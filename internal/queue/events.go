package queue

import (
	"fmt"

	"syncqueue/internal/eventbus"
)

// Bus topics consumed by the engine.
const (
	TopicAdd      = "queue.add"
	TopicSkip     = "queue.skip"
	TopicSuccess  = "queue.success"
	TopicFailed   = "queue.failed"
	TopicFinished = "queue.finished"
)

// Subscriber is the subscription half of eventbus.Bus.
type Subscriber interface {
	Subscribe(topic string, handler eventbus.Handler)
}

// Subscribe registers the engine's handlers for the queue topics.
func (e *Engine) Subscribe(bus Subscriber) {
	bus.Subscribe(TopicAdd, e.handleAdd)
	bus.Subscribe(TopicSkip, func(any) error {
		e.OnSkip()
		return nil
	})
	bus.Subscribe(TopicSuccess, func(any) error {
		e.OnSuccess()
		return nil
	})
	bus.Subscribe(TopicFailed, func(any) error {
		e.OnFailure()
		return nil
	})
	bus.Subscribe(TopicFinished, func(payload any) error {
		id, _ := payload.(string)
		e.OnFinished(id)
		return nil
	})
}

func (e *Engine) handleAdd(payload any) error {
	switch v := payload.(type) {
	case Action:
		e.Add([]Action{v})
	case *Action:
		if v == nil {
			return fmt.Errorf("%w: nil action", ErrInvalidPayload)
		}
		e.Add([]Action{*v})
	case []Action:
		e.Add(v)
	default:
		return fmt.Errorf("%w: %s expects an action, got %T", ErrInvalidPayload, TopicAdd, payload)
	}
	return nil
}
