package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/maniartech/signals"
)

type Kind string

// TopicKey ties a topic name to its payload type at compile time.
type TopicKey[T any] interface {
	Name() Kind
}

type topicKey[T any] struct {
	name Kind
}

func (t topicKey[T]) Name() Kind {
	return t.name
}

func NewTopicKey[T any](name Kind) TopicKey[T] {
	return topicKey[T]{name: name}
}

var (
	lock        sync.RWMutex
	subscribers = make(map[Kind]*signals.AsyncSignal[any])
)

// NewPublish returns the emit function for a topic, creating the
// underlying signal on first use. Emission is asynchronous; publishers
// never block on slow subscribers.
func NewPublish[T any](topic TopicKey[T]) func(ctx context.Context, payload T) {
	lock.Lock()
	defer lock.Unlock()

	sig, ok := subscribers[topic.Name()]
	if !ok {
		sig = signals.New[any]()
		subscribers[topic.Name()] = sig
	}

	return func(ctx context.Context, payload T) {
		sig.Emit(ctx, payload)
	}
}

// Subscribe attaches a handler to an already-published topic.
func Subscribe[T any](topic TopicKey[T], handler func(ctx context.Context, payload T)) error {
	lock.RLock()
	defer lock.RUnlock()

	if sig, ok := subscribers[topic.Name()]; ok {
		sig.AddListener(func(ctx context.Context, payload any) {
			handler(ctx, payload.(T))
		})
		return nil
	}

	return fmt.Errorf("topic %s not found", topic.Name())
}
