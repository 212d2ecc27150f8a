// Package feed is an in-process, per-topic fan-out used to give stores without
// a native change feed a live subscription.
package feed

import (
	"context"
	"sync"
)

const DefaultBuffer = 64

// Broker delivers each published value to every current subscriber of a
// topic. Delivery never blocks the publisher: a subscriber whose buffer is
// full misses the value.
type Broker[T any] struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription[T]]struct{}
	buffer int
	onDrop func(topic string)
}

type Subscription[T any] struct {
	broker *Broker[T]
	topic  string
	ch     chan T
	done   chan struct{}
	once   sync.Once
}

func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker[T]{
		topics: make(map[string]map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// OnDrop registers a hook called whenever a value is dropped for a slow subscriber.
func (b *Broker[T]) OnDrop(fn func(topic string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe registers for topic until ctx ends or Close is called.
func (b *Broker[T]) Subscribe(ctx context.Context, topic string) *Subscription[T] {
	sub := &Subscription[T]{
		broker: b,
		topic:  topic,
		ch:     make(chan T, b.buffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription[T]]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub
}

// Publish returns how many subscribers received v.
func (b *Broker[T]) Publish(topic string, v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- v:
			delivered++
		default:
			if b.onDrop != nil {
				b.onDrop(topic)
			}
		}
	}
	return delivered
}

func (b *Broker[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Broker[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	close(sub.ch)
}

func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call twice.
func (s *Subscription[T]) Close() error {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
	return nil
}
