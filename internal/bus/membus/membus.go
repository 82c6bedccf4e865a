// Package membus is an in-process Bus for tests and single-binary runs.
// Publish delivers synchronously to every subscriber and redelivers on
// handler error, mimicking the at-least-once contract of the Redis bus.
package membus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus"
)

type MemoryBus struct {
	mu            sync.RWMutex
	handlers      map[string][]bus.Handler
	closed        bool
	maxDeliveries int
}

func New() *MemoryBus {
	return &MemoryBus{
		handlers:      make(map[string][]bus.Handler),
		maxDeliveries: 3,
	}
}

func (b *MemoryBus) Subscribe(topic string, h bus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	b.handlers[topic] = append(b.handlers[topic], h)
	return nil
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	handlers := append([]bus.Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		var err error
		for attempt := 1; attempt <= b.maxDeliveries; attempt++ {
			if err = h(ctx, payload); err == nil {
				break
			}
			log.Printf("Handler for %s failed (delivery %d): %v", topic, attempt, err)
		}
		if err != nil {
			return fmt.Errorf("handler for %s failed after %d deliveries: %v", topic, b.maxDeliveries, err)
		}
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}
