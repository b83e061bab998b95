package realtime

import (
	"context"
	"sync"
)

// Bus is the broadcast mechanism decoupling write handlers from live
// connections. Publish is fire-and-forget: the publisher never learns the
// outcome of delivery to any subscriber, and a group with no subscribers
// drops the frame silently.
type Bus interface {
	Publish(ctx context.Context, group string, frame []byte) error
	Subscribe(group string, handler func(frame []byte)) (cancel func(), err error)
}

// MemoryBus is an in-process Bus for single-node runs and tests. Handlers
// run synchronously on the publisher's goroutine, so frames published to a
// group arrive at each subscriber in publish order.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	groups map[string]map[int]func([]byte)
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{groups: make(map[string]map[int]func([]byte))}
}

// Publish delivers frame to every current subscriber of group.
func (b *MemoryBus) Publish(ctx context.Context, group string, frame []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.groups[group]))
	for _, h := range b.groups[group] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(frame)
	}
	return nil
}

// Subscribe registers handler for frames published to group. The returned
// cancel is idempotent.
func (b *MemoryBus) Subscribe(group string, handler func(frame []byte)) (func(), error) {
	b.mu.Lock()
	if b.groups[group] == nil {
		b.groups[group] = make(map[int]func([]byte))
	}
	id := b.nextID
	b.nextID++
	b.groups[group][id] = handler
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.groups[group], id)
			if len(b.groups[group]) == 0 {
				delete(b.groups, group)
			}
		})
	}
	return cancel, nil
}
