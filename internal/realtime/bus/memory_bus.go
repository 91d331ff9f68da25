package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/aggregation-backend/internal/realtime"
)

// memoryBus loops messages back to local forwarders. Single-instance deployments
// and tests use it in place of Redis.
type memoryBus struct {
	mu        sync.RWMutex
	listeners []func(realtime.SSEMessage)
}

func NewMemoryBus() Bus {
	return &memoryBus{}
}

func (b *memoryBus) Publish(_ context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.listeners {
		fn(msg)
	}
	return nil
}

func (b *memoryBus) StartForwarder(_ context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, onMsg)
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = nil
	return nil
}
