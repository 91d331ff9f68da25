package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryBroker is an in-process Broker. It keeps every published message so
// tests can assert on what flowed through each routing key.
type MemoryBroker struct {
	mu          sync.Mutex
	seq         int64
	pending     map[string][]Message
	history     map[string][]Message
	wake        chan struct{}
	failPublish error
	closed      bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		pending: map[string][]Message{},
		history: map[string][]Message{},
		wake:    make(chan struct{}),
	}
}

var _ Broker = (*MemoryBroker)(nil)

// FailPublish makes every Publish return err until called again with nil.
func (b *MemoryBroker) FailPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPublish = err
}

func (b *MemoryBroker) Publish(_ context.Context, routingKey string, msg Message) error {
	return b.publish(routingKey, msg, false)
}

// publish with settle=true ignores injected failures; settlement is broker-internal.
func (b *MemoryBroker) publish(routingKey string, msg Message, settle bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("broker closed")
	}
	if b.failPublish != nil && !settle {
		return b.failPublish
	}
	b.seq++
	out := msg.cloneWith()
	out.ID = strconv.FormatInt(b.seq, 10)
	out.RoutingKey = routingKey
	b.pending[routingKey] = append(b.pending[routingKey], out)
	b.history[routingKey] = append(b.history[routingKey], out)
	close(b.wake)
	b.wake = make(chan struct{})
	return nil
}

func (b *MemoryBroker) pop(routingKey string) (Message, bool, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.pending[routingKey]
	if len(q) == 0 {
		return Message{}, false, b.wake
	}
	msg := q[0]
	b.pending[routingKey] = q[1:]
	return msg, true, nil
}

func (b *MemoryBroker) settle(sub Subscription, msg Message, disp Disposition) {
	switch disp {
	case Retry:
		_ = b.publish(sub.RoutingKey, msg.NextAttempt(), true)
	case DeadLetter:
		if sub.DeadLetterKey != "" {
			_ = b.publish(sub.DeadLetterKey, msg.cloneWith(HeaderOrigin, sub.RoutingKey), true)
		}
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, sub Subscription, h Handler) error {
	if h == nil {
		return fmt.Errorf("handler required")
	}
	for {
		msg, ok, wait := b.pop(sub.RoutingKey)
		if ok {
			b.settle(sub, msg, h(ctx, msg))
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-wait:
		}
	}
}

// ProcessPending synchronously drains routingKey, including retries the
// handler produces along the way. It returns the number of deliveries made.
func (b *MemoryBroker) ProcessPending(ctx context.Context, sub Subscription, h Handler) int {
	n := 0
	for {
		msg, ok, _ := b.pop(sub.RoutingKey)
		if !ok {
			return n
		}
		n++
		b.settle(sub, msg, h(ctx, msg))
	}
}

// Published returns a copy of everything ever published on routingKey.
func (b *MemoryBroker) Published(routingKey string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.history[routingKey]))
	copy(out, b.history[routingKey])
	return out
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
