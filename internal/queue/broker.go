// Package queue is the durable message transport between the scan path and
// the configuration consumer. Delivery is at-least-once; redelivery state
// travels in message headers.
package queue

import (
	"context"
	"strconv"
	"strings"
)

const (
	HeaderRetryCount    = "x-retry-count"
	HeaderCorrelationID = "x-correlation-id"
	HeaderOrigin        = "x-origin-routing-key"
)

type Message struct {
	ID         string            `json:"id,omitempty"`
	RoutingKey string            `json:"routing_key"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body"`
}

// RetryCount is the number of times this message was already redelivered.
func (m Message) RetryCount() int {
	if m.Headers == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(m.Headers[HeaderRetryCount]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (m Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// cloneWith copies headers so the original delivery stays untouched.
func (m Message) cloneWith(kv ...string) Message {
	out := Message{RoutingKey: m.RoutingKey, Body: m.Body, Headers: make(map[string]string, len(m.Headers)+len(kv)/2)}
	for k, v := range m.Headers {
		out.Headers[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out.Headers[kv[i]] = kv[i+1]
	}
	return out
}

// NextAttempt is the redelivery of m with the retry counter incremented.
func (m Message) NextAttempt() Message {
	return m.cloneWith(HeaderRetryCount, strconv.Itoa(m.RetryCount()+1))
}

type Disposition int

const (
	Ack Disposition = iota
	Retry
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case DeadLetter:
		return "deadletter"
	default:
		return "unknown"
	}
}

// Handler decides what happens to a delivery. Returning Retry republishes the
// message with an incremented retry header; DeadLetter moves it to the
// subscription's dead-letter key.
type Handler func(ctx context.Context, msg Message) Disposition

type Subscription struct {
	RoutingKey    string
	DeadLetterKey string
	Consumer      string
}

type Broker interface {
	Publish(ctx context.Context, routingKey string, msg Message) error
	// Consume blocks, delivering messages to h until ctx is done.
	Consume(ctx context.Context, sub Subscription, h Handler) error
	Close() error
}
