package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBrokerRetryThenDeadLetter(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	sub := Subscription{RoutingKey: "work", DeadLetterKey: "work.dead", Consumer: "c1"}

	if err := b.Publish(ctx, "work", Message{Body: []byte("x")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	var seen []int
	n := b.ProcessPending(ctx, sub, func(_ context.Context, m Message) Disposition {
		seen = append(seen, m.RetryCount())
		if m.RetryCount() >= 2 {
			return DeadLetter
		}
		return Retry
	})
	if n != 3 {
		t.Fatalf("deliveries=%d want 3", n)
	}
	for i, rc := range seen {
		if rc != i {
			t.Fatalf("delivery %d carried retry count %d", i, rc)
		}
	}
	dead := b.Published("work.dead")
	if len(dead) != 1 || dead[0].Header(HeaderOrigin) != "work" || dead[0].RetryCount() != 2 {
		t.Fatalf("unexpected dead letters %+v", dead)
	}
}

func TestMemoryBrokerFailPublish(t *testing.T) {
	b := NewMemoryBroker()
	boom := errors.New("broker down")
	b.FailPublish(boom)
	if err := b.Publish(context.Background(), "k", Message{}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	b.FailPublish(nil)
	if err := b.Publish(context.Background(), "k", Message{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := len(b.Published("k")); got != 1 {
		t.Fatalf("history=%d", got)
	}
}

func TestMemoryBrokerConsumeWakesOnPublish(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Consume(ctx, Subscription{RoutingKey: "k", Consumer: "c"}, func(_ context.Context, m Message) Disposition {
			got <- string(m.Body)
			return Ack
		})
	}()

	time.Sleep(10 * time.Millisecond)
	_ = b.Publish(ctx, "k", Message{Body: []byte("hello")})
	select {
	case body := <-got:
		if body != "hello" {
			t.Fatalf("body=%q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer never woke up")
	}
	cancel()
	<-done
}

func TestMessageRetryCount(t *testing.T) {
	m := Message{Headers: map[string]string{HeaderRetryCount: "garbage"}}
	if m.RetryCount() != 0 {
		t.Fatalf("unparsable header must read as 0")
	}
	next := m.NextAttempt()
	if next.RetryCount() != 1 || m.Headers[HeaderRetryCount] != "garbage" {
		t.Fatalf("NextAttempt must copy headers, got %v / %v", next.Headers, m.Headers)
	}
}
