package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := SessionChannel(uuid.New())

	clientA := hub.NewSSEClient()
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventScanAccepted, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventCycleCompleted, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventScanAccepted {
		t.Fatalf("first event: got=%s", got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventCycleCompleted {
		t.Fatalf("second event: got=%s", got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}

	clientB := hub.NewSSEClient()
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventCycleConfigured})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventCycleConfigured {
		t.Fatalf("reconnect event: got=%s", got.Event)
	}
}

func TestSSEHubCloseChannelIsIdempotent(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := SessionChannel(uuid.New())
	other := SessionChannel(uuid.New())

	only := hub.NewSSEClient()
	hub.AddChannel(only, channel)
	shared := hub.NewSSEClient()
	hub.AddChannel(shared, channel)
	hub.AddChannel(shared, other)

	if n := hub.CloseChannel(channel); n != 1 {
		t.Fatalf("expected one client disconnected, got %d", n)
	}
	if n := hub.CloseChannel(channel); n != 0 {
		t.Fatalf("second close must be a no-op, got %d", n)
	}
	if _, ok := <-only.Outbound; ok {
		t.Fatalf("client with no remaining channels must be closed")
	}

	hub.Broadcast(SSEMessage{Channel: other, Event: SSEEventSessionStatusChanged})
	if got := recvMessage(t, shared.Outbound, time.Second); got.Event != SSEEventSessionStatusChanged {
		t.Fatalf("shared client lost its other channel")
	}
	if hub.AddChannel(hub.NewSSEClient(), channel) {
		t.Fatalf("closed channel accepted a new subscriber")
	}
	if !hub.ChannelClosed(channel) {
		t.Fatalf("ChannelClosed=false")
	}
}

func TestSSEHubDeliverClosesFinalizedChannel(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := SessionChannel(uuid.New())

	client := hub.NewSSEClient()
	if !hub.AddChannel(client, channel) {
		t.Fatalf("AddChannel refused an open channel")
	}

	hub.Deliver(SSEMessage{Channel: channel, Event: SSEEventCycleConfigured})
	if msg := recvMessage(t, client.Outbound, time.Second); msg.Event != SSEEventCycleConfigured {
		t.Fatalf("event=%s want %s", msg.Event, SSEEventCycleConfigured)
	}
	if hub.ChannelClosed(channel) {
		t.Fatalf("channel closed before finalize")
	}

	hub.Deliver(SSEMessage{Channel: channel, Event: SSEEventSessionFinalized})
	if msg := recvMessage(t, client.Outbound, time.Second); msg.Event != SSEEventSessionFinalized {
		t.Fatalf("event=%s want %s", msg.Event, SSEEventSessionFinalized)
	}
	if !hub.ChannelClosed(channel) {
		t.Fatalf("finalized channel must be closed")
	}
}

func TestSSEHubCloseAllKeepsChannelsOpen(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := SessionChannel(uuid.New())

	a := hub.NewSSEClient()
	b := hub.NewSSEClient()
	hub.AddChannel(a, channel)
	hub.AddChannel(b, channel)

	if n := hub.CloseAll(); n != 2 {
		t.Fatalf("CloseAll disconnected %d clients, want 2", n)
	}
	if _, ok := <-a.Outbound; ok {
		t.Fatalf("client a outbound should be closed")
	}
	if hub.ChannelClosed(channel) {
		t.Fatalf("CloseAll must not mark the channel closed")
	}
	if !hub.AddChannel(hub.NewSSEClient(), channel) {
		t.Fatalf("new subscribers should still be accepted")
	}
}
