package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type SSEEvent string

const (
	SSEEventScanAccepted         SSEEvent = "ScanAccepted"
	SSEEventCycleCompleted       SSEEvent = "CycleCompleted"
	SSEEventCycleConfigured      SSEEvent = "CycleConfigured"
	SSEEventCycleConfigFailed    SSEEvent = "CycleConfigurationFailed"
	SSEEventSessionStatusChanged SSEEvent = "SessionStatusChanged"
	SSEEventSessionFinalized     SSEEvent = "SessionFinalized"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// SessionChannel is the channel every notification about a session goes to.
func SessionChannel(sessionID uuid.UUID) string {
	return "aggregation:session:" + sessionID.String()
}

const outboundBuffer = 32

// SSEClient is one connected stream. Outbound is closed when the client is
// disconnected; anything still buffered remains readable.
type SSEClient struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	Logger   *logger.Logger

	done chan struct{}
	once sync.Once
}

type clientSet map[*SSEClient]struct{}

// SSEHub routes messages to the clients subscribed on a channel. Closed
// channels stay closed for the life of the process.
type SSEHub struct {
	logger *logger.Logger

	mu     sync.RWMutex
	subs   map[string]clientSet
	closed map[string]struct{}
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger: log.With("component", "SSEHub"),
		subs:   map[string]clientSet{},
		closed: map[string]struct{}{},
	}
}

func (hub *SSEHub) NewSSEClient() *SSEClient {
	id := uuid.New()
	return &SSEClient{
		ID:       id,
		Channels: map[string]bool{},
		Outbound: make(chan SSEMessage, outboundBuffer),
		Logger:   hub.logger.With("client_id", id),
		done:     make(chan struct{}),
	}
}

// AddChannel subscribes client to channel. It returns false for blank or
// closed channels.
func (hub *SSEHub) AddChannel(client *SSEClient, channel string) bool {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return false
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if _, gone := hub.closed[channel]; gone {
		return false
	}
	set := hub.subs[channel]
	if set == nil {
		set = clientSet{}
		hub.subs[channel] = set
	}
	set[client] = struct{}{}
	client.Channels[channel] = true
	hub.logger.Debug("client subscribed", "client_id", client.ID, "channel", channel)
	return true
}

// unsubscribeLocked drops client from channel. Caller holds hub.mu.
func (hub *SSEHub) unsubscribeLocked(client *SSEClient, channel string) {
	if set, ok := hub.subs[channel]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(hub.subs, channel)
		}
	}
	delete(client.Channels, channel)
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for ch := range client.Channels {
		hub.unsubscribeLocked(client, ch)
	}
}

// Broadcast never blocks; a client whose buffer is full misses the message.
func (hub *SSEHub) Broadcast(msg SSEMessage) {
	if msg.Channel == "" {
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.subs[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			hub.logger.Warn("outbound buffer full, dropping message", "client_id", c.ID, "event", msg.Event)
		}
	}
}

// CloseChannel ends every subscription to channel and refuses new ones.
// Clients left without channels are disconnected. It returns how many were
// disconnected; repeated calls return 0.
func (hub *SSEHub) CloseChannel(channel string) int {
	hub.mu.Lock()
	if _, gone := hub.closed[channel]; gone {
		hub.mu.Unlock()
		return 0
	}
	hub.closed[channel] = struct{}{}
	var orphaned []*SSEClient
	for c := range hub.subs[channel] {
		hub.unsubscribeLocked(c, channel)
		if len(c.Channels) == 0 {
			orphaned = append(orphaned, c)
		}
	}
	hub.mu.Unlock()

	for _, c := range orphaned {
		hub.CloseClient(c)
	}
	hub.logger.Debug("channel closed", "channel", channel, "disconnected", len(orphaned))
	return len(orphaned)
}

// Deliver is the bus forwarder entry point. A finalized session's channel is
// closed right after its last message goes out.
func (hub *SSEHub) Deliver(msg SSEMessage) {
	hub.Broadcast(msg)
	if msg.Event == SSEEventSessionFinalized {
		hub.CloseChannel(msg.Channel)
	}
}

// CloseAll disconnects every client without marking channels closed.
func (hub *SSEHub) CloseAll() int {
	hub.mu.RLock()
	all := clientSet{}
	for _, set := range hub.subs {
		for c := range set {
			all[c] = struct{}{}
		}
	}
	hub.mu.RUnlock()

	for c := range all {
		hub.CloseClient(c)
	}
	return len(all)
}

func (hub *SSEHub) ChannelClosed(channel string) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	_, gone := hub.closed[channel]
	return gone
}

// CloseClient disconnects client. Idempotent.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	client.once.Do(func() {
		close(client.done)
		hub.RemoveClient(client)
		close(client.Outbound)
	})
}
