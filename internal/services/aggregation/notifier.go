package aggregation

import (
	"context"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/realtime"
	"github.com/yungbote/aggregation-backend/internal/realtime/bus"
)

// Notifier pushes session progress to realtime subscribers. Delivery is best
// effort and never affects the operation that triggered it.
type Notifier interface {
	ScanAccepted(ctx context.Context, s *types.AggregationSession, role domainagg.Role, value string)
	CycleCompleted(ctx context.Context, s *types.AggregationSession, c *domainagg.CycleCompletion)
	CycleResult(ctx context.Context, ev domainagg.ConfigurationResultEvent)
	StatusChanged(ctx context.Context, s *types.AggregationSession)
	Finalized(ctx context.Context, s *types.AggregationSession)
}

type notifier struct {
	log *logger.Logger
	bus bus.Bus
	hub *realtime.SSEHub
}

// NewNotifier publishes through b; messages that cannot reach the bus are
// delivered to the local hub instead.
func NewNotifier(baseLog *logger.Logger, b bus.Bus, hub *realtime.SSEHub) Notifier {
	return &notifier{
		log: baseLog.With("service", "SessionNotifier"),
		bus: b,
		hub: hub,
	}
}

func (n *notifier) send(ctx context.Context, msg realtime.SSEMessage) {
	if n.bus != nil {
		err := n.bus.Publish(context.WithoutCancel(ctx), msg)
		if err == nil {
			return
		}
		n.log.Warn("realtime bus publish failed; delivering locally", "event", msg.Event, "channel", msg.Channel, "error", err)
	}
	if n.hub != nil {
		n.hub.Deliver(msg)
	}
}

func (n *notifier) ScanAccepted(ctx context.Context, s *types.AggregationSession, role domainagg.Role, value string) {
	n.send(ctx, realtime.SSEMessage{
		Channel: realtime.SessionChannel(s.ID),
		Event:   realtime.SSEEventScanAccepted,
		Data: map[string]any{
			"session_id": s.ID,
			"code":       value,
			"role":       role,
			"state":      domainagg.StateOf(s),
		},
	})
}

func (n *notifier) CycleCompleted(ctx context.Context, s *types.AggregationSession, c *domainagg.CycleCompletion) {
	n.send(ctx, realtime.SSEMessage{
		Channel: realtime.SessionChannel(s.ID),
		Event:   realtime.SSEEventCycleCompleted,
		Data: map[string]any{
			"session_id": s.ID,
			"cycle":      c,
		},
	})
}

func (n *notifier) CycleResult(ctx context.Context, ev domainagg.ConfigurationResultEvent) {
	event := realtime.SSEEventCycleConfigured
	if !ev.Success {
		event = realtime.SSEEventCycleConfigFailed
	}
	n.send(ctx, realtime.SSEMessage{
		Channel: realtime.SessionChannel(ev.SessionID),
		Event:   event,
		Data:    ev,
	})
}

func (n *notifier) StatusChanged(ctx context.Context, s *types.AggregationSession) {
	n.send(ctx, realtime.SSEMessage{
		Channel: realtime.SessionChannel(s.ID),
		Event:   realtime.SSEEventSessionStatusChanged,
		Data: map[string]any{
			"session_id": s.ID,
			"status":     s.Status,
		},
	})
}

func (n *notifier) Finalized(ctx context.Context, s *types.AggregationSession) {
	n.send(ctx, realtime.SSEMessage{
		Channel: realtime.SessionChannel(s.ID),
		Event:   realtime.SSEEventSessionFinalized,
		Data:    s,
	})
}
