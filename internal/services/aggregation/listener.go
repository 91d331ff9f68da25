package aggregation

import (
	"context"
	"encoding/json"
	"time"

	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/queue"
)

// ResultListener forwards configuration results to realtime subscribers.
type ResultListener struct {
	log    *logger.Logger
	notify Notifier
}

func NewResultListener(baseLog *logger.Logger, notify Notifier) *ResultListener {
	return &ResultListener{
		log:    baseLog.With("component", "ResultListener"),
		notify: notify,
	}
}

func (l *ResultListener) Subscription(consumer string) queue.Subscription {
	return queue.Subscription{
		RoutingKey: domainagg.RoutingCycleResult,
		Consumer:   consumer,
	}
}

func (l *ResultListener) Handle(ctx context.Context, msg queue.Message) queue.Disposition {
	start := time.Now()
	var ev domainagg.ConfigurationResultEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		l.log.Warn("undecodable result event; dropping", "message_id", msg.ID, "error", err)
		observability.Current().ObserveConsumed(msg.RoutingKey, queue.Ack.String(), time.Since(start))
		return queue.Ack
	}
	if l.notify != nil {
		l.notify.CycleResult(ctx, ev)
	}
	if !ev.Success {
		l.log.Warn("cycle configuration failed",
			"session_id", ev.SessionID,
			"parent_code", ev.ParentCode,
			"attempts", ev.Attempts,
			"error", ev.ErrorMessage,
		)
	}
	observability.Current().ObserveConsumed(msg.RoutingKey, queue.Ack.String(), time.Since(start))
	return queue.Ack
}
