package aggregation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	aggrepo "github.com/yungbote/aggregation-backend/internal/data/repos/aggregation"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/ctxutil"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

// EventSink is the publisher side the finalizer needs.
type EventSink interface {
	CycleSink
	EnqueueSessionClosed(ev domainagg.SessionClosedEvent)
}

type Finalizer interface {
	Finalize(ctx context.Context, sessionID uuid.UUID) (*types.AggregationSession, error)
}

type finalizer struct {
	log      *logger.Logger
	sessions aggrepo.SessionRepo
	events   EventSink
	notify   Notifier
	now      func() time.Time
}

func NewFinalizer(baseLog *logger.Logger, sessions aggrepo.SessionRepo, events EventSink, notify Notifier) Finalizer {
	return &finalizer{
		log:      baseLog.With("service", "FinalizationController"),
		sessions: sessions,
		events:   events,
		notify:   notify,
		now:      time.Now,
	}
}

func (f *finalizer) Finalize(ctx context.Context, sessionID uuid.UUID) (*types.AggregationSession, error) {
	ctx, span := observability.Tracer().Start(ctx, "aggregation.finalize")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID.String()))

	dbc := dbctx.Context{Ctx: ctx}
	s, err := f.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domainagg.NewError(domainagg.KindSessionNotFound, "session %s not found", sessionID)
	}
	if err := domainagg.CheckFinalizable(s); err != nil {
		return nil, err
	}
	if _, err := domainagg.NextStatus(s.Status, domainagg.EventFinalize); err != nil {
		return nil, err
	}

	finalized, applied, err := f.sessions.Finalize(dbc, s.ID, s.TotalOuters(), s.TotalParents(), f.now().UTC())
	if err != nil {
		return nil, err
	}
	if !applied {
		// A scan or status change landed after the checks; report against fresh state.
		fresh, err := f.sessions.GetByID(dbc, sessionID)
		if err != nil {
			return nil, err
		}
		if err := domainagg.CheckFinalizable(fresh); err != nil {
			return nil, err
		}
		return nil, domainagg.NewError(domainagg.KindInconsistentState, "session %s changed during finalization; retry", sessionID)
	}

	now := f.now()
	correlationID := ctxutil.CorrelationID(ctx)
	if f.events != nil {
		f.events.EnqueueSessionClosed(domainagg.NewSessionClosedEvent(finalized, now))
		if ev, ok := domainagg.PalletClosureEvent(finalized, correlationID, now); ok {
			f.events.Enqueue(ev)
		}
	}
	if f.notify != nil {
		f.notify.Finalized(ctx, finalized)
	}
	observability.Current().IncSessionEvent("finalized")
	f.log.Info("session finalized",
		"session_id", finalized.ID,
		"aggregation_type", finalized.AggregationType,
		"total_outers", finalized.TotalOuters(),
		"total_parents", finalized.TotalParents(),
	)
	return finalized, nil
}
