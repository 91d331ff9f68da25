package aggregation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	aggrepo "github.com/yungbote/aggregation-backend/internal/data/repos/aggregation"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/ctxutil"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

// CycleSink receives completed cycles. Enqueue must not block.
type CycleSink interface {
	Enqueue(ev domainagg.CycleCompletionEvent)
}

// Tracker records accepted scans with a single conditional update per attempt
// and derives cycle completion from the post-commit arrays.
type Tracker interface {
	Commit(ctx context.Context, session *types.AggregationSession, value string, role domainagg.Role) (*types.AggregationSession, *domainagg.CycleCompletion, error)
}

type tracker struct {
	log      *logger.Logger
	sessions aggrepo.SessionRepo
	sink     CycleSink
	now      func() time.Time
}

func NewTracker(baseLog *logger.Logger, sessions aggrepo.SessionRepo, sink CycleSink) Tracker {
	return &tracker{
		log:      baseLog.With("service", "CycleTracker"),
		sessions: sessions,
		sink:     sink,
		now:      time.Now,
	}
}

func (t *tracker) Commit(ctx context.Context, session *types.AggregationSession, value string, role domainagg.Role) (*types.AggregationSession, *domainagg.CycleCompletion, error) {
	ctx, span := observability.Tracer().Start(ctx, "aggregation.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", session.ID.String()),
		attribute.String("scan.role", string(role)),
	)

	dbc := dbctx.Context{Ctx: ctx}
	updated, applied, err := t.sessions.CommitCode(dbc, session.ID, value, role)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if !applied {
		// Another scan moved the session between validation and commit.
		observability.Current().IncCommitConflict()
		fresh, err := t.sessions.GetByID(dbc, session.ID)
		if err != nil {
			return nil, nil, err
		}
		if err := domainagg.CheckCommit(fresh, value, role); err != nil {
			return fresh, nil, err
		}
		updated, applied, err = t.sessions.CommitCode(dbc, session.ID, value, role)
		if err != nil {
			return nil, nil, err
		}
		if !applied {
			fresh, err = t.sessions.GetByID(dbc, session.ID)
			if err != nil {
				return nil, nil, err
			}
			if err := domainagg.CheckCommit(fresh, value, role); err != nil {
				return fresh, nil, err
			}
			return fresh, nil, domainagg.NewError(domainagg.KindInconsistentState, "commit of %s did not apply", value)
		}
	}

	if role != domainagg.RoleParent {
		return updated, nil, nil
	}

	completion, err := domainagg.CompletionAfterParent(updated, value)
	if err != nil {
		t.log.Error("cycle completion not derivable after parent commit",
			"session_id", updated.ID,
			"parent_code", value,
			"error", err,
		)
		return updated, nil, err
	}
	observability.Current().IncCycleCompleted(string(completion.Level))
	span.SetAttributes(attribute.Int("cycle.number", completion.CycleNumber))

	ev := domainagg.NewCycleCompletionEvent(updated, completion, ctxutil.CorrelationID(ctx), t.now())
	if t.sink != nil {
		t.sink.Enqueue(ev)
	}
	t.log.Info("cycle completed",
		"session_id", updated.ID,
		"cycle_number", completion.CycleNumber,
		"parent_code", completion.ParentCode,
		"event_id", ev.EventID,
	)
	return updated, completion, nil
}
