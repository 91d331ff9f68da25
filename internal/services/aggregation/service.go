package aggregation

import (
	"context"
	"strings"
	"time"

	"github.com/felixgeelhaar/statekit"
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

type StartInput struct {
	AggregationType      domainagg.Type `json:"aggregationType"`
	OutersPerAggregation int            `json:"outersPerAggregation"`
	PackagesPerPallet    int            `json:"packagesPerPallet,omitempty"`
	ProductID            uuid.UUID      `json:"productId"`
	CreatedBy            string         `json:"createdBy,omitempty"`
}

type ScanInput struct {
	SessionID   uuid.UUID `json:"sessionId"`
	ScannedCode string    `json:"scannedCode"`
	ActorID     string    `json:"actorId"`
}

// ScanResult is returned for every scan, accepted or not.
type ScanResult struct {
	Accepted  bool                       `json:"accepted"`
	Role      domainagg.Role             `json:"role,omitempty"`
	ErrorKind domainagg.ErrorKind        `json:"errorKind,omitempty"`
	Message   string                     `json:"message"`
	Session   *types.AggregationSession  `json:"session,omitempty"`
	State     domainagg.CycleState       `json:"state"`
	Cycle     *domainagg.CycleCompletion `json:"cycle,omitempty"`
}

type SessionService interface {
	Start(ctx context.Context, in StartInput) (*types.AggregationSession, error)
	Get(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error)
	Scan(ctx context.Context, in ScanInput) (*ScanResult, error)
	Finalize(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error)
	Pause(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error)
	Resume(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error)
	Close(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error)
}

type sessionService struct {
	log       *logger.Logger
	sessions  aggrepo.SessionRepo
	products  aggrepo.ProductRepo
	validator Validator
	tracker   Tracker
	finalizer Finalizer
	events    EventSink
	notify    Notifier
	now       func() time.Time
}

func NewSessionService(
	baseLog *logger.Logger,
	sessions aggrepo.SessionRepo,
	products aggrepo.ProductRepo,
	validator Validator,
	tracker Tracker,
	finalizer Finalizer,
	events EventSink,
	notify Notifier,
) SessionService {
	return &sessionService{
		log:       baseLog.With("service", "AggregationSessionService"),
		sessions:  sessions,
		products:  products,
		validator: validator,
		tracker:   tracker,
		finalizer: finalizer,
		events:    events,
		notify:    notify,
		now:       time.Now,
	}
}

func (s *sessionService) Start(ctx context.Context, in StartInput) (*types.AggregationSession, error) {
	if !in.AggregationType.Valid() {
		return nil, domainagg.NewError(domainagg.KindInvalidArgument, "unknown aggregation type %q", in.AggregationType)
	}
	if in.ProductID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.KindInvalidArgument, "productId is required")
	}
	if in.OutersPerAggregation < 0 || in.PackagesPerPallet < 0 {
		return nil, domainagg.NewError(domainagg.KindInvalidArgument, "quantities must not be negative")
	}

	product, err := s.products.GetByID(dbctx.Context{Ctx: ctx}, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domainagg.NewError(domainagg.KindProductNotFound, "product %s not found", in.ProductID)
	}

	sess := &types.AggregationSession{
		ID:                   uuid.New(),
		AggregationType:      in.AggregationType,
		OutersPerAggregation: in.OutersPerAggregation,
		ProductID:            product.ID,
		Status:               domainagg.StatusOpen,
		CreatedBy:            strings.TrimSpace(in.CreatedBy),
		ProcessedOuterCodes:  []string{},
		ProcessedParentCodes: []string{},
	}

	switch in.AggregationType {
	case domainagg.TypePackage:
		if product.OutersPerPackage <= 0 {
			return nil, domainagg.NewError(domainagg.KindInvalidArgument, "product %s declares no outers per package", product.ID)
		}
		if sess.OutersPerAggregation == 0 {
			sess.OutersPerAggregation = product.OutersPerPackage
		}
	case domainagg.TypePallet:
		if product.PackagesPerPallet <= 0 {
			return nil, domainagg.NewError(domainagg.KindInvalidArgument, "product %s declares no packages per pallet", product.ID)
		}
		if sess.OutersPerAggregation == 0 {
			sess.OutersPerAggregation = product.PackagesPerPallet
		}
	case domainagg.TypeFull:
		if product.OutersPerPackage <= 0 || product.PackagesPerPallet <= 0 {
			return nil, domainagg.NewError(domainagg.KindInvalidArgument, "product %s must declare outers per package and packages per pallet", product.ID)
		}
		if sess.OutersPerAggregation == 0 {
			sess.OutersPerAggregation = product.OutersPerPackage
		}
		sess.PackagesPerPallet = in.PackagesPerPallet
		if sess.PackagesPerPallet == 0 {
			sess.PackagesPerPallet = product.PackagesPerPallet
		}
	}

	created, err := s.sessions.Create(dbctx.Context{Ctx: ctx}, sess)
	if err != nil {
		return nil, err
	}
	observability.Current().IncSessionEvent("started")
	s.log.Info("session started",
		"session_id", created.ID,
		"aggregation_type", created.AggregationType,
		"outers_per_aggregation", created.OutersPerAggregation,
		"packages_per_pallet", created.PackagesPerPallet,
		"created_by", created.CreatedBy,
	)
	return created, nil
}

func (s *sessionService) Get(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error) {
	sess, err := s.sessions.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domainagg.NewError(domainagg.KindSessionNotFound, "session %s not found", id)
	}
	return sess, nil
}

func (s *sessionService) Scan(ctx context.Context, in ScanInput) (*ScanResult, error) {
	start := time.Now()
	ctx, correlationID := ctxutil.EnsureCorrelationID(ctx)
	ctx, span := observability.Tracer().Start(ctx, "aggregation.scan")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", in.SessionID.String()))

	value := strings.TrimSpace(in.ScannedCode)
	sess, err := s.sessions.GetByID(dbctx.Context{Ctx: ctx}, in.SessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	sessionType := "unknown"
	if sess != nil {
		sessionType = string(sess.AggregationType)
	}

	verdict, err := s.validator.Validate(ctx, sess, value)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !verdict.Accept {
		return s.rejected(sess, verdict, value, in.ActorID, sessionType, start), nil
	}

	updated, completion, err := s.tracker.Commit(ctx, sess, value, verdict.Role)
	if err != nil {
		if rejection, ok := RejectionFrom(err); ok {
			if updated == nil {
				updated = sess
			}
			return s.rejected(updated, rejection, value, in.ActorID, sessionType, start), nil
		}
		span.RecordError(err)
		return nil, err
	}

	if s.notify != nil {
		s.notify.ScanAccepted(ctx, updated, verdict.Role, value)
		if completion != nil {
			s.notify.CycleCompleted(ctx, updated, completion)
		}
	}
	observability.Current().ObserveScan(sessionType, string(verdict.Role), time.Since(start))
	span.SetAttributes(attribute.String("scan.role", string(verdict.Role)))
	s.log.Debug("scan accepted",
		"session_id", updated.ID,
		"code", value,
		"role", verdict.Role,
		"actor_id", in.ActorID,
		"correlation_id", correlationID,
	)
	return &ScanResult{
		Accepted: true,
		Role:     verdict.Role,
		Message:  verdict.Message,
		Session:  updated,
		State:    domainagg.StateOf(updated),
		Cycle:    completion,
	}, nil
}

func (s *sessionService) rejected(sess *types.AggregationSession, v Verdict, value, actorID, sessionType string, start time.Time) *ScanResult {
	observability.Current().ObserveScan(sessionType, string(v.Kind), time.Since(start))
	s.log.Info("scan rejected",
		"code", value,
		"error_kind", v.Kind,
		"reason", v.Message,
		"actor_id", actorID,
	)
	return &ScanResult{
		Accepted:  false,
		ErrorKind: v.Kind,
		Message:   v.Message,
		Session:   sess,
		State:     domainagg.StateOf(sess),
	}
}

func (s *sessionService) Finalize(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error) {
	return s.finalizer.Finalize(ctx, id)
}

func (s *sessionService) Pause(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error) {
	return s.transition(ctx, id, domainagg.EventPause)
}

func (s *sessionService) Resume(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error) {
	return s.transition(ctx, id, domainagg.EventResume)
}

func (s *sessionService) Close(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error) {
	return s.transition(ctx, id, domainagg.EventClose)
}

func (s *sessionService) transition(ctx context.Context, id uuid.UUID, ev statekit.EventType) (*types.AggregationSession, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := domainagg.NextStatus(sess.Status, ev)
	if err != nil {
		return nil, err
	}
	updated, applied, err := s.sessions.TransitionStatus(dbctx.Context{Ctx: ctx}, id, []domainagg.Status{sess.Status}, next, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domainagg.NewError(domainagg.KindInvalidTransition, "session %s changed status concurrently", id)
	}

	if next == domainagg.StatusClosed && s.events != nil {
		s.events.EnqueueSessionClosed(domainagg.NewSessionClosedEvent(updated, s.now()))
	}
	if s.notify != nil {
		s.notify.StatusChanged(ctx, updated)
	}
	observability.Current().IncSessionEvent(strings.ToLower(string(next)))
	s.log.Info("session status changed",
		"session_id", id,
		"from", sess.Status,
		"to", next,
	)
	return updated, nil
}
