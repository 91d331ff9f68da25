package aggregation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/aggregation-backend/internal/data/repos/memstore"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	cycles []domainagg.CycleCompletionEvent
	closed []domainagg.SessionClosedEvent
}

func (r *recordingSink) Enqueue(ev domainagg.CycleCompletionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, ev)
}

func (r *recordingSink) EnqueueSessionClosed(ev domainagg.SessionClosedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, ev)
}

func (r *recordingSink) Cycles() []domainagg.CycleCompletionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domainagg.CycleCompletionEvent(nil), r.cycles...)
}

func (r *recordingSink) Closed() []domainagg.SessionClosedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domainagg.SessionClosedEvent(nil), r.closed...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	accepted  int
	cycles    []*domainagg.CycleCompletion
	results   []domainagg.ConfigurationResultEvent
	statuses  []domainagg.Status
	finalized []uuid.UUID
}

func (n *recordingNotifier) ScanAccepted(context.Context, *types.AggregationSession, domainagg.Role, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted++
}

func (n *recordingNotifier) CycleCompleted(_ context.Context, _ *types.AggregationSession, c *domainagg.CycleCompletion) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cycles = append(n.cycles, c)
}

func (n *recordingNotifier) CycleResult(_ context.Context, ev domainagg.ConfigurationResultEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, ev)
}

func (n *recordingNotifier) StatusChanged(_ context.Context, s *types.AggregationSession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, s.Status)
}

func (n *recordingNotifier) Finalized(_ context.Context, s *types.AggregationSession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized = append(n.finalized, s.ID)
}

type harness struct {
	ctx      context.Context
	log      *logger.Logger
	codes    *memstore.CodeStore
	sessions *memstore.SessionStore
	products *memstore.ProductStore
	sink     *recordingSink
	notify   *recordingNotifier
	svc      SessionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:      context.Background(),
		log:      logger.Nop(),
		codes:    memstore.NewCodeStore(),
		sessions: memstore.NewSessionStore(),
		products: memstore.NewProductStore(),
		sink:     &recordingSink{},
		notify:   &recordingNotifier{},
	}
	validator := NewValidator(h.log, h.codes)
	tracker := NewTracker(h.log, h.sessions, h.sink)
	finalizer := NewFinalizer(h.log, h.sessions, h.sink, h.notify)
	h.svc = NewSessionService(h.log, h.sessions, h.products, validator, tracker, finalizer, h.sink, h.notify)
	return h
}

func (h *harness) product(t *testing.T, outersPerPackage, packagesPerPallet int) *types.Product {
	t.Helper()
	p := &types.Product{
		ID:                uuid.New(),
		Name:              "sparkling water 6x",
		SupplierID:        "supplier-1",
		Vertical:          "beverages",
		ProductType:       "bottle",
		OutersPerPackage:  outersPerPackage,
		PackagesPerPallet: packagesPerPallet,
	}
	require.NoError(t, h.products.Upsert(dbctx.Context{Ctx: h.ctx}, []*types.Product{p}))
	return p
}

// outers seeds n unconfigured OUTER codes named prefix-1..prefix-n.
func (h *harness) outers(t *testing.T, prefix string, n int) []string {
	t.Helper()
	pid := uuid.New()
	values := make([]string, n)
	codes := make([]*types.Code, n)
	for i := range values {
		values[i] = fmt.Sprintf("%s-%d", prefix, i+1)
		codes[i] = &types.Code{
			Value:       values[i],
			Kind:        domainagg.KindSingle,
			UnitType:    domainagg.UnitOuter,
			SupplierID:  "supplier-1",
			Vertical:    "beverages",
			ProductType: "bottle",
			ProductID:   &pid,
		}
	}
	require.NoError(t, h.codes.Upsert(dbctx.Context{Ctx: h.ctx}, codes))
	return values
}

func (h *harness) composed(t *testing.T, sub domainagg.SubType, values ...string) {
	t.Helper()
	codes := make([]*types.Code, len(values))
	for i, v := range values {
		codes[i] = &types.Code{Value: v, Kind: domainagg.KindComposed, UnitType: domainagg.UnitOther, SubType: sub}
	}
	require.NoError(t, h.codes.Upsert(dbctx.Context{Ctx: h.ctx}, codes))
}

func (h *harness) start(t *testing.T, typ domainagg.Type, product *types.Product) *types.AggregationSession {
	t.Helper()
	s, err := h.svc.Start(h.ctx, StartInput{AggregationType: typ, ProductID: product.ID, CreatedBy: "operator-1"})
	require.NoError(t, err)
	return s
}

func (h *harness) scan(t *testing.T, sessionID uuid.UUID, value string) *ScanResult {
	t.Helper()
	res, err := h.svc.Scan(h.ctx, ScanInput{SessionID: sessionID, ScannedCode: value, ActorID: "actor-1"})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (h *harness) mustAccept(t *testing.T, sessionID uuid.UUID, role domainagg.Role, values ...string) *ScanResult {
	t.Helper()
	var last *ScanResult
	for _, v := range values {
		last = h.scan(t, sessionID, v)
		require.Truef(t, last.Accepted, "scan %s rejected: %s %s", v, last.ErrorKind, last.Message)
		require.Equal(t, role, last.Role)
	}
	return last
}
