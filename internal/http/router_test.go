package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/aggregation-backend/internal/data/repos/memstore"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	httpH "github.com/yungbote/aggregation-backend/internal/http/handlers"
	"github.com/yungbote/aggregation-backend/internal/http/response"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/realtime"
	aggregation "github.com/yungbote/aggregation-backend/internal/services/aggregation"
)

type discardSink struct{}

func (discardSink) Enqueue(domainagg.CycleCompletionEvent)            {}
func (discardSink) EnqueueSessionClosed(domainagg.SessionClosedEvent) {}

type testAPI struct {
	engine  *gin.Engine
	codes   *memstore.CodeStore
	product *types.Product
	hub     *realtime.SSEHub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	ctx := context.Background()

	codes := memstore.NewCodeStore()
	sessions := memstore.NewSessionStore()
	products := memstore.NewProductStore()
	product := &types.Product{ID: uuid.New(), Name: "p", OutersPerPackage: 2, PackagesPerPallet: 2}
	if err := products.Upsert(dbctx.Context{Ctx: ctx}, []*types.Product{product}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	hub := realtime.NewSSEHub(log)
	notify := aggregation.NewNotifier(log, nil, hub)
	sink := discardSink{}
	svc := aggregation.NewSessionService(
		log, sessions, products,
		aggregation.NewValidator(log, codes),
		aggregation.NewTracker(log, sessions, sink),
		aggregation.NewFinalizer(log, sessions, sink, notify),
		sink, notify,
	)
	engine := NewRouter(RouterConfig{
		Log:                log,
		AggregationHandler: httpH.NewAggregationHandler(log, svc),
		RealtimeHandler:    httpH.NewRealtimeHandler(log, hub, svc),
		HealthHandler:      httpH.NewHealthHandler(),
	})
	return &testAPI{engine: engine, codes: codes, product: product, hub: hub}
}

func (a *testAPI) seedOuters(t *testing.T, values ...string) {
	t.Helper()
	codes := make([]*types.Code, len(values))
	for i, v := range values {
		codes[i] = &types.Code{Value: v, Kind: domainagg.KindSingle, UnitType: domainagg.UnitOuter}
	}
	if err := a.codes.Upsert(dbctx.Context{Ctx: context.Background()}, codes); err != nil {
		t.Fatalf("seed outers: %v", err)
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type sessionEnvelope struct {
	Session types.AggregationSession `json:"session"`
	State   domainagg.CycleState     `json:"state"`
}

func TestHealthcheck(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, nethttp.MethodGet, "/healthcheck", nil)
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", rec.Code, rec.Body.String())
	}
}

func TestSessionScanAndFinalizeOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedOuters(t, "O-1", "O-2", "O-3")

	rec := api.do(t, nethttp.MethodPost, "/api/aggregation/sessions", map[string]any{
		"aggregationType": "PACKAGE",
		"productId":       api.product.ID,
	})
	if rec.Code != nethttp.StatusCreated {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	started := decode[sessionEnvelope](t, rec)
	if started.Session.OutersPerAggregation != 2 {
		t.Fatalf("expected N defaulted from product, got %d", started.Session.OutersPerAggregation)
	}
	base := fmt.Sprintf("/api/aggregation/sessions/%s", started.Session.ID)

	rec = api.do(t, nethttp.MethodPost, base+"/scan", map[string]any{"scannedCode": "O-1", "actorId": "a"})
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("scan: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[aggregation.ScanResult](t, rec)
	if !res.Accepted || res.Role != domainagg.RoleOuter {
		t.Fatalf("unexpected scan result: %+v", res)
	}

	rec = api.do(t, nethttp.MethodPost, base+"/scan", map[string]any{"scannedCode": "O-1", "actorId": "a"})
	res = decode[aggregation.ScanResult](t, rec)
	if rec.Code != nethttp.StatusOK || res.Accepted || res.ErrorKind != domainagg.KindDuplicateInSession {
		t.Fatalf("duplicate should be a 200 rejection, got %d %+v", rec.Code, res)
	}

	rec = api.do(t, nethttp.MethodPost, base+"/finalize", nil)
	if rec.Code != nethttp.StatusUnprocessableEntity {
		t.Fatalf("finalize with partial cycle: %d %s", rec.Code, rec.Body.String())
	}
	env := decode[response.ErrorEnvelope](t, rec)
	if env.Error.Code != string(domainagg.KindPartialCycle) {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}

	rec = api.do(t, nethttp.MethodGet, base, nil)
	got := decode[sessionEnvelope](t, rec)
	if rec.Code != nethttp.StatusOK || got.State.TotalOuters != 1 || got.State.RemainingInCycle != 1 {
		t.Fatalf("get: %d %+v", rec.Code, got.State)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, nethttp.MethodPost, "/api/aggregation/sessions", map[string]any{
		"aggregationType": "PACKAGE",
		"productId":       api.product.ID,
	})
	started := decode[sessionEnvelope](t, rec)
	base := fmt.Sprintf("/api/aggregation/sessions/%s", started.Session.ID)

	rec = api.do(t, nethttp.MethodPost, base+"/pause", nil)
	if got := decode[sessionEnvelope](t, rec); rec.Code != nethttp.StatusOK || got.Session.Status != domainagg.StatusPaused {
		t.Fatalf("pause: %d %s", rec.Code, rec.Body.String())
	}
	rec = api.do(t, nethttp.MethodPost, base+"/pause", nil)
	if rec.Code != nethttp.StatusConflict {
		t.Fatalf("second pause should conflict, got %d", rec.Code)
	}
	rec = api.do(t, nethttp.MethodPost, base+"/resume", nil)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("resume: %d %s", rec.Code, rec.Body.String())
	}
	rec = api.do(t, nethttp.MethodPost, base+"/close", nil)
	if got := decode[sessionEnvelope](t, rec); rec.Code != nethttp.StatusOK || got.Session.Status != domainagg.StatusClosed {
		t.Fatalf("close: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestErrors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, nethttp.MethodGet, "/api/aggregation/sessions/not-a-uuid", nil)
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
	rec = api.do(t, nethttp.MethodGet, "/api/aggregation/sessions/"+uuid.NewString(), nil)
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("unknown session: %d", rec.Code)
	}
	rec = api.do(t, nethttp.MethodPost, "/api/aggregation/sessions", map[string]any{
		"aggregationType": "PACKAGE",
		"productId":       uuid.New(),
	})
	if env := decode[response.ErrorEnvelope](t, rec); rec.Code != nethttp.StatusNotFound || env.Error.Code != string(domainagg.KindProductNotFound) {
		t.Fatalf("unknown product: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStreamRefusedForClosedChannel(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, nethttp.MethodPost, "/api/aggregation/sessions", map[string]any{
		"aggregationType": "PACKAGE",
		"productId":       api.product.ID,
	})
	started := decode[sessionEnvelope](t, rec)

	api.hub.CloseChannel(realtime.SessionChannel(started.Session.ID))
	rec = api.do(t, nethttp.MethodGet, fmt.Sprintf("/api/aggregation/sessions/%s/stream", started.Session.ID), nil)
	if rec.Code != nethttp.StatusGone {
		t.Fatalf("stream on closed channel: %d", rec.Code)
	}
}
