package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
)

func TestSessionStoreConcurrentCommits(t *testing.T) {
	store := NewSessionStore()
	dbc := dbctx.Context{Ctx: context.Background()}
	sess, err := store.Create(dbc, &types.AggregationSession{
		AggregationType:      domainagg.TypePackage,
		OutersPerAggregation: 4,
		Status:               domainagg.StatusOpen,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok, err := store.CommitCode(dbc, sess.ID, fmt.Sprintf("o-%d", i), domainagg.RoleOuter)
			if err != nil {
				t.Errorf("commit: %v", err)
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if applied != 4 {
		t.Fatalf("applied=%d want 4", applied)
	}

	var parents sync.WaitGroup
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		parents.Add(1)
		go func(i int) {
			defer parents.Done()
			_, ok, _ := store.CommitCode(dbc, sess.ID, fmt.Sprintf("PKG-%d", i), domainagg.RoleParent)
			results <- ok
		}(i)
	}
	parents.Wait()
	close(results)
	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("exactly one parent may cap a cycle, got %d", won)
	}
}

func TestSessionStoreReturnsSnapshots(t *testing.T) {
	store := NewSessionStore()
	dbc := dbctx.Context{Ctx: context.Background()}
	sess, _ := store.Create(dbc, &types.AggregationSession{AggregationType: domainagg.TypePackage, OutersPerAggregation: 2, Status: domainagg.StatusOpen})
	got, _, _ := store.CommitCode(dbc, sess.ID, "o-1", domainagg.RoleOuter)
	got.ProcessedOuterCodes[0] = "mutated"
	again, _ := store.GetByID(dbc, sess.ID)
	if again.ProcessedOuterCodes[0] != "o-1" {
		t.Fatalf("store leaked internal state")
	}
	if _, ok, _ := store.TransitionStatus(dbc, sess.ID, []domainagg.Status{domainagg.StatusPaused}, domainagg.StatusOpen, time.Now()); ok {
		t.Fatalf("transition from wrong status applied")
	}
}

func TestCodeStoreIdempotentUpdates(t *testing.T) {
	store := NewCodeStore()
	dbc := dbctx.Context{Ctx: context.Background()}
	_ = store.Upsert(dbc, []*types.Code{
		{Value: "o-1", Kind: domainagg.KindSingle, UnitType: domainagg.UnitOuter, SupplierID: "s"},
		{Value: "PKG-1", Kind: domainagg.KindComposed},
	})
	pid := uuid.New()
	if ok, _ := store.MarkConfigured(dbc, "PKG-1", domainagg.Enrichment{SupplierID: "s", ProductID: &pid}, time.Now()); !ok {
		t.Fatalf("first enrichment not applied")
	}
	if ok, _ := store.MarkConfigured(dbc, "PKG-1", domainagg.Enrichment{SupplierID: "other"}, time.Now()); ok {
		t.Fatalf("second enrichment applied")
	}
	for i := 0; i < 3; i++ {
		_, _ = store.LinkParent(dbc, "o-1", "PKG-1")
	}
	c, _ := store.GetByValue(dbc, "o-1")
	if len(c.Parents) != 1 || *c.DirectParent != "PKG-1" {
		t.Fatalf("link not idempotent: %+v", c)
	}
	if ok, _ := store.AttachProductData(dbc, "o-1", []byte(`{}`)); ok {
		t.Fatalf("empty product data attached")
	}
	if missing, _ := store.GetByValue(dbc, "nope"); missing != nil {
		t.Fatalf("expected nil for missing code")
	}
}

func TestSessionStoreFinalize(t *testing.T) {
	store := NewSessionStore()
	dbc := dbctx.Context{Ctx: context.Background()}
	sess, _ := store.Create(dbc, &types.AggregationSession{AggregationType: domainagg.TypePackage, OutersPerAggregation: 1, Status: domainagg.StatusOpen})
	_, _, _ = store.CommitCode(dbc, sess.ID, "o-1", domainagg.RoleOuter)
	_, _, _ = store.CommitCode(dbc, sess.ID, "PKG-1", domainagg.RoleParent)

	if _, ok, _ := store.Finalize(dbc, sess.ID, 0, 0, time.Now()); ok {
		t.Fatalf("finalize with stale lengths applied")
	}
	got, ok, err := store.Finalize(dbc, sess.ID, 1, 1, time.Now())
	if err != nil || !ok || got.Status != domainagg.StatusFinalized || got.FinalizedAt == nil {
		t.Fatalf("finalize: ok=%v err=%v session=%+v", ok, err, got)
	}
	if _, ok, _ := store.Finalize(dbc, sess.ID, 1, 1, time.Now()); ok {
		t.Fatalf("finalize applied twice")
	}
}
