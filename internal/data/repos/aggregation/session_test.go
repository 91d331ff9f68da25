package aggregation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/aggregation-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
)

func TestSessionRepoCommit(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewSessionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	s := testutil.SeedSession(t, ctx, tx, domainagg.TypePackage, 2, 0, uuid.New())

	if _, ok, err := repo.CommitCode(dbc, s.ID, "PKG-1", domainagg.RoleParent); err != nil || ok {
		t.Fatalf("parent before any cycle must not apply: ok=%v err=%v", ok, err)
	}
	for _, v := range []string{"o-1", "o-2"} {
		if _, ok, err := repo.CommitCode(dbc, s.ID, v, domainagg.RoleOuter); err != nil || !ok {
			t.Fatalf("commit %s: ok=%v err=%v", v, ok, err)
		}
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "o-1", domainagg.RoleOuter); ok {
		t.Fatalf("duplicate outer applied")
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "o-3", domainagg.RoleOuter); ok {
		t.Fatalf("outer applied while a parent is expected")
	}
	updated, ok, err := repo.CommitCode(dbc, s.ID, "PKG-1", domainagg.RoleParent)
	if err != nil || !ok {
		t.Fatalf("commit parent: ok=%v err=%v", ok, err)
	}
	if updated.TotalOuters() != 2 || updated.TotalParents() != 1 {
		t.Fatalf("unexpected totals %d/%d", updated.TotalOuters(), updated.TotalParents())
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "PKG-2", domainagg.RoleParent); ok {
		t.Fatalf("second parent for the same cycle applied")
	}

	closed, ok, err := repo.TransitionStatus(dbc, s.ID, []domainagg.Status{domainagg.StatusOpen}, domainagg.StatusClosed, time.Now())
	if err != nil || !ok || closed.ClosedAt == nil {
		t.Fatalf("close: ok=%v err=%v session=%+v", ok, err, closed)
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "o-9", domainagg.RoleOuter); ok {
		t.Fatalf("commit applied to a closed session")
	}
}

func TestSessionRepoFullTarget(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewSessionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	s := testutil.SeedSession(t, ctx, tx, domainagg.TypeFull, 1, 1, uuid.New())
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "o-1", domainagg.RoleOuter); ok {
		t.Fatalf("outer applied before the target pallet")
	}
	got, ok, err := repo.CommitCode(dbc, s.ID, "PLT-1", domainagg.RoleTarget)
	if err != nil || !ok || !got.HasTarget() {
		t.Fatalf("target: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "PLT-2", domainagg.RoleTarget); ok {
		t.Fatalf("target overwritten")
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "o-1", domainagg.RoleOuter); !ok {
		t.Fatalf("outer after target rejected")
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "PKG-1", domainagg.RoleParent); !ok {
		t.Fatalf("parent rejected")
	}
	if _, ok, _ := repo.CommitCode(dbc, s.ID, "o-2", domainagg.RoleOuter); ok {
		t.Fatalf("outer applied past the package limit")
	}
}

// Commits run outside the test transaction so rows really contend.
func TestSessionRepoConcurrentOuters(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewSessionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	s := testutil.SeedSession(t, ctx, db, domainagg.TypePackage, 5, 0, uuid.New())
	t.Cleanup(func() { db.Exec("DELETE FROM aggregation_session WHERE id = ?", s.ID) })

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok, err := repo.CommitCode(dbc, s.ID, fmt.Sprintf("o-%d", i), domainagg.RoleOuter)
			if err != nil {
				t.Errorf("commit: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if applied != 5 {
		t.Fatalf("expected exactly one cycle of outers, applied=%d", applied)
	}
	got, err := repo.GetByID(dbc, s.ID)
	if err != nil || got.TotalOuters() != 5 {
		t.Fatalf("stored outers=%d err=%v", got.TotalOuters(), err)
	}
}

func TestSessionRepoFinalizeGuardsLengths(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewSessionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	s := testutil.SeedSession(t, ctx, tx, domainagg.TypePackage, 1, 0, uuid.New())
	for _, v := range []string{"o-1", "PKG-1"} {
		role := domainagg.RoleOuter
		if v == "PKG-1" {
			role = domainagg.RoleParent
		}
		if _, ok, err := repo.CommitCode(dbc, s.ID, v, role); err != nil || !ok {
			t.Fatalf("commit %s: ok=%v err=%v", v, ok, err)
		}
	}
	if _, ok, err := repo.Finalize(dbc, s.ID, 2, 1, time.Now()); err != nil || ok {
		t.Fatalf("finalize with stale lengths applied: ok=%v err=%v", ok, err)
	}
	got, ok, err := repo.Finalize(dbc, s.ID, 1, 1, time.Now())
	if err != nil || !ok {
		t.Fatalf("finalize: ok=%v err=%v", ok, err)
	}
	if got.Status != domainagg.StatusFinalized || got.FinalizedAt == nil {
		t.Fatalf("unexpected session %+v", got)
	}
	if _, ok, _ := repo.Finalize(dbc, s.ID, 1, 1, time.Now()); ok {
		t.Fatalf("second finalize applied")
	}
}
