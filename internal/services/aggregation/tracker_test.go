package aggregation

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/aggregation-backend/internal/data/repos/memstore"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
)

var errBoom = errors.New("boom")

// racingSessions reports the first `lose` commits as not applied, as if a
// concurrent scan had changed the row first.
type racingSessions struct {
	*memstore.SessionStore
	mu    sync.Mutex
	lose  int
	calls int
}

func (r *racingSessions) CommitCode(dbc dbctx.Context, id uuid.UUID, value string, role domainagg.Role) (*types.AggregationSession, bool, error) {
	r.mu.Lock()
	r.calls++
	lose := r.calls <= r.lose
	r.mu.Unlock()
	if lose {
		return nil, false, nil
	}
	return r.SessionStore.CommitCode(dbc, id, value, role)
}

func seedOpenSession(t *testing.T, store *memstore.SessionStore, n int) *types.AggregationSession {
	t.Helper()
	s, err := store.Create(dbctx.Context{}, &types.AggregationSession{
		AggregationType:      domainagg.TypePackage,
		OutersPerAggregation: n,
		Status:               domainagg.StatusOpen,
	})
	require.NoError(t, err)
	return s
}

func TestTrackerRetriesOnceAfterLostRace(t *testing.T) {
	h := newHarness(t)
	store := &racingSessions{SessionStore: h.sessions, lose: 1}
	tr := NewTracker(h.log, store, h.sink)
	s := seedOpenSession(t, h.sessions, 1)

	updated, completion, err := tr.Commit(h.ctx, s, "o-1", domainagg.RoleOuter)
	require.NoError(t, err)
	require.Nil(t, completion)
	require.Equal(t, 1, updated.TotalOuters())
	require.Equal(t, 2, store.calls)

	updated, completion, err = tr.Commit(h.ctx, updated, "PKG-1", domainagg.RoleParent)
	require.NoError(t, err)
	require.NotNil(t, completion)
	require.Equal(t, []string{"o-1"}, completion.ChildCodes)
	require.Len(t, h.sink.Cycles(), 1)
	require.Equal(t, 1, updated.TotalParents())
}

func TestTrackerMapsLostRaceToTypedError(t *testing.T) {
	h := newHarness(t)
	tr := NewTracker(h.log, h.sessions, h.sink)
	s := seedOpenSession(t, h.sessions, 1)

	_, _, err := tr.Commit(h.ctx, s, "o-1", domainagg.RoleOuter)
	require.NoError(t, err)

	// Stale snapshot: the caller still believes the cycle is open.
	fresh, _, err := tr.Commit(h.ctx, s, "o-2", domainagg.RoleOuter)
	require.True(t, domainagg.IsKind(err, domainagg.KindWrongType), "err=%v", err)
	require.NotNil(t, fresh)
	require.Equal(t, 1, fresh.TotalOuters())

	_, _, err = tr.Commit(h.ctx, s, "o-1", domainagg.RoleOuter)
	require.True(t, domainagg.IsKind(err, domainagg.KindDuplicateInSession), "err=%v", err)

	stuck := &racingSessions{SessionStore: h.sessions, lose: 10}
	_, _, err = NewTracker(h.log, stuck, h.sink).Commit(h.ctx, s, "PKG-1", domainagg.RoleParent)
	require.True(t, domainagg.IsKind(err, domainagg.KindInconsistentState), "err=%v", err)

	_, _, err = tr.Commit(h.ctx, &types.AggregationSession{ID: uuid.New()}, "x", domainagg.RoleOuter)
	require.True(t, domainagg.IsKind(err, domainagg.KindSessionNotFound), "err=%v", err)
}
