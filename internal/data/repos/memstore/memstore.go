// Package memstore holds in-process implementations of the aggregation
// repositories. A single mutex per store stands in for Postgres row locks.
package memstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	aggrepo "github.com/yungbote/aggregation-backend/internal/data/repos/aggregation"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
)

type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*types.AggregationSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[uuid.UUID]*types.AggregationSession{}}
}

var _ aggrepo.SessionRepo = (*SessionStore)(nil)

func (s *SessionStore) Create(_ dbctx.Context, sess *types.AggregationSession) (*types.AggregationSession, error) {
	if sess == nil {
		return nil, fmt.Errorf("nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if _, exists := s.sessions[sess.ID]; exists {
		return nil, aggrepo.MapError("session.create", fmt.Errorf("session %s already exists", sess.ID))
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	if sess.ProcessedOuterCodes == nil {
		sess.ProcessedOuterCodes = []string{}
	}
	if sess.ProcessedParentCodes == nil {
		sess.ProcessedParentCodes = []string{}
	}
	s.sessions[sess.ID] = sess.Clone()
	return sess.Clone(), nil
}

func (s *SessionStore) GetByID(_ dbctx.Context, id uuid.UUID) (*types.AggregationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Clone(), nil
}

func (s *SessionStore) CommitCode(_ dbctx.Context, id uuid.UUID, value string, role domainagg.Role) (*types.AggregationSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}
	if _, err := domainagg.ApplyCommit(sess, value, role); err != nil {
		if domainagg.KindOf(err) == "" {
			return nil, false, err
		}
		return nil, false, nil
	}
	sess.UpdatedAt = time.Now().UTC()
	return sess.Clone(), true, nil
}

func (s *SessionStore) TransitionStatus(_ dbctx.Context, id uuid.UUID, from []domainagg.Status, to domainagg.Status, at time.Time) (*types.AggregationSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}
	allowed := false
	for _, st := range from {
		if sess.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, false, nil
	}
	sess.Status = to
	sess.UpdatedAt = at
	switch to {
	case domainagg.StatusFinalized:
		sess.FinalizedAt = &at
	case domainagg.StatusClosed:
		sess.ClosedAt = &at
	}
	return sess.Clone(), true, nil
}

func (s *SessionStore) Finalize(_ dbctx.Context, id uuid.UUID, outers, parents int, at time.Time) (*types.AggregationSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != domainagg.StatusOpen {
		return nil, false, nil
	}
	if sess.TotalOuters() != outers || sess.TotalParents() != parents {
		return nil, false, nil
	}
	sess.Status = domainagg.StatusFinalized
	sess.FinalizedAt = &at
	sess.UpdatedAt = at
	return sess.Clone(), true, nil
}

type CodeStore struct {
	mu    sync.Mutex
	codes map[string]*types.Code
}

func NewCodeStore() *CodeStore {
	return &CodeStore{codes: map[string]*types.Code{}}
}

var _ aggrepo.CodeRepo = (*CodeStore)(nil)

func cloneCode(c *types.Code) *types.Code {
	if c == nil {
		return nil
	}
	out := *c
	out.Parents = append(datatypes.JSONSlice[string]{}, c.Parents...)
	if c.ProductData != nil {
		out.ProductData = append(datatypes.JSON(nil), c.ProductData...)
	}
	if c.DirectParent != nil {
		v := *c.DirectParent
		out.DirectParent = &v
	}
	if c.ConfiguredAt != nil {
		v := *c.ConfiguredAt
		out.ConfiguredAt = &v
	}
	if c.ProductID != nil {
		v := *c.ProductID
		out.ProductID = &v
	}
	return &out
}

func (s *CodeStore) GetByValue(_ dbctx.Context, value string) (*types.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCode(s.codes[value]), nil
}

func (s *CodeStore) GetByValues(_ dbctx.Context, values []string) ([]*types.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Code, 0, len(values))
	for _, v := range values {
		if c, ok := s.codes[v]; ok {
			out = append(out, cloneCode(c))
		}
	}
	return out, nil
}

func (s *CodeStore) Upsert(_ dbctx.Context, codes []*types.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, c := range codes {
		if c == nil || c.Value == "" {
			continue
		}
		if existing, ok := s.codes[c.Value]; ok {
			existing.Kind = c.Kind
			existing.UnitType = c.UnitType
			existing.SubType = c.SubType
			existing.SupplierID = c.SupplierID
			existing.Vertical = c.Vertical
			existing.ProductType = c.ProductType
			existing.ProductID = c.ProductID
			existing.UpdatedAt = now
			continue
		}
		cp := cloneCode(c)
		cp.CreatedAt, cp.UpdatedAt = now, now
		s.codes[c.Value] = cp
	}
	return nil
}

func (s *CodeStore) MarkConfigured(_ dbctx.Context, value string, meta domainagg.Enrichment, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[value]
	if !ok || c.IsConfigured {
		return false, nil
	}
	c.IsConfigured = true
	c.ConfiguredAt = &at
	c.SupplierID = meta.SupplierID
	c.Vertical = meta.Vertical
	c.ProductType = meta.ProductType
	c.ProductID = meta.ProductID
	c.UpdatedAt = at
	return true, nil
}

func (s *CodeStore) AttachProductData(_ dbctx.Context, value string, data datatypes.JSON) (bool, error) {
	if domainagg.EmptyJSON(data) {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[value]
	if !ok || c.HasProductData() {
		return false, nil
	}
	c.ProductData = append(datatypes.JSON(nil), data...)
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *CodeStore) LinkParent(_ dbctx.Context, value string, parent string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[value]
	if !ok {
		return false, nil
	}
	changed := false
	if c.DirectParent == nil || *c.DirectParent != parent {
		p := parent
		c.DirectParent = &p
		changed = true
	}
	if !c.HasParent(parent) {
		c.Parents = append(c.Parents, parent)
		changed = true
	}
	if changed {
		c.UpdatedAt = time.Now().UTC()
	}
	return changed, nil
}

func (s *CodeStore) MarkAggregated(_ dbctx.Context, values []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, v := range values {
		if c, ok := s.codes[v]; ok && !c.IsAggregated {
			c.IsAggregated = true
			c.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

type ProductStore struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*types.Product
}

func NewProductStore() *ProductStore {
	return &ProductStore{products: map[uuid.UUID]*types.Product{}}
}

var _ aggrepo.ProductRepo = (*ProductStore)(nil)

func (s *ProductStore) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (s *ProductStore) Upsert(_ dbctx.Context, products []*types.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		if p == nil {
			continue
		}
		cp := *p
		s.products[p.ID] = &cp
	}
	return nil
}
