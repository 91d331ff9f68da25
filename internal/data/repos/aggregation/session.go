package aggregation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, s *types.AggregationSession) (*types.AggregationSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AggregationSession, error)
	// CommitCode is the single atomic set-insertion. applied=false means one of
	// the commit conditions no longer held; the caller re-reads and re-validates.
	CommitCode(dbc dbctx.Context, id uuid.UUID, value string, role domainagg.Role) (*types.AggregationSession, bool, error)
	// TransitionStatus moves the session from one of the allowed statuses to `to`.
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from []domainagg.Status, to domainagg.Status, at time.Time) (*types.AggregationSession, bool, error)
	// Finalize moves an OPEN session to FINALIZED only if both arrays still
	// have the lengths the preconditions were checked against.
	Finalize(dbc dbctx.Context, id uuid.UUID, outers, parents int, at time.Time) (*types.AggregationSession, bool, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{
		db:  db,
		log: baseLog.With("repo", "SessionRepo"),
	}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *types.AggregationSession) (*types.AggregationSession, error) {
	transaction := dbc.Resolve(r.db)
	if s == nil {
		return nil, fmt.Errorf("nil session")
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.ProcessedOuterCodes == nil {
		s.ProcessedOuterCodes = []string{}
	}
	if s.ProcessedParentCodes == nil {
		s.ProcessedParentCodes = []string{}
	}
	if err := transaction.Create(s).Error; err != nil {
		return nil, MapError("session.create", err)
	}
	return s, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AggregationSession, error) {
	transaction := dbc.Resolve(r.db)
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.AggregationSession
	if err := transaction.
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, MapError("session.get", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Conditions shared by every commit: open session, value unseen in any role.
const commitUnseen = `
  id = ?
  AND status = 'OPEN'
  AND outers_per_aggregation > 0
  AND NOT (processed_outer_codes @> jsonb_build_array(?::text))
  AND NOT (processed_parent_codes @> jsonb_build_array(?::text))
  AND (target_code IS NULL OR target_code <> ?)`

const expectingParent = `(
  jsonb_array_length(processed_outer_codes) > 0
  AND jsonb_array_length(processed_outer_codes) % outers_per_aggregation = 0
  AND jsonb_array_length(processed_outer_codes) / outers_per_aggregation > jsonb_array_length(processed_parent_codes)
)`

const commitOuterSQL = `
UPDATE aggregation_session
SET processed_outer_codes = processed_outer_codes || jsonb_build_array(?::text),
    updated_at = now()
WHERE` + commitUnseen + `
  AND (aggregation_type <> 'FULL' OR target_code IS NOT NULL)
  AND NOT ` + expectingParent + `
  AND NOT (aggregation_type = 'FULL' AND packages_per_pallet > 0 AND jsonb_array_length(processed_parent_codes) >= packages_per_pallet)
RETURNING *`

const commitParentSQL = `
UPDATE aggregation_session
SET processed_parent_codes = processed_parent_codes || jsonb_build_array(?::text),
    updated_at = now()
WHERE` + commitUnseen + `
  AND (aggregation_type <> 'FULL' OR target_code IS NOT NULL)
  AND ` + expectingParent + `
RETURNING *`

const commitTargetSQL = `
UPDATE aggregation_session
SET target_code = ?,
    updated_at = now()
WHERE` + commitUnseen + `
  AND aggregation_type = 'FULL'
  AND target_code IS NULL
RETURNING *`

func (r *sessionRepo) CommitCode(dbc dbctx.Context, id uuid.UUID, value string, role domainagg.Role) (*types.AggregationSession, bool, error) {
	transaction := dbc.Resolve(r.db)
	var stmt string
	switch role {
	case domainagg.RoleOuter:
		stmt = commitOuterSQL
	case domainagg.RoleParent:
		stmt = commitParentSQL
	case domainagg.RoleTarget:
		stmt = commitTargetSQL
	default:
		return nil, false, fmt.Errorf("commit: unknown role %q", role)
	}
	var out []*types.AggregationSession
	res := transaction.Raw(stmt, value, id, value, value, value).Scan(&out)
	if res.Error != nil {
		return nil, false, MapError("session.commit", res.Error)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out[0], true, nil
}

func (r *sessionRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from []domainagg.Status, to domainagg.Status, at time.Time) (*types.AggregationSession, bool, error) {
	transaction := dbc.Resolve(r.db)
	if len(from) == 0 {
		return nil, false, nil
	}
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case domainagg.StatusFinalized:
		updates["finalized_at"] = at
	case domainagg.StatusClosed:
		updates["closed_at"] = at
	}
	res := transaction.
		Model(&types.AggregationSession{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, false, MapError("session.transition", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	s, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, false, err
	}
	return s, s != nil, nil
}

func (r *sessionRepo) Finalize(dbc dbctx.Context, id uuid.UUID, outers, parents int, at time.Time) (*types.AggregationSession, bool, error) {
	transaction := dbc.Resolve(r.db)
	res := transaction.
		Model(&types.AggregationSession{}).
		Where("id = ? AND status = ?", id, domainagg.StatusOpen).
		Where("jsonb_array_length(processed_outer_codes) = ? AND jsonb_array_length(processed_parent_codes) = ?", outers, parents).
		Updates(map[string]interface{}{
			"status":       domainagg.StatusFinalized,
			"finalized_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return nil, false, MapError("session.finalize", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	s, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, false, err
	}
	return s, s != nil, nil
}
