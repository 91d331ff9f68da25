package aggregation

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

// CodeRepo only issues conditional partial updates. Each mutating call reports
// whether it changed the row so callers can tell first application from replay.
type CodeRepo interface {
	GetByValue(dbc dbctx.Context, value string) (*types.Code, error)
	GetByValues(dbc dbctx.Context, values []string) ([]*types.Code, error)
	Upsert(dbc dbctx.Context, codes []*types.Code) error
	MarkConfigured(dbc dbctx.Context, value string, meta domainagg.Enrichment, at time.Time) (bool, error)
	AttachProductData(dbc dbctx.Context, value string, data datatypes.JSON) (bool, error)
	LinkParent(dbc dbctx.Context, value string, parent string) (bool, error)
	MarkAggregated(dbc dbctx.Context, values []string) (int64, error)
}

type codeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCodeRepo(db *gorm.DB, baseLog *logger.Logger) CodeRepo {
	return &codeRepo{
		db:  db,
		log: baseLog.With("repo", "CodeRepo"),
	}
}

func (r *codeRepo) GetByValue(dbc dbctx.Context, value string) (*types.Code, error) {
	transaction := dbc.Resolve(r.db)
	if value == "" {
		return nil, nil
	}
	var out []*types.Code
	if err := transaction.
		Where("value = ?", value).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, MapError("code.get", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *codeRepo) GetByValues(dbc dbctx.Context, values []string) ([]*types.Code, error) {
	transaction := dbc.Resolve(r.db)
	var out []*types.Code
	if len(values) == 0 {
		return out, nil
	}
	if err := transaction.
		Where("value IN ?", values).
		Find(&out).Error; err != nil {
		return nil, MapError("code.get_many", err)
	}
	return out, nil
}

func (r *codeRepo) Upsert(dbc dbctx.Context, codes []*types.Code) error {
	transaction := dbc.Resolve(r.db)
	if len(codes) == 0 {
		return nil
	}
	for _, c := range codes {
		if c.Parents == nil {
			c.Parents = []string{}
		}
	}
	err := transaction.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "value"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"kind", "unit_type", "sub_type", "supplier_id", "vertical", "product_type", "product_id", "updated_at",
			}),
		}).
		Create(&codes).Error
	return MapError("code.upsert", err)
}

func (r *codeRepo) MarkConfigured(dbc dbctx.Context, value string, meta domainagg.Enrichment, at time.Time) (bool, error) {
	transaction := dbc.Resolve(r.db)
	updates := map[string]interface{}{
		"is_configured": true,
		"configured_at": at,
		"supplier_id":   meta.SupplierID,
		"vertical":      meta.Vertical,
		"product_type":  meta.ProductType,
		"product_id":    meta.ProductID,
		"updated_at":    at,
	}
	res := transaction.
		Model(&types.Code{}).
		Where("value = ? AND is_configured = ?", value, false).
		Updates(updates)
	if res.Error != nil {
		return false, MapError("code.mark_configured", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *codeRepo) AttachProductData(dbc dbctx.Context, value string, data datatypes.JSON) (bool, error) {
	transaction := dbc.Resolve(r.db)
	if domainagg.EmptyJSON(data) {
		return false, nil
	}
	res := transaction.
		Model(&types.Code{}).
		Where(`value = ? AND (product_data IS NULL OR product_data = 'null'::jsonb OR product_data = '{}'::jsonb OR product_data = '[]'::jsonb)`, value).
		Updates(map[string]interface{}{
			"product_data": data,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, MapError("code.attach_product_data", res.Error)
	}
	return res.RowsAffected > 0, nil
}

const linkParentSQL = `
UPDATE code
SET direct_parent = ?,
    parents = CASE
      WHEN parents @> jsonb_build_array(?::text) THEN parents
      ELSE parents || jsonb_build_array(?::text)
    END,
    updated_at = now()
WHERE value = ?
  AND (direct_parent IS DISTINCT FROM ? OR NOT (parents @> jsonb_build_array(?::text)))`

func (r *codeRepo) LinkParent(dbc dbctx.Context, value string, parent string) (bool, error) {
	transaction := dbc.Resolve(r.db)
	res := transaction.Exec(linkParentSQL, parent, parent, parent, value, parent, parent)
	if res.Error != nil {
		return false, MapError("code.link_parent", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *codeRepo) MarkAggregated(dbc dbctx.Context, values []string) (int64, error) {
	transaction := dbc.Resolve(r.db)
	if len(values) == 0 {
		return 0, nil
	}
	res := transaction.
		Model(&types.Code{}).
		Where("value IN ? AND is_aggregated = ?", values, false).
		Updates(map[string]interface{}{
			"is_aggregated": true,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, MapError("code.mark_aggregated", res.Error)
	}
	return res.RowsAffected, nil
}
