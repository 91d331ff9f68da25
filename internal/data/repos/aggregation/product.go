package aggregation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type ProductRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Product, error)
	Upsert(dbc dbctx.Context, products []*types.Product) error
}

type productRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return &productRepo{
		db:  db,
		log: baseLog.With("repo", "ProductRepo"),
	}
}

func (r *productRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Product, error) {
	transaction := dbc.Resolve(r.db)
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Product
	if err := transaction.
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, MapError("product.get", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *productRepo) Upsert(dbc dbctx.Context, products []*types.Product) error {
	transaction := dbc.Resolve(r.db)
	if len(products) == 0 {
		return nil
	}
	err := transaction.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&products).Error
	return MapError("product.upsert", err)
}
