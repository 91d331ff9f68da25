package aggregation

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog entry a session aggregates. Only the per-cycle
// quantities matter to the engine.
type Product struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"column:name;not null" json:"name"`
	SupplierID        string    `gorm:"column:supplier_id;index" json:"supplier_id,omitempty"`
	Vertical          string    `gorm:"column:vertical" json:"vertical,omitempty"`
	ProductType       string    `gorm:"column:product_type" json:"product_type,omitempty"`
	OutersPerPackage  int       `gorm:"column:outers_per_package;not null;default:0" json:"outers_per_package"`
	PackagesPerPallet int       `gorm:"column:packages_per_pallet;not null;default:0" json:"packages_per_pallet"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Product) TableName() string { return "product" }
