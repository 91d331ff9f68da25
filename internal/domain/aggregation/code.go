package aggregation

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CodeKind string

const (
	KindSingle   CodeKind = "SINGLE"
	KindComposed CodeKind = "COMPOSED"
)

type UnitType string

const (
	UnitOuter UnitType = "OUTER"
	UnitOther UnitType = "OTHER"
)

// SubType is the optional explicit PACKAGE/PALLET marker on a composed code.
// When empty, the sub-type is derived from the value (see Classify).
type SubType string

const (
	SubTypeNone    SubType = ""
	SubTypePackage SubType = "PACKAGE"
	SubTypePallet  SubType = "PALLET"
)

// Code is a QR-coded unit record. The engine reads it and issues conditional
// partial updates; it never overwrites a whole record.
type Code struct {
	Value        string                      `gorm:"column:value;primaryKey" json:"value"`
	Kind         CodeKind                    `gorm:"column:kind;not null;index" json:"kind"`
	UnitType     UnitType                    `gorm:"column:unit_type;not null;default:'OTHER'" json:"unit_type"`
	SubType      SubType                     `gorm:"column:sub_type" json:"sub_type,omitempty"`
	IsConfigured bool                        `gorm:"column:is_configured;not null;default:false;index" json:"is_configured"`
	ConfiguredAt *time.Time                  `gorm:"column:configured_at" json:"configured_at,omitempty"`
	IsAggregated bool                        `gorm:"column:is_aggregated;not null;default:false" json:"is_aggregated"`
	Parents      datatypes.JSONSlice[string] `gorm:"column:parents;type:jsonb;not null;default:'[]'" json:"parents"`
	DirectParent *string                     `gorm:"column:direct_parent;index" json:"direct_parent,omitempty"`
	ProductData  datatypes.JSON              `gorm:"column:product_data;type:jsonb" json:"product_data,omitempty"`

	SupplierID  string     `gorm:"column:supplier_id;index" json:"supplier_id,omitempty"`
	Vertical    string     `gorm:"column:vertical" json:"vertical,omitempty"`
	ProductType string     `gorm:"column:product_type" json:"product_type,omitempty"`
	ProductID   *uuid.UUID `gorm:"type:uuid;column:product_id;index" json:"product_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Code) TableName() string { return "code" }

// HasProductData reports whether aggregate counters were already attached.
func (c *Code) HasProductData() bool {
	if c == nil {
		return false
	}
	return !EmptyJSON(c.ProductData)
}

// Configured is the "already configured" test used by validation: any of the
// flag, the timestamp or attached counters counts.
func (c *Code) Configured() bool {
	if c == nil {
		return false
	}
	return c.IsConfigured || c.ConfiguredAt != nil || c.HasProductData()
}

func (c *Code) HasParent(value string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Parents {
		if p == value {
			return true
		}
	}
	return false
}

// Enrichment is the descriptive metadata a parent inherits from its first child.
type Enrichment struct {
	SupplierID  string     `json:"supplier_id,omitempty"`
	Vertical    string     `json:"vertical,omitempty"`
	ProductType string     `json:"product_type,omitempty"`
	ProductID   *uuid.UUID `json:"product_id,omitempty"`
}

func EnrichmentFrom(c *Code) Enrichment {
	if c == nil {
		return Enrichment{}
	}
	out := Enrichment{
		SupplierID:  c.SupplierID,
		Vertical:    c.Vertical,
		ProductType: c.ProductType,
	}
	if c.ProductID != nil {
		id := *c.ProductID
		out.ProductID = &id
	}
	return out
}

// ProductData holds the aggregate counters attached to a child once its cycle
// is configured. Totals are the session totals at commit time.
type ProductData struct {
	SessionID            uuid.UUID `json:"session_id"`
	ParentCode           string    `json:"parent_code"`
	Level                Level     `json:"level"`
	CycleNumber          int       `json:"cycle_number"`
	Position             int       `json:"position"`
	OutersPerAggregation int       `json:"outers_per_aggregation"`
	TotalOuters          int       `json:"total_outers"`
	TotalParents         int       `json:"total_parents"`
	ConfiguredAt         time.Time `json:"configured_at"`
}

func (p ProductData) JSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// EmptyJSON treats nil, "null", "{}" and "[]" as empty.
func EmptyJSON(raw datatypes.JSON) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", "{}", "[]":
		return true
	default:
		return false
	}
}
