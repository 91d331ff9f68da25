package aggregation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Type string

const (
	TypePackage Type = "PACKAGE"
	TypePallet  Type = "PALLET"
	TypeFull    Type = "FULL"
)

func (t Type) Valid() bool {
	switch t {
	case TypePackage, TypePallet, TypeFull:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusPaused    Status = "PAUSED"
	StatusClosed    Status = "CLOSED"
	StatusFinalized Status = "FINALIZED"
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusFinalized
}

// Session is one aggregation run. Progress lives only in the two processed
// arrays; every count is derived from their lengths.
type Session struct {
	ID                   uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	AggregationType      Type                        `gorm:"column:aggregation_type;not null;index" json:"aggregation_type"`
	OutersPerAggregation int                         `gorm:"column:outers_per_aggregation;not null" json:"outers_per_aggregation"`
	PackagesPerPallet    int                         `gorm:"column:packages_per_pallet;not null;default:0" json:"packages_per_pallet,omitempty"`
	ProductID            uuid.UUID                   `gorm:"type:uuid;column:product_id;not null;index" json:"product_id"`
	TargetCode           *string                     `gorm:"column:target_code;index" json:"target_code,omitempty"`
	ProcessedOuterCodes  datatypes.JSONSlice[string] `gorm:"column:processed_outer_codes;type:jsonb;not null;default:'[]'" json:"processed_outer_codes"`
	ProcessedParentCodes datatypes.JSONSlice[string] `gorm:"column:processed_parent_codes;type:jsonb;not null;default:'[]'" json:"processed_parent_codes"`
	Status               Status                      `gorm:"column:status;not null;index" json:"status"`
	CreatedBy            string                      `gorm:"column:created_by" json:"created_by,omitempty"`
	FinalizedAt          *time.Time                  `gorm:"column:finalized_at" json:"finalized_at,omitempty"`
	ClosedAt             *time.Time                  `gorm:"column:closed_at" json:"closed_at,omitempty"`
	CreatedAt            time.Time                   `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt            time.Time                   `gorm:"not null;default:now()" json:"updated_at"`
}

func (Session) TableName() string { return "aggregation_session" }

func (s *Session) TotalOuters() int {
	if s == nil {
		return 0
	}
	return len(s.ProcessedOuterCodes)
}

func (s *Session) TotalParents() int {
	if s == nil {
		return 0
	}
	return len(s.ProcessedParentCodes)
}

func (s *Session) HasTarget() bool {
	return s != nil && s.TargetCode != nil && *s.TargetCode != ""
}

// Contains reports whether value was already consumed by this session in any role.
func (s *Session) Contains(value string) bool {
	if s == nil || value == "" {
		return false
	}
	if s.HasTarget() && *s.TargetCode == value {
		return true
	}
	for _, v := range s.ProcessedOuterCodes {
		if v == value {
			return true
		}
	}
	for _, v := range s.ProcessedParentCodes {
		if v == value {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.ProcessedOuterCodes = append(datatypes.JSONSlice[string]{}, s.ProcessedOuterCodes...)
	out.ProcessedParentCodes = append(datatypes.JSONSlice[string]{}, s.ProcessedParentCodes...)
	if s.TargetCode != nil {
		v := *s.TargetCode
		out.TargetCode = &v
	}
	if s.FinalizedAt != nil {
		v := *s.FinalizedAt
		out.FinalizedAt = &v
	}
	if s.ClosedAt != nil {
		v := *s.ClosedAt
		out.ClosedAt = &v
	}
	return &out
}
