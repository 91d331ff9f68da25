package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
)

func SeedProduct(tb testing.TB, ctx context.Context, tx *gorm.DB, outersPerPackage, packagesPerPallet int) *types.Product {
	tb.Helper()
	p := &types.Product{
		ID:                uuid.New(),
		Name:              "product",
		SupplierID:        "supplier-1",
		Vertical:          "beverages",
		ProductType:       "bottle",
		OutersPerPackage:  outersPerPackage,
		PackagesPerPallet: packagesPerPallet,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed product: %v", err)
	}
	return p
}

func SeedOuter(tb testing.TB, ctx context.Context, tx *gorm.DB, value string, productID *uuid.UUID) *types.Code {
	tb.Helper()
	c := &types.Code{
		Value:       value,
		Kind:        domainagg.KindSingle,
		UnitType:    domainagg.UnitOuter,
		Parents:     []string{},
		SupplierID:  "supplier-1",
		Vertical:    "beverages",
		ProductType: "bottle",
		ProductID:   productID,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed outer: %v", err)
	}
	return c
}

func SeedComposed(tb testing.TB, ctx context.Context, tx *gorm.DB, value string, sub domainagg.SubType) *types.Code {
	tb.Helper()
	c := &types.Code{
		Value:    value,
		Kind:     domainagg.KindComposed,
		UnitType: domainagg.UnitOther,
		SubType:  sub,
		Parents:  []string{},
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed composed: %v", err)
	}
	return c
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, t domainagg.Type, n, ppp int, productID uuid.UUID) *types.AggregationSession {
	tb.Helper()
	s := &types.AggregationSession{
		ID:                   uuid.New(),
		AggregationType:      t,
		OutersPerAggregation: n,
		PackagesPerPallet:    ppp,
		ProductID:            productID,
		ProcessedOuterCodes:  []string{},
		ProcessedParentCodes: []string{},
		Status:               domainagg.StatusOpen,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}
