package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
)

// SeedData is the catalog fixture format accepted by `seed` and SEED_FILE.
type SeedData struct {
	Products []*types.Product `json:"products"`
	Codes    []*types.Code    `json:"codes"`
}

func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var data SeedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &data, nil
}

// Seed upserts products and codes; re-running it with the same file is a no-op.
func (a *App) Seed(ctx context.Context, data *SeedData) error {
	if data == nil {
		return nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	if len(data.Products) > 0 {
		if err := a.Repos.Products.Upsert(dbc, data.Products); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
	}
	if len(data.Codes) > 0 {
		if err := a.Repos.Codes.Upsert(dbc, data.Codes); err != nil {
			return fmt.Errorf("seed codes: %w", err)
		}
	}
	a.Log.Info("Seeded catalog", "products", len(data.Products), "codes", len(data.Codes))
	return nil
}
