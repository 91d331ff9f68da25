package db

import (
	"fmt"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	// Containment lookups on the processed arrays and on code parents.
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_aggregation_session_outers_gin ON aggregation_session USING GIN (processed_outer_codes jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_aggregation_session_parents_gin ON aggregation_session USING GIN (processed_parent_codes jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_code_parents_gin ON code USING GIN (parents jsonb_path_ops)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
