package dbctx

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type ctxKey struct{}

func TestResolvePrefersTransaction(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	tx := db.Begin()
	defer tx.Rollback()

	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	got := Context{Ctx: ctx, Tx: tx}.Resolve(db)
	if got.Statement.ConnPool != tx.Statement.ConnPool {
		t.Fatalf("expected the transaction's connection")
	}
	if got.Statement.Context.Value(ctxKey{}) != "v" {
		t.Fatalf("request context not bound")
	}

	got = Context{}.Resolve(db)
	if got.Statement.ConnPool != db.Statement.ConnPool {
		t.Fatalf("expected the fallback connection")
	}
	if got.Statement.Context == nil {
		t.Fatalf("nil ctx should resolve to background")
	}
}
