package testutil

import (
	"errors"
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	appdb "github.com/yungbote/aggregation-backend/internal/data/db"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

// shared holds one lazily opened resource per test binary.
type shared[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (s *shared[T]) get(open func() (T, error)) (T, error) {
	s.once.Do(func() { s.val, s.err = open() })
	return s.val, s.err
}

var (
	sharedLog shared[*logger.Logger]
	sharedDB  shared[*gorm.DB]
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := sharedLog.get(func() (*logger.Logger, error) { return logger.New("test") })
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

// DB returns the shared Postgres handle, migrated once. Tests skip when
// TEST_POSTGRES_DSN is unset.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := sharedDB.get(openPostgres)
	if errors.Is(err, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if err != nil {
		tb.Fatalf("init test db: %v", err)
	}
	return db
}

func openPostgres() (*gorm.DB, error) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		return nil, errMissingDSN
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := appdb.AutoMigrateAll(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

// SQLite opens a private in-memory database for tables that use no
// Postgres-specific column types.
func SQLite(tb testing.TB, models ...any) *gorm.DB {
	tb.Helper()
	sdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := sdb.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	if len(models) == 0 {
		models = []any{&types.Product{}}
	}
	if err := sdb.AutoMigrate(models...); err != nil {
		tb.Fatalf("sqlite migrate: %v", err)
	}
	return sdb
}
