package db

import (
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/aggregation-backend/internal/pkg/envutil"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

// PostgresConfig is read from POSTGRES_*. DSN wins over the discrete fields.
type PostgresConfig struct {
	DSN          string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	MaxOpenConns int
	MaxIdleConns int
	SlowQuery    time.Duration
}

func LoadPostgresConfig(log *logger.Logger) PostgresConfig {
	return PostgresConfig{
		DSN:          envutil.GetEnv("POSTGRES_DSN", "", log),
		Host:         envutil.GetEnv("POSTGRES_HOST", "localhost", log),
		Port:         envutil.GetEnv("POSTGRES_PORT", "5432", log),
		User:         envutil.GetEnv("POSTGRES_USER", "postgres", log),
		Password:     envutil.GetEnv("POSTGRES_PASSWORD", "", log),
		Name:         envutil.GetEnv("POSTGRES_NAME", "aggregation", log),
		MaxOpenConns: envutil.GetEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25, log),
		MaxIdleConns: envutil.GetEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5, log),
		SlowQuery:    envutil.GetEnvAsDuration("POSTGRES_SLOW_QUERY", 500*time.Millisecond, log),
	}
}

func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// gormWriter routes gorm's slow-query and error lines into the service log.
type gormWriter struct{ log *logger.Logger }

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(logg *logger.Logger) (*PostgresService, error) {
	return OpenPostgres(logg, LoadPostgresConfig(logg))
}

func OpenPostgres(logg *logger.Logger, cfg PostgresConfig) (*PostgresService, error) {
	serviceLog := logg.With("service", "PostgresService")

	db, err := gorm.Open(postgres.Open(cfg.ConnString()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(gormWriter{log: serviceLog}, gormLogger.Config{
			SlowThreshold:             cfg.SlowQuery,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	serviceLog.Info("connected to postgres", "host", cfg.Host, "database", cfg.Name)
	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
