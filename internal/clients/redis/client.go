package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient dials Redis and fails fast if the first ping does not answer.
// The broker, realtime bus, and metrics collector all share the returned client.
func NewClient(log *logger.Logger, opts Options) (goredis.UniversalClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
		// XREADGROUP blocks for the broker's block window; keep reads above it.
		ReadTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.With("service", "RedisClient").Info("Connected to Redis", "addr", addr, "db", opts.DB)
	return rdb, nil
}
