package observability

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/aggregation-backend/internal/pkg/envutil"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

func scrapeInterval() time.Duration {
	secs := envutil.GetEnvAsInt("METRICS_SCRAPE_INTERVAL_SECONDS", 10, nil)
	if secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

// poll runs collect on every scrape tick until ctx is done.
func poll(ctx context.Context, collect func(ctx context.Context)) {
	ticker := time.NewTicker(scrapeInterval())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(ctx)
			}
		}
	}()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	poll(ctx, func(context.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("postgres pool stats unavailable", "error", err)
			}
			return
		}
		st := sqlDB.Stats()
		for stat, v := range map[string]float64{
			"open_connections":      float64(st.OpenConnections),
			"in_use":                float64(st.InUse),
			"idle":                  float64(st.Idle),
			"wait_count":            float64(st.WaitCount),
			"wait_duration_seconds": st.WaitDuration.Seconds(),
		} {
			m.pgStats.Set(v, stat)
		}
	})
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	poll(ctx, func(ctx context.Context) {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Warn("redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

// PendingSource reports unacknowledged deliveries for a routing key.
type PendingSource interface {
	Pending(ctx context.Context, routingKey string) (int64, error)
}

func (m *Metrics) StartStreamCollector(ctx context.Context, log *logger.Logger, src PendingSource, routingKeys ...string) {
	if m == nil || src == nil || len(routingKeys) == 0 {
		return
	}
	poll(ctx, func(ctx context.Context) {
		for _, key := range routingKeys {
			n, err := src.Pending(ctx, key)
			if err != nil {
				if log != nil {
					log.Warn("stream pending query failed", "routing_key", key, "error", err)
				}
				continue
			}
			m.streamPending.Set(float64(n), key)
		}
	})
}
