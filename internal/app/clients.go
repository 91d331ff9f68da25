package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/aggregation-backend/internal/clients/redis"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/queue"
	"github.com/yungbote/aggregation-backend/internal/realtime/bus"
)

type Clients struct {
	Redis  goredis.UniversalClient
	Broker queue.Broker
	Bus    bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...", "broker", cfg.BrokerDriver)

	if !cfg.UsesRedis() {
		return Clients{
			Broker: queue.NewMemoryBroker(),
			Bus:    bus.NewMemoryBus(),
		}, nil
	}

	rdb, err := redis.NewClient(log, redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	broker, err := queue.NewRedisStreamBroker(log, rdb, queue.RedisStreamConfig{
		StreamPrefix: cfg.QueueStreamPrefix,
		Group:        cfg.QueueGroup,
		ClaimIdle:    cfg.QueueClaimIdle,
	})
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init stream broker: %w", err)
	}
	sseBus, err := bus.NewRedisBus(log, rdb, cfg.RedisChannel)
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
	}
	return Clients{Redis: rdb, Broker: broker, Bus: sseBus}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Broker != nil {
		_ = c.Broker.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
