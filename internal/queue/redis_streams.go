package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type RedisStreamConfig struct {
	// StreamPrefix is prepended to routing keys to form stream names.
	StreamPrefix string
	Group        string
	MaxLen       int64
	Block        time.Duration
	// ClaimIdle is how long a delivery may stay unacked before another
	// consumer in the group takes it over.
	ClaimIdle time.Duration
}

func (c RedisStreamConfig) withDefaults() RedisStreamConfig {
	if strings.TrimSpace(c.Group) == "" {
		c.Group = "aggregation"
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 100_000
	}
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = time.Minute
	}
	return c
}

type RedisStreamBroker struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	cfg RedisStreamConfig

	groups sync.Map
}

func NewRedisStreamBroker(log *logger.Logger, rdb goredis.UniversalClient, cfg RedisStreamConfig) (*RedisStreamBroker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStreamBroker{
		log: log.With("component", "RedisStreamBroker"),
		rdb: rdb,
		cfg: cfg.withDefaults(),
	}, nil
}

var _ Broker = (*RedisStreamBroker)(nil)

func (b *RedisStreamBroker) stream(routingKey string) string {
	return b.cfg.StreamPrefix + routingKey
}

func (b *RedisStreamBroker) addArgs(routingKey string, msg Message) (*goredis.XAddArgs, error) {
	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return nil, err
	}
	return &goredis.XAddArgs{
		Stream: b.stream(routingKey),
		MaxLen: b.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"routing_key": routingKey,
			"headers":     string(headers),
			"body":        string(msg.Body),
		},
	}, nil
}

func (b *RedisStreamBroker) Publish(ctx context.Context, routingKey string, msg Message) error {
	args, err := b.addArgs(routingKey, msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

func (b *RedisStreamBroker) ensureGroup(ctx context.Context, stream string) error {
	if _, ok := b.groups.Load(stream); ok {
		return nil
	}
	err := b.rdb.XGroupCreateMkStream(ctx, stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s/%s: %w", stream, b.cfg.Group, err)
	}
	b.groups.Store(stream, struct{}{})
	return nil
}

func (b *RedisStreamBroker) Consume(ctx context.Context, sub Subscription, h Handler) error {
	if h == nil {
		return fmt.Errorf("handler required")
	}
	if sub.Consumer == "" {
		return fmt.Errorf("consumer name required")
	}
	stream := b.stream(sub.RoutingKey)
	if err := b.ensureGroup(ctx, stream); err != nil {
		return err
	}
	log := b.log.With("stream", stream, "consumer", sub.Consumer)

	lastClaim := time.Time{}
	backoff := 250 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(lastClaim) >= b.cfg.ClaimIdle {
			lastClaim = time.Now()
			claimed, _, err := b.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
				Stream:   stream,
				Group:    b.cfg.Group,
				Consumer: sub.Consumer,
				MinIdle:  b.cfg.ClaimIdle,
				Start:    "0-0",
				Count:    16,
			}).Result()
			if err != nil && !errors.Is(err, goredis.Nil) && ctx.Err() == nil {
				log.Warn("xautoclaim failed", "error", err)
			}
			for _, xm := range claimed {
				b.deliver(ctx, log, stream, sub, xm, h)
			}
		}

		res, err := b.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: sub.Consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("xreadgroup failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 250 * time.Millisecond
		for _, xs := range res {
			for _, xm := range xs.Messages {
				b.deliver(ctx, log, stream, sub, xm, h)
			}
		}
	}
}

func decodeXMessage(xm goredis.XMessage) (Message, error) {
	msg := Message{ID: xm.ID}
	if v, ok := xm.Values["routing_key"].(string); ok {
		msg.RoutingKey = v
	}
	if v, ok := xm.Values["body"].(string); ok {
		msg.Body = []byte(v)
	}
	if v, ok := xm.Values["headers"].(string); ok && v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &msg.Headers); err != nil {
			return msg, fmt.Errorf("decode headers: %w", err)
		}
	}
	return msg, nil
}

func (b *RedisStreamBroker) deliver(ctx context.Context, log *logger.Logger, stream string, sub Subscription, xm goredis.XMessage, h Handler) {
	msg, err := decodeXMessage(xm)
	disp := DeadLetter
	if err != nil {
		log.Error("undecodable stream entry", "id", xm.ID, "error", err)
	} else {
		disp = h(ctx, msg)
	}
	if err := b.settle(ctx, stream, sub, msg, disp); err != nil {
		// Left pending; XAUTOCLAIM will hand it out again.
		log.Error("failed to settle delivery", "id", xm.ID, "disposition", disp.String(), "error", err)
	}
}

// settle acks the delivery, atomically with a republish for Retry/DeadLetter.
func (b *RedisStreamBroker) settle(ctx context.Context, stream string, sub Subscription, msg Message, disp Disposition) error {
	var (
		args *goredis.XAddArgs
		err  error
	)
	switch disp {
	case Retry:
		args, err = b.addArgs(sub.RoutingKey, msg.NextAttempt())
	case DeadLetter:
		if sub.DeadLetterKey != "" {
			args, err = b.addArgs(sub.DeadLetterKey, msg.cloneWith(HeaderOrigin, sub.RoutingKey))
		}
	}
	if err != nil {
		return err
	}
	_, err = b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if args != nil {
			pipe.XAdd(ctx, args)
		}
		pipe.XAck(ctx, stream, b.cfg.Group, msg.ID)
		return nil
	})
	return err
}

// Pending is the number of delivered but unacknowledged entries for the group.
func (b *RedisStreamBroker) Pending(ctx context.Context, routingKey string) (int64, error) {
	stream := b.stream(routingKey)
	res, err := b.rdb.XPending(ctx, stream, b.cfg.Group).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) || strings.Contains(err.Error(), "NOGROUP") {
			return 0, nil
		}
		return 0, err
	}
	return res.Count, nil
}

func (b *RedisStreamBroker) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
