package aggregation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	aggrepo "github.com/yungbote/aggregation-backend/internal/data/repos/aggregation"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/queue"
)

const DefaultMaxAttempts = 3

type ConsumerConfig struct {
	// MaxAttempts is the total number of deliveries before dead-lettering.
	MaxAttempts     int
	LoadConcurrency int
	LoadBatchSize   int
	ResultTimeout   time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.LoadConcurrency <= 0 {
		c.LoadConcurrency = 4
	}
	if c.LoadBatchSize <= 0 {
		c.LoadBatchSize = 100
	}
	if c.ResultTimeout <= 0 {
		c.ResultTimeout = 5 * time.Second
	}
	return c
}

// Consumer applies cycle events to code records. Every write it issues is
// conditional, so a redelivered or out-of-order event converges to the same state.
type Consumer struct {
	log    *logger.Logger
	codes  aggrepo.CodeRepo
	broker queue.Broker
	cfg    ConsumerConfig
	now    func() time.Time
}

func NewConsumer(baseLog *logger.Logger, codes aggrepo.CodeRepo, broker queue.Broker, cfg ConsumerConfig) *Consumer {
	return &Consumer{
		log:    baseLog.With("component", "ConfigurationConsumer"),
		codes:  codes,
		broker: broker,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

func (c *Consumer) Subscription(consumer string) queue.Subscription {
	return queue.Subscription{
		RoutingKey:    domainagg.RoutingCycleRequest,
		DeadLetterKey: domainagg.RoutingCycleDeadLetter,
		Consumer:      consumer,
	}
}

// Handle is the queue.Handler for cycle requests.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) queue.Disposition {
	start := time.Now()
	attempt := msg.RetryCount() + 1

	var ev domainagg.CycleCompletionEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		c.log.Error("undecodable cycle event", "message_id", msg.ID, "error", err)
		observability.Current().ObserveConsumed(msg.RoutingKey, queue.DeadLetter.String(), time.Since(start))
		return queue.DeadLetter
	}

	ctx, span := observability.Tracer().Start(ctx, "aggregation.consume")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", ev.SessionID.String()),
		attribute.String("cycle.parent", ev.ParentCode),
		attribute.Int("cycle.number", ev.CycleNumber),
		attribute.Int("delivery.attempt", attempt),
	)

	log := c.log.With(
		"event_id", ev.EventID,
		"session_id", ev.SessionID,
		"parent_code", ev.ParentCode,
		"cycle_number", ev.CycleNumber,
		"attempt", attempt,
		"correlation_id", msg.Header(queue.HeaderCorrelationID),
	)

	linked, err := c.processGuarded(ctx, ev)
	if err == nil {
		c.emitResult(ctx, ev, linked, "", attempt, time.Since(start))
		observability.Current().ObserveConsumed(msg.RoutingKey, queue.Ack.String(), time.Since(start))
		log.Info("cycle configured", "linked_children", len(linked), "duration", time.Since(start))
		return queue.Ack
	}

	span.RecordError(err)
	if attempt >= c.cfg.MaxAttempts {
		c.emitResult(ctx, ev, nil, err.Error(), attempt, time.Since(start))
		observability.Current().ObserveConsumed(msg.RoutingKey, queue.DeadLetter.String(), time.Since(start))
		log.Error("cycle configuration exhausted retries; dead-lettering", "error", err)
		return queue.DeadLetter
	}
	observability.Current().ObserveConsumed(msg.RoutingKey, queue.Retry.String(), time.Since(start))
	log.Warn("cycle configuration failed; will retry", "error", err, "max_attempts", c.cfg.MaxAttempts)
	return queue.Retry
}

// MaxAttempts is the delivery budget for one cycle event.
func (c *Consumer) MaxAttempts() int { return c.cfg.MaxAttempts }

// processGuarded reports a panic in Process as an ordinary failure so it is
// counted against the attempt budget and ends in a failure result.
func (c *Consumer) processGuarded(ctx context.Context, ev domainagg.CycleCompletionEvent) (linked []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			linked, err = nil, fmt.Errorf("panic configuring cycle: %v", r)
		}
	}()
	return c.Process(ctx, ev)
}

// Process runs enrichment, per-child counters and linking for one event and
// returns the children linked to the parent.
func (c *Consumer) Process(ctx context.Context, ev domainagg.CycleCompletionEvent) ([]string, error) {
	parentCode := strings.TrimSpace(ev.ParentCode)
	if parentCode == "" || len(ev.ChildCodes) == 0 {
		return nil, fmt.Errorf("cycle event %s has no parent or children", ev.EventID)
	}

	parent, children, err := c.load(ctx, parentCode, ev.ChildCodes)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("parent code %s not found", parentCode)
	}
	for _, v := range ev.ChildCodes {
		if children[v] == nil {
			return nil, fmt.Errorf("child code %s not found", v)
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	now := c.now().UTC()

	if !parent.IsConfigured {
		meta := domainagg.EnrichmentFrom(children[ev.ChildCodes[0]])
		if _, err := c.codes.MarkConfigured(dbc, parentCode, meta, now); err != nil {
			return nil, fmt.Errorf("enrich parent %s: %w", parentCode, err)
		}
	}

	for i, value := range ev.ChildCodes {
		child := children[value]
		if !child.HasProductData() {
			data, err := domainagg.ProductData{
				SessionID:            ev.SessionID,
				ParentCode:           parentCode,
				Level:                ev.Level,
				CycleNumber:          ev.CycleNumber,
				Position:             i + 1,
				OutersPerAggregation: ev.OutersPerAggregation,
				TotalOuters:          ev.TotalOuters,
				TotalParents:         ev.TotalParents,
				ConfiguredAt:         now,
			}.JSON()
			if err != nil {
				return nil, fmt.Errorf("encode counters for %s: %w", value, err)
			}
			if _, err := c.codes.AttachProductData(dbc, value, data); err != nil {
				return nil, fmt.Errorf("attach counters to %s: %w", value, err)
			}
		}
		if _, err := c.codes.LinkParent(dbc, value, parentCode); err != nil {
			return nil, fmt.Errorf("link %s to %s: %w", value, parentCode, err)
		}
	}

	if ev.Level == domainagg.LevelPallet {
		if _, err := c.codes.MarkAggregated(dbc, ev.ChildCodes); err != nil {
			return nil, fmt.Errorf("mark packages aggregated: %w", err)
		}
	}

	linked := make([]string, len(ev.ChildCodes))
	copy(linked, ev.ChildCodes)
	return linked, nil
}

func (c *Consumer) load(ctx context.Context, parentCode string, childCodes []string) (*types.Code, map[string]*types.Code, error) {
	var parent *types.Code
	batches := make([][]*types.Code, 0, len(childCodes)/c.cfg.LoadBatchSize+1)
	for i := 0; i < len(childCodes); i += c.cfg.LoadBatchSize {
		batches = append(batches, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.LoadConcurrency)
	g.Go(func() error {
		p, err := c.codes.GetByValue(dbctx.Context{Ctx: gctx}, parentCode)
		if err != nil {
			return fmt.Errorf("load parent %s: %w", parentCode, err)
		}
		parent = p
		return nil
	})
	for b := range batches {
		start := b * c.cfg.LoadBatchSize
		end := start + c.cfg.LoadBatchSize
		if end > len(childCodes) {
			end = len(childCodes)
		}
		g.Go(func() error {
			rows, err := c.codes.GetByValues(dbctx.Context{Ctx: gctx}, childCodes[start:end])
			if err != nil {
				return fmt.Errorf("load children: %w", err)
			}
			batches[b] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	children := make(map[string]*types.Code, len(childCodes))
	for _, rows := range batches {
		for _, row := range rows {
			if row != nil {
				children[row.Value] = row
			}
		}
	}
	return parent, children, nil
}

func (c *Consumer) emitResult(ctx context.Context, ev domainagg.CycleCompletionEvent, linked []string, errMsg string, attempts int, dur time.Duration) {
	if linked == nil {
		linked = []string{}
	}
	result := domainagg.ConfigurationResultEvent{
		EventID:              uuid.New(),
		SessionID:            ev.SessionID,
		ParentCode:           ev.ParentCode,
		CycleNumber:          ev.CycleNumber,
		Success:              errMsg == "",
		LinkedChildren:       linked,
		ErrorMessage:         errMsg,
		ProcessingDurationMs: dur.Milliseconds(),
		Attempts:             attempts,
		Timestamp:            c.now().UTC(),
	}
	body, err := json.Marshal(result)
	if err != nil {
		c.log.Error("result encode failed", "event_id", ev.EventID, "error", err)
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ResultTimeout)
	defer cancel()
	msg := queue.Message{
		ID:         result.EventID.String(),
		RoutingKey: domainagg.RoutingCycleResult,
		Headers:    map[string]string{queue.HeaderCorrelationID: ev.CorrelationID},
		Body:       body,
	}
	if err := c.broker.Publish(pctx, domainagg.RoutingCycleResult, msg); err != nil {
		observability.Current().IncPublish(domainagg.RoutingCycleResult, "failed")
		c.log.Warn("result publish failed", "event_id", ev.EventID, "error", err)
		return
	}
	observability.Current().IncPublish(domainagg.RoutingCycleResult, "ok")
}
