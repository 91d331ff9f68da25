package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/queue"
)

type PublisherConfig struct {
	QueueSize        int
	AttemptTimeout   time.Duration
	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
	// DrainTimeout bounds how long Run keeps dispatching after ctx is done.
	DrainTimeout time.Duration
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		QueueSize:        1024,
		AttemptTimeout:   2 * time.Second,
		RetryAttempts:    3,
		RetryInitialWait: 100 * time.Millisecond,
		RetryMaxWait:     2 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
		DrainTimeout:     5 * time.Second,
	}
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	def := DefaultPublisherConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = def.AttemptTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.RetryInitialWait <= 0 {
		c.RetryInitialWait = def.RetryInitialWait
	}
	if c.RetryMaxWait <= 0 {
		c.RetryMaxWait = def.RetryMaxWait
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = def.BreakerThreshold
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = def.BreakerTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	return c
}

type outbound struct {
	routingKey string
	msg        queue.Message
}

// Publisher moves events off the scan path. Enqueue never blocks and never
// fails the caller; a single dispatcher goroutine owns all broker writes.
type Publisher struct {
	log     *logger.Logger
	broker  queue.Broker
	cfg     PublisherConfig
	pending chan outbound
	breaker circuitbreaker.CircuitBreaker[struct{}]
	retrier retry.Retry[struct{}]

	mu      sync.RWMutex
	stopped bool
}

func NewPublisher(baseLog *logger.Logger, broker queue.Broker, cfg PublisherConfig) *Publisher {
	cfg = cfg.withDefaults()
	threshold := cfg.BreakerThreshold
	return &Publisher{
		log:     baseLog.With("component", "EventPublisher"),
		broker:  broker,
		cfg:     cfg,
		pending: make(chan outbound, cfg.QueueSize),
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.BreakerTimeout,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		}),
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialWait,
			MaxDelay:      cfg.RetryMaxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryablePublishError,
		}),
	}
}

func isRetryablePublishError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Enqueue implements CycleSink.
func (p *Publisher) Enqueue(ev domainagg.CycleCompletionEvent) {
	p.enqueue(domainagg.RoutingCycleRequest, ev.EventID.String(), ev.CorrelationID, ev)
}

func (p *Publisher) EnqueueSessionClosed(ev domainagg.SessionClosedEvent) {
	p.enqueue(domainagg.RoutingSessionClosed, ev.EventID.String(), "", ev)
}

func (p *Publisher) enqueue(routingKey, id, correlationID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("event encode failed", "routing_key", routingKey, "event_id", id, "error", err)
		observability.Current().IncPublish(routingKey, "encode_error")
		return
	}
	msg := queue.Message{
		ID:         id,
		RoutingKey: routingKey,
		Headers:    map[string]string{queue.HeaderRetryCount: "0"},
		Body:       body,
	}
	if correlationID != "" {
		msg.Headers[queue.HeaderCorrelationID] = correlationID
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.log.Warn("publisher stopped; event dropped", "routing_key", routingKey, "event_id", id)
		observability.Current().IncPublish(routingKey, "dropped")
		return
	}
	select {
	case p.pending <- outbound{routingKey: routingKey, msg: msg}:
		observability.Current().SetPublishQueueDepth(len(p.pending))
	default:
		p.log.Warn("publish queue full; event dropped", "routing_key", routingKey, "event_id", id, "capacity", cap(p.pending))
		observability.Current().IncPublish(routingKey, "dropped")
	}
}

// Run dispatches until ctx is done, then drains what is already queued.
// Shutdown does not abort an in-flight publish; AttemptTimeout bounds it.
func (p *Publisher) Run(ctx context.Context) {
	p.log.Info("event publisher started", "queue_size", p.cfg.QueueSize)
	dispatchCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case ob := <-p.pending:
			p.dispatch(dispatchCtx, ob)
		}
	}
}

func (p *Publisher) drain() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
	defer cancel()
	for {
		select {
		case ob := <-p.pending:
			p.dispatch(ctx, ob)
		default:
			p.log.Info("event publisher stopped")
			return
		}
	}
}

func (p *Publisher) dispatch(ctx context.Context, ob outbound) {
	start := time.Now()
	_, err := p.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return p.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
			defer cancel()
			return struct{}{}, p.broker.Publish(attemptCtx, ob.routingKey, ob.msg)
		})
	})
	m := observability.Current()
	m.SetBreakerState(p.breaker.State().String())
	m.SetPublishQueueDepth(len(p.pending))
	if err != nil {
		m.IncPublish(ob.routingKey, "failed")
		p.log.Warn("event publish failed",
			"routing_key", ob.routingKey,
			"event_id", ob.msg.ID,
			"breaker", p.breaker.State().String(),
			"error", err,
		)
		return
	}
	m.IncPublish(ob.routingKey, "ok")
	p.log.Debug("event published", "routing_key", ob.routingKey, "event_id", ob.msg.ID, "duration", time.Since(start))
}

// BreakerState is "closed", "half-open" or "open".
func (p *Publisher) BreakerState() string {
	return p.breaker.State().String()
}
