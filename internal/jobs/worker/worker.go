package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/queue"
)

// Registration binds one subscription to its handler. MaxAttempts bounds
// deliveries that end in a panic; zero means unbounded.
type Registration struct {
	Name        string
	Sub         func(consumer string) queue.Subscription
	Handler     queue.Handler
	MaxAttempts int
}

// Pool runs Concurrency consumers per registration in one consumer group.
type Pool struct {
	log         *logger.Logger
	broker      queue.Broker
	concurrency int
	instance    string
	regs        []Registration
	wg          sync.WaitGroup
}

func NewPool(baseLog *logger.Logger, broker queue.Broker, concurrency int, instance string, regs ...Registration) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if instance == "" {
		instance = "worker"
	}
	return &Pool{
		log:         baseLog.With("component", "ConsumerPool"),
		broker:      broker,
		concurrency: concurrency,
		instance:    instance,
		regs:        regs,
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info("Starting consumer pool", "concurrency", p.concurrency, "registrations", len(p.regs))
	for _, reg := range p.regs {
		for i := 0; i < p.concurrency; i++ {
			workerID := i + 1
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.runLoop(ctx, reg, workerID)
			}()
		}
	}
}

// Wait blocks until every loop has returned after ctx is done.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runLoop(ctx context.Context, reg Registration, workerID int) {
	consumer := fmt.Sprintf("%s-%s-%d", p.instance, reg.Name, workerID)
	sub := reg.Sub(consumer)
	handler := p.guard(reg, workerID)
	backoff := time.Second

	for {
		err := p.broker.Consume(ctx, sub, handler)
		if ctx.Err() != nil {
			p.log.Info("Consumer loop stopped", "worker_id", workerID, "subscription", reg.Name)
			return
		}
		p.log.Warn("Consume returned; restarting",
			"worker_id", workerID,
			"subscription", reg.Name,
			"error", err,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// guard turns a handler panic into a Retry so one bad delivery cannot kill the
// loop. Once the delivery has used its last attempt it is dead-lettered instead.
func (p *Pool) guard(reg Registration, workerID int) queue.Handler {
	return func(ctx context.Context, msg queue.Message) (disp queue.Disposition) {
		defer func() {
			if r := recover(); r != nil {
				attempt := msg.RetryCount() + 1
				disp = queue.Retry
				if reg.MaxAttempts > 0 && attempt >= reg.MaxAttempts {
					disp = queue.DeadLetter
				}
				p.log.Error("Handler panic",
					"worker_id", workerID,
					"subscription", reg.Name,
					"message_id", msg.ID,
					"attempt", attempt,
					"disposition", disp.String(),
					"panic", r,
				)
			}
		}()
		return reg.Handler(ctx, msg)
	}
}
