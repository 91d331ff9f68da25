package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/aggregation-backend/internal/pkg/envutil"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	scans          *CounterVec
	scanLatency    *HistogramVec
	commitConflict *Counter
	cycles         *CounterVec
	sessions       *CounterVec

	publish      *CounterVec
	publishQueue *Gauge
	breakerState *GaugeVec

	consumed        *CounterVec
	consumerLatency *HistogramVec
	streamPending   *GaugeVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Enabled reports METRICS_ENABLED.
func Enabled() bool {
	return envutil.GetEnvAsBool("METRICS_ENABLED", false, nil)
}

// Current is nil when metrics are disabled; every method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("agg_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"agg_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		apiInflight: NewGauge("agg_api_inflight_requests", "In-flight API requests."),

		scans: NewCounterVec("agg_scans_total", "Scans by session type and outcome (role or error kind).", []string{"type", "outcome"}),
		scanLatency: NewHistogramVec(
			"agg_scan_duration_seconds",
			"Validate plus commit latency by session type.",
			[]string{"type"},
			[]float64{0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		),
		commitConflict: NewCounter("agg_commit_conflicts_total", "Commits that lost a race and were re-validated."),
		cycles:         NewCounterVec("agg_cycles_completed_total", "Completed cycles by level.", []string{"level"}),
		sessions:       NewCounterVec("agg_session_events_total", "Session lifecycle events.", []string{"event"}),

		publish:      NewCounterVec("agg_publish_total", "Broker publishes by routing key and status.", []string{"routing_key", "status"}),
		publishQueue: NewGauge("agg_publish_queue_depth", "Events waiting in the in-process publish queue."),
		breakerState: NewGaugeVec("agg_publish_breaker_open", "1 when the publish circuit breaker is not closed.", []string{"state"}),

		consumed: NewCounterVec("agg_consumer_messages_total", "Consumed messages by routing key and disposition.", []string{"routing_key", "disposition"}),
		consumerLatency: NewHistogramVec(
			"agg_consumer_duration_seconds",
			"Configuration consumer processing time by outcome.",
			[]string{"outcome"},
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		streamPending: NewGaugeVec("agg_stream_pending", "Delivered but unacknowledged messages per routing key.", []string{"routing_key"}),

		pgStats:   NewGaugeVec("agg_postgres_pool", "Postgres pool stats.", []string{"stat"}),
		redisUp:   NewGauge("agg_redis_up", "1 if the last redis ping succeeded."),
		redisPing: NewGauge("agg_redis_ping_seconds", "Last redis ping latency."),
	}
}

// StartServer exposes /metrics-style text on addr until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	addr = strings.TrimSpace(addr)
	if m == nil || addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(m.WriteHTTP), ReadHeaderTimeout: 5 * time.Second}
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) families() []promWriter {
	return []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.scans, m.scanLatency, m.commitConflict, m.cycles, m.sessions,
		m.publish, m.publishQueue, m.breakerState,
		m.consumed, m.consumerLatency, m.streamPending,
		m.pgStats, m.redisUp, m.redisPing,
	}
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, f := range m.families() {
		if err := f.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route, status = orDefault(method, "UNKNOWN"), orDefault(route, "unknown"), orDefault(status, "0")
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveScan(sessionType, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.scans.Inc(sessionType, outcome)
	m.scanLatency.Observe(dur.Seconds(), sessionType)
}

func (m *Metrics) IncCommitConflict() {
	if m == nil {
		return
	}
	m.commitConflict.Inc()
}

func (m *Metrics) IncCycleCompleted(level string) {
	if m == nil {
		return
	}
	m.cycles.Inc(level)
}

func (m *Metrics) IncSessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessions.Inc(event)
}

func (m *Metrics) IncPublish(routingKey, status string) {
	if m == nil {
		return
	}
	m.publish.Inc(routingKey, status)
}

func (m *Metrics) SetPublishQueueDepth(n int) {
	if m == nil {
		return
	}
	m.publishQueue.Set(float64(n))
}

func (m *Metrics) SetBreakerState(state string) {
	if m == nil {
		return
	}
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.breakerState.Set(v, s)
	}
}

func (m *Metrics) ObserveConsumed(routingKey, disposition string, dur time.Duration) {
	if m == nil {
		return
	}
	m.consumed.Inc(routingKey, disposition)
	m.consumerLatency.Observe(dur.Seconds(), disposition)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
