package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveScan("PACKAGE", "OUTER", time.Millisecond)
	m.IncPublish("k", "ok")
	m.SetBreakerState("open")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil metrics must write nothing, got %v", err)
	}
}

func TestWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveScan("FULL", "TARGET", 3*time.Millisecond)
	m.IncCycleCompleted("PACKAGE")
	m.IncPublish("aggregation.cycle.request", "failed")
	m.SetBreakerState("open")

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`agg_scans_total{type="FULL",outcome="TARGET"} 1.000000`,
		`agg_scan_duration_seconds_bucket{type="FULL",le="0.005"} 1`,
		`agg_cycles_completed_total{level="PACKAGE"} 1.000000`,
		`agg_publish_total{routing_key="aggregation.cycle.request",status="failed"} 1.000000`,
		`agg_publish_breaker_open{state="open"} 1.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestLabelString(t *testing.T) {
	if got := labelString([]string{"a", "b"}, []string{`x"y`}); got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString=%s", got)
	}
	if got := withLe("", "0.5"); got != `{le="0.5"}` {
		t.Fatalf("withLe=%s", got)
	}
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("api-key=abc, bad ,x=")
	if len(h) != 1 || h["api-key"] != "abc" {
		t.Fatalf("headers=%v", h)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty input must yield nil")
	}
	if clampRatio(2) != 1 || clampRatio(-1) != 0 {
		t.Fatalf("clampRatio out of range")
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	h := NewHistogramVec("h", "test", []string{"k"}, []float64{0.1, 1})
	h.Observe(0.05, "a")
	h.Observe(0.5, "a")
	h.Observe(3, "a")

	var buf bytes.Buffer
	if err := h.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`h_bucket{k="a",le="0.1"} 1`,
		`h_bucket{k="a",le="1"} 2`,
		`h_bucket{k="a",le="+Inf"} 3`,
		`h_count{k="a"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestGaugeIncDec(t *testing.T) {
	g := NewGauge("g", "test")
	g.Inc()
	g.Inc()
	g.Dec()
	var buf bytes.Buffer
	if err := g.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	if !strings.Contains(buf.String(), "g 1.000000") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}
