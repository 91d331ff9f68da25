package observability

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// family is the shared shape of every exported metric: a name, a help line,
// and one float series per label set. Output is sorted so scrapes are stable.
type family struct {
	name       string
	help       string
	kind       string
	labelNames []string

	mu     sync.RWMutex
	series map[string]float64
}

func newFamily(name, help, kind string, labels []string) *family {
	return &family{name: name, help: help, kind: kind, labelNames: labels, series: map[string]float64{}}
}

func (f *family) update(values []string, fn func(old float64) float64) {
	key := labelString(f.labelNames, values)
	f.mu.Lock()
	f.series[key] = fn(f.series[key])
	f.mu.Unlock()
}

func (f *family) writeHeader(w io.Writer) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
	return err
}

func (f *family) write(w io.Writer) error {
	if err := f.writeHeader(w); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, key := range sortedKeys(f.series) {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", f.name, key, f.series[key]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type CounterVec struct{ *family }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{newFamily(name, help, "counter", labels)}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil || v < 0 {
		return
	}
	c.update(values, func(old float64) float64 { return old + v })
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.write(w)
}

// Counter is a CounterVec without labels.
type Counter struct{ *CounterVec }

func NewCounter(name, help string) *Counter {
	return &Counter{NewCounterVec(name, help, nil)}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.CounterVec.Add(1)
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.series[""]
}

type GaugeVec struct{ *family }

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{newFamily(name, help, "gauge", labels)}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	g.update(values, func(float64) float64 { return v })
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.write(w)
}

// Gauge is a GaugeVec without labels.
type Gauge struct{ *GaugeVec }

func NewGauge(name, help string) *Gauge {
	return &Gauge{NewGaugeVec(name, help, nil)}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.GaugeVec.Set(v)
}

func (g *Gauge) Inc() { g.add(1) }
func (g *Gauge) Dec() { g.add(-1) }

func (g *Gauge) add(d float64) {
	if g == nil {
		return
	}
	g.update(nil, func(old float64) float64 { return old + d })
}

var defaultBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type HistogramVec struct {
	*family
	buckets []float64
	hists   map[string]*histogram
}

// histogram keeps cumulative bucket counts; the last slot is +Inf.
type histogram struct {
	counts []uint64
	sum    float64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	return &HistogramVec{
		family:  newFamily(name, help, "histogram", labels),
		buckets: buckets,
		hists:   map[string]*histogram{},
	}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	key := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist := h.hists[key]
	if hist == nil {
		hist = &histogram{counts: make([]uint64, len(h.buckets)+1)}
		h.hists[key] = hist
	}
	hist.sum += v
	for i, upper := range h.buckets {
		if v <= upper {
			hist.counts[i]++
		}
	}
	hist.counts[len(h.buckets)]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if err := h.writeHeader(w); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range sortedKeys(h.hists) {
		hist := h.hists[key]
		for i, upper := range h.buckets {
			le := strconv.FormatFloat(upper, 'g', -1, 64)
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(key, le), hist.counts[i]); err != nil {
				return err
			}
		}
		total := hist.counts[len(h.buckets)]
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n%s_sum%s %f\n%s_count%s %d\n",
			h.name, withLe(key, "+Inf"), total,
			h.name, key, hist.sum,
			h.name, key, total,
		); err != nil {
			return err
		}
	}
	return nil
}

// labelString renders {a="x",b="y"}; missing values render as "unknown".
func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		parts[i] = name + `="` + escapeLabel(val) + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}

func withLe(labels string, le string) string {
	pair := `le="` + escapeLabel(le) + `"`
	inner := strings.TrimSuffix(strings.TrimPrefix(labels, "{"), "}")
	if inner == "" {
		return "{" + pair + "}"
	}
	return "{" + inner + "," + pair + "}"
}
