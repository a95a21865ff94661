// Package metrics keeps Palette's routing counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide registry served at /metrics.
var Default = NewRegistry()

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var runLatencyBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// Registry holds every metric family Palette exports.
type Registry struct {
	start time.Time

	RunsStarted  *CounterVec
	RunsInFlight *GaugeVec
	Runs         *CounterVec   // strategy, outcome
	RunLatency   *HistogramVec // strategy
	Labels       *CounterVec   // label
	LLMRequests  *CounterVec   // outcome
	ToolCalls    *CounterVec   // tool, outcome
}

func NewRegistry() *Registry {
	return &Registry{
		start:        time.Now(),
		RunsStarted:  newCounterVec("palette_runs_started_total", "Routed runs started"),
		RunsInFlight: newGaugeVec("palette_runs_in_flight", "Runs currently being processed"),
		Runs:         newCounterVec("palette_runs_total", "Finished runs by strategy and outcome", "strategy", "outcome"),
		RunLatency:   newHistogramVec("palette_run_latency_seconds", "Run latency in seconds by strategy", runLatencyBuckets, "strategy"),
		Labels:       newCounterVec("palette_classifications_total", "Classifier labels produced", "label"),
		LLMRequests:  newCounterVec("palette_llm_requests_total", "Model calls made by the tool agent", "outcome"),
		ToolCalls:    newCounterVec("palette_tool_calls_total", "Tool invocations by tool and outcome", "tool", "outcome"),
	}
}

// StartRun counts a started run and returns the function that records how
// it finished.
func (r *Registry) StartRun() func(strategy, outcome string) {
	start := time.Now()
	r.RunsStarted.With().Inc()
	r.RunsInFlight.With().Inc()
	return func(strategy, outcome string) {
		r.RunsInFlight.With().Dec()
		r.Runs.With(strategy, outcome).Inc()
		r.RunLatency.With(strategy).Observe(time.Since(start).Seconds())
	}
}

// RecordLabel counts one classification outcome.
func (r *Registry) RecordLabel(label string) {
	r.Labels.With(label).Inc()
}

func (r *Registry) RecordLLMRequest(err error) {
	r.LLMRequests.With(outcome(err)).Inc()
}

func (r *Registry) RecordToolCall(tool string, err error) {
	r.ToolCalls.With(tool, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Handler renders every family, uptime first.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP palette_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE palette_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "palette_uptime_seconds %d\n", int64(time.Since(r.start).Seconds()))
		r.RunsStarted.write(&sb)
		r.RunsInFlight.write(&sb)
		r.Runs.write(&sb)
		r.RunLatency.write(&sb)
		r.Labels.write(&sb)
		r.LLMRequests.write(&sb)
		r.ToolCalls.write(&sb)
		io.WriteString(w, sb.String())
	}
}

// --- families ---

// family is one metric name with a fixed label set; series are created on
// first use.
type family[S any] struct {
	name   string
	help   string
	kind   string
	labels []string
	mk     func() S

	mu     sync.Mutex
	series map[string]S
	values map[string][]string
}

func newFamily[S any](name, help, kind string, labels []string, mk func() S) *family[S] {
	return &family[S]{
		name: name, help: help, kind: kind, labels: labels, mk: mk,
		series: make(map[string]S),
		values: make(map[string][]string),
	}
}

func (f *family[S]) with(values []string) S {
	if len(values) != len(f.labels) {
		panic(fmt.Sprintf("metrics: %s takes %d label values, got %d", f.name, len(f.labels), len(values)))
	}
	key := strings.Join(values, "\xff")
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[key]
	if !ok {
		s = f.mk()
		f.series[key] = s
		f.values[key] = append([]string(nil), values...)
	}
	return s
}

func (f *family[S]) lookup(values []string) (S, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[strings.Join(values, "\xff")]
	return s, ok
}

// each visits series in label order with their rendered label pairs.
func (f *family[S]) each(fn func(pairs string, s S)) {
	f.mu.Lock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	type entry struct {
		pairs string
		s     S
	}
	entries := make([]entry, len(keys))
	for i, k := range keys {
		entries[i] = entry{pairs: f.pairs(f.values[k]), s: f.series[k]}
	}
	f.mu.Unlock()

	for _, e := range entries {
		fn(e.pairs, e.s)
	}
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func (f *family[S]) pairs(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = f.labels[i] + `="` + labelEscaper.Replace(v) + `"`
	}
	return strings.Join(parts, ",")
}

func (f *family[S]) header(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
}

func braced(pairs string) string {
	if pairs == "" {
		return ""
	}
	return "{" + pairs + "}"
}

// Counter only goes up.
type Counter struct{ v atomic.Int64 }

func (c *Counter) Inc()         { c.v.Add(1) }
func (c *Counter) Add(n int64)  { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

type CounterVec struct{ f *family[*Counter] }

func newCounterVec(name, help string, labels ...string) *CounterVec {
	return &CounterVec{f: newFamily(name, help, "counter", labels, func() *Counter { return &Counter{} })}
}

// With returns the series for the given label values, in label order.
func (v *CounterVec) With(values ...string) *Counter { return v.f.with(values) }

// Value reads a series without creating it.
func (v *CounterVec) Value(values ...string) int64 {
	if c, ok := v.f.lookup(values); ok {
		return c.Value()
	}
	return 0
}

func (v *CounterVec) write(sb *strings.Builder) {
	v.f.header(sb)
	v.f.each(func(pairs string, c *Counter) {
		fmt.Fprintf(sb, "%s%s %d\n", v.f.name, braced(pairs), c.Value())
	})
}

// Gauge goes up and down.
type Gauge struct{ v atomic.Int64 }

func (g *Gauge) Inc()         { g.v.Add(1) }
func (g *Gauge) Dec()         { g.v.Add(-1) }
func (g *Gauge) Set(n int64)  { g.v.Store(n) }
func (g *Gauge) Value() int64 { return g.v.Load() }

type GaugeVec struct{ f *family[*Gauge] }

func newGaugeVec(name, help string, labels ...string) *GaugeVec {
	return &GaugeVec{f: newFamily(name, help, "gauge", labels, func() *Gauge { return &Gauge{} })}
}

func (v *GaugeVec) With(values ...string) *Gauge { return v.f.with(values) }

func (v *GaugeVec) write(sb *strings.Builder) {
	v.f.header(sb)
	v.f.each(func(pairs string, g *Gauge) {
		fmt.Fprintf(sb, "%s%s %d\n", v.f.name, braced(pairs), g.Value())
	})
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	upper []float64

	mu     sync.Mutex
	counts []int64
	count  int64
	sum    float64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.upper {
		if v <= le {
			h.counts[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

type HistogramVec struct {
	f *family[*Histogram]
}

func newHistogramVec(name, help string, buckets []float64, labels ...string) *HistogramVec {
	upper := append([]float64(nil), buckets...)
	sort.Float64s(upper)
	return &HistogramVec{f: newFamily(name, help, "histogram", labels, func() *Histogram {
		return &Histogram{upper: upper, counts: make([]int64, len(upper))}
	})}
}

func (v *HistogramVec) With(values ...string) *Histogram { return v.f.with(values) }

func (v *HistogramVec) write(sb *strings.Builder) {
	v.f.header(sb)
	v.f.each(func(pairs string, h *Histogram) {
		h.mu.Lock()
		defer h.mu.Unlock()
		prefix := v.f.name + "_bucket{"
		if pairs != "" {
			prefix += pairs + ","
		}
		for i, le := range h.upper {
			fmt.Fprintf(sb, "%sle=\"%s\"} %d\n", prefix, strconv.FormatFloat(le, 'g', -1, 64), h.counts[i])
		}
		fmt.Fprintf(sb, "%sle=\"+Inf\"} %d\n", prefix, h.count)
		fmt.Fprintf(sb, "%s_sum%s %g\n", v.f.name, braced(pairs), h.sum)
		fmt.Fprintf(sb, "%s_count%s %d\n", v.f.name, braced(pairs), h.count)
	})
}
