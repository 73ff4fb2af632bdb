package metrics

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// value is a float64 updated atomically through its bit pattern.
type value struct {
	bits atomic.Uint64
}

func (v *value) load() float64 { return math.Float64frombits(v.bits.Load()) }

func (v *value) store(f float64) { v.bits.Store(math.Float64bits(f)) }

func (v *value) add(delta float64) {
	for {
		old := v.bits.Load()
		if v.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the interface implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Collect returns all metric samples for exposition.
	Collect() []Sample
}

// Sample represents a single metric sample with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// series is one label combination of a metric family.
type series[V any] struct {
	labels map[string]string
	value  V
}

// family holds the series of a metric, keyed by their label values.
type family[V any] struct {
	name       string
	help       string
	typ        MetricType
	labelNames []string
	init       func(*V)
	mu         sync.RWMutex
	series     map[string]*series[V]
}

func newFamily[V any](typ MetricType, name, help string, labelNames []string, init func(*V)) *family[V] {
	return &family[V]{
		name:       name,
		help:       help,
		typ:        typ,
		labelNames: labelNames,
		init:       init,
		series:     make(map[string]*series[V]),
	}
}

// Name returns the metric name.
func (f *family[V]) Name() string { return f.name }

// Help returns the help text.
func (f *family[V]) Help() string { return f.help }

// Type returns the metric type.
func (f *family[V]) Type() MetricType { return f.typ }

// with returns the series for values, creating it on first use.
func (f *family[V]) with(values []string) (*series[V], error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s %s expected %d labels, got %d",
			ErrLabelCountMismatch, f.typ, f.name, len(f.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; ok {
		return s, nil
	}
	s = &series[V]{labels: make(map[string]string, len(values))}
	for i, name := range f.labelNames {
		s.labels[name] = values[i]
	}
	if f.init != nil {
		f.init(&s.value)
	}
	f.series[key] = s
	return s, nil
}

func (f *family[V]) each(fn func(*series[V])) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.series {
		fn(s)
	}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	*family[value]
}

// CounterVec is one label combination of a Counter.
type CounterVec struct {
	v *value
}

// WithLabels returns the CounterVec for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	s, err := c.with(values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{v: &s.value}, nil
}

// Inc increments a counter without labels by 1.
func (c *Counter) Inc() error {
	return c.Add(1)
}

// Add adds delta to a counter without labels.
func (c *Counter) Add(delta float64) error {
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	if err := vec.Add(delta); err != nil {
		return fmt.Errorf("%w: counter %s", err, c.name)
	}
	return nil
}

// Collect returns all metric samples.
func (c *Counter) Collect() []Sample {
	var samples []Sample
	c.each(func(s *series[value]) {
		samples = append(samples, Sample{Name: c.name, Labels: s.labels, Value: s.value.load()})
	})
	return samples
}

// Inc increments the counter by 1.
func (v *CounterVec) Inc() error {
	return v.Add(1)
}

// Add adds delta to the counter. Negative deltas are rejected.
func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.v.add(delta)
	return nil
}

// Value returns the current counter value.
func (v *CounterVec) Value() float64 {
	return v.v.load()
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	*family[value]
}

// GaugeVec is one label combination of a Gauge.
type GaugeVec struct {
	v *value
}

// WithLabels returns the GaugeVec for the given label values.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	s, err := g.with(values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{v: &s.value}, nil
}

// Set sets a gauge without labels.
func (g *Gauge) Set(value float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Set(value)
	return nil
}

// Collect returns all metric samples.
func (g *Gauge) Collect() []Sample {
	var samples []Sample
	g.each(func(s *series[value]) {
		samples = append(samples, Sample{Name: g.name, Labels: s.labels, Value: s.value.load()})
	})
	return samples
}

func (v *GaugeVec) Set(f float64)     { v.v.store(f) }
func (v *GaugeVec) Inc()              { v.v.add(1) }
func (v *GaugeVec) Dec()              { v.v.add(-1) }
func (v *GaugeVec) Add(delta float64) { v.v.add(delta) }
func (v *GaugeVec) Value() float64    { return v.v.load() }

// histogramValue holds per-bucket counts for one series.
type histogramValue struct {
	counts []atomic.Uint64
	sum    value
	count  atomic.Uint64
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	*family[histogramValue]
	buckets []float64
}

// HistogramVec is one label combination of a Histogram.
type HistogramVec struct {
	buckets []float64
	v       *histogramValue
}

// WithLabels returns the HistogramVec for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	s, err := h.with(values)
	if err != nil {
		return nil, err
	}
	return &HistogramVec{buckets: h.buckets, v: &s.value}, nil
}

// Collect returns the cumulative bucket, _sum and _count samples.
func (h *Histogram) Collect() []Sample {
	var samples []Sample
	h.each(func(s *series[histogramValue]) {
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += s.value.counts[i].Load()
			labels := maps.Clone(s.labels)
			if labels == nil {
				labels = make(map[string]string, 1)
			}
			labels["le"] = formatFloat(bound)
			samples = append(samples, Sample{Name: h.name + "_bucket", Labels: labels, Value: float64(cumulative)})
		}
		samples = append(samples,
			Sample{Name: h.name + "_sum", Labels: s.labels, Value: s.value.sum.load()},
			Sample{Name: h.name + "_count", Labels: s.labels, Value: float64(s.value.count.Load())},
		)
	})
	return samples
}

// Observe records one observation in the first bucket whose bound holds it.
func (v *HistogramVec) Observe(f float64) {
	if i := slices.IndexFunc(v.buckets, func(bound float64) bool { return f <= bound }); i >= 0 {
		v.v.counts[i].Add(1)
	}
	v.v.sum.add(f)
	v.v.count.Add(1)
}

// Registry holds all registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates a new metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a new counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{family: newFamily[value](MetricTypeCounter, name, help, labels, nil)}
	r.register(c)
	return c
}

// NewGauge creates and registers a new gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{family: newFamily[value](MetricTypeGauge, name, help, labels, nil)}
	r.register(g)
	return g
}

// NewHistogram creates and registers a histogram. A +Inf bucket is added
// when missing.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	sorted := slices.Sorted(slices.Values(buckets))
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}
	h := &Histogram{buckets: sorted}
	h.family = newFamily(MetricTypeHistogram, name, help, labels, func(v *histogramValue) {
		v.counts = make([]atomic.Uint64, len(sorted))
	})
	r.register(h)
	return h
}

// register panics on duplicate names, since they produce invalid exposition
// output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteTo writes every metric in Prometheus text format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	metrics := append([]Metric(nil), r.metrics...)
	r.mu.RUnlock()

	cw := &countingWriter{w: w}
	for _, m := range metrics {
		writeMetric(cw, m)
		if cw.err != nil {
			break
		}
	}
	return cw.n, cw.err
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func writeMetric(w io.Writer, m Metric) {
	samples := m.Collect()
	if len(samples) == 0 {
		return
	}
	slices.SortFunc(samples, func(a, b Sample) int {
		return cmp.Or(
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(formatLabels(a.Labels), formatLabels(b.Labels)),
		)
	})

	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
	_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
	for _, s := range samples {
		if len(s.Labels) == 0 {
			_, _ = fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
		} else {
			_, _ = fmt.Fprintf(w, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
		}
	}
}

// formatLabels formats labels as key="value",key="value" in key order.
func formatLabels(labels map[string]string) string {
	keys := slices.Sorted(maps.Keys(labels))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escapeLabelValue(labels[k]) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

// SizeBuckets are histogram buckets for message sizes in bytes.
var SizeBuckets = []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576}
