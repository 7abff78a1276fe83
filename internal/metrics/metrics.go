package metrics

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

// maxTimerSamples bounds the window each timer keeps for percentiles.
const maxTimerSamples = 1000

// minPercentileSamples is the smallest window that reports P95 and P99.
const minPercentileSamples = 10

// Metric is a counter or gauge value with its labels.
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric summarises recorded durations in milliseconds. Percentiles
// cover the most recent maxTimerSamples observations.
type TimerMetric struct {
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels,omitempty"`
	Count   int64             `json:"count"`
	Sum     float64           `json:"sum_ms"`
	Min     float64           `json:"min_ms"`
	Max     float64           `json:"max_ms"`
	Average float64           `json:"avg_ms"`
	P95     float64           `json:"p95_ms,omitempty"`
	P99     float64           `json:"p99_ms,omitempty"`
}

type timerState struct {
	TimerMetric
	window []float64
	next   int
}

func (t *timerState) observe(ms float64) {
	if t.Count == 0 || ms < t.Min {
		t.Min = ms
	}
	if ms > t.Max {
		t.Max = ms
	}
	t.Count++
	t.Sum += ms

	if len(t.window) < maxTimerSamples {
		t.window = append(t.window, ms)
		return
	}
	t.window[t.next] = ms
	t.next = (t.next + 1) % maxTimerSamples
}

func (t *timerState) summary() TimerMetric {
	out := t.TimerMetric
	out.Labels = maps.Clone(t.Labels)
	if out.Count > 0 {
		out.Average = out.Sum / float64(out.Count)
	}
	if len(t.window) >= minPercentileSamples {
		sorted := slices.Sorted(slices.Values(t.window))
		out.P95 = percentile(sorted, 0.95)
		out.P99 = percentile(sorted, 0.99)
	}
	return out
}

// Snapshot is a point-in-time copy of a registry, keyed by name and labels.
type Snapshot struct {
	Counters  map[string]Metric      `json:"counters"`
	Timers    map[string]TimerMetric `json:"timers"`
	Gauges    map[string]Metric      `json:"gauges"`
	UptimeMs  int64                  `json:"uptime_ms"`
	Timestamp int64                  `json:"timestamp"`
}

// WithPrefix returns the metrics whose name starts with prefix.
func (s Snapshot) WithPrefix(prefix string) Snapshot {
	keep := func(name string) bool { return strings.HasPrefix(name, prefix) }
	out := s
	out.Counters = make(map[string]Metric)
	out.Gauges = make(map[string]Metric)
	out.Timers = make(map[string]TimerMetric)
	for k, m := range s.Counters {
		if keep(m.Name) {
			out.Counters[k] = m
		}
	}
	for k, m := range s.Gauges {
		if keep(m.Name) {
			out.Gauges[k] = m
		}
	}
	for k, m := range s.Timers {
		if keep(m.Name) {
			out.Timers[k] = m
		}
	}
	return out
}

// Registry holds metrics in memory. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*timerState
	gauges    map[string]*Metric
	startTime time.Time
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

var globalRegistry = NewRegistry()

func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	key := metricKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[key]
	if !ok {
		c = &Metric{Name: name, Type: Counter, Labels: maps.Clone(labels), Description: description}
		r.counters[key] = c
	}
	c.Value += value
	c.LastUpdate = time.Now()
}

func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	key := metricKey(name, labels)
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[key]
	if !ok {
		t = &timerState{TimerMetric: TimerMetric{Name: name, Labels: maps.Clone(labels)}}
		r.timers[key] = t
	}
	t.observe(ms)
}

func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	key := metricKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[key] = &Metric{
		Name:        name,
		Type:        Gauge,
		Value:       value,
		Labels:      maps.Clone(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Counters:  make(map[string]Metric, len(r.counters)),
		Timers:    make(map[string]TimerMetric, len(r.timers)),
		Gauges:    make(map[string]Metric, len(r.gauges)),
		UptimeMs:  time.Since(r.startTime).Milliseconds(),
		Timestamp: time.Now().Unix(),
	}
	for k, c := range r.counters {
		m := *c
		m.Labels = maps.Clone(c.Labels)
		s.Counters[k] = m
	}
	for k, g := range r.gauges {
		m := *g
		m.Labels = maps.Clone(g.Labels)
		s.Gauges[k] = m
	}
	for k, t := range r.timers {
		s.Timers[k] = t.summary()
	}
	return s
}

// Reset drops every metric and restarts the uptime clock.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters = make(map[string]*Metric)
	r.timers = make(map[string]*timerState)
	r.gauges = make(map[string]*Metric)
	r.startTime = time.Now()
}

// metricKey joins name with its labels sorted by key, so label order does not
// matter: m_method:GET_status:200.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString("_" + k + ":" + labels[k])
	}
	return b.String()
}

// percentile reads p from already sorted samples.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[min(int(float64(len(sorted))*p), len(sorted)-1)]
}

func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

func AddToCounter(name string, value float64, labels map[string]string, description string) {
	globalRegistry.AddToCounter(name, value, labels, description)
}

func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	globalRegistry.RecordTimer(name, duration, labels, description)
}

func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

// GetSnapshot copies the process-wide registry.
func GetSnapshot() Snapshot {
	return globalRegistry.Snapshot()
}
