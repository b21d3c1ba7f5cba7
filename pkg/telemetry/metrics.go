package telemetry

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Labels identifies a metric series. Keys are normalized (lowercased,
// trimmed) before they participate in the series key.
type Labels map[string]string

const (
	MaxLabelPairs = 32
	MaxLabelKey   = 64
	MaxLabelVal   = 256

	// Per-histogram sample cap. Oldest samples are discarded first so
	// percentiles track recent behavior on long-running processes.
	MaxHistogramSamples = 10000
)

// HistogramSummary is the digest reported for one histogram series.
type HistogramSummary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Snapshot is a point-in-time copy of every series.
type Snapshot struct {
	Counters   map[string]int64            `json:"counters"`
	Gauges     map[string]float64          `json:"gauges"`
	Histograms map[string]HistogramSummary `json:"histograms"`
}

// Collector is an in-memory metrics store. All methods are safe for
// concurrent use; invalid values (NaN, Inf) are dropped silently so metric
// recording never propagates errors into request paths.
type Collector struct {
	mu         sync.Mutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncCounter adds delta to a counter series.
func (c *Collector) IncCounter(name string, delta int64, labels Labels) {
	key := seriesKey(name, labels)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key] += delta
}

// SetGauge sets a gauge series to value.
func (c *Collector) SetGauge(name string, value float64, labels Labels) {
	key := seriesKey(name, labels)
	if key == "" || !finite(value) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[key] = value
}

// Observe appends a sample to a histogram series, evicting the oldest sample
// once the cap is reached.
func (c *Collector) Observe(name string, value float64, labels Labels) {
	key := seriesKey(name, labels)
	if key == "" || !finite(value) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := c.histograms[key]
	if len(samples) >= MaxHistogramSamples {
		samples = samples[1:]
	}
	c.histograms[key] = append(samples, value)
}

// Counter returns the current value of a counter series.
func (c *Collector) Counter(name string, labels Labels) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[seriesKey(name, labels)]
}

// Gauge returns the current value of a gauge series.
func (c *Collector) Gauge(name string, labels Labels) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gauges[seriesKey(name, labels)]
}

// Snapshot copies every series. Histogram series collapse to summaries.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Counters:   make(map[string]int64, len(c.counters)),
		Gauges:     make(map[string]float64, len(c.gauges)),
		Histograms: make(map[string]HistogramSummary, len(c.histograms)),
	}
	for k, v := range c.counters {
		s.Counters[k] = v
	}
	for k, v := range c.gauges {
		s.Gauges[k] = v
	}
	for k, samples := range c.histograms {
		s.Histograms[k] = summarize(samples)
	}
	return s
}

// Reset discards every series.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]int64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

func summarize(samples []float64) HistogramSummary {
	n := len(samples)
	if n == 0 {
		return HistogramSummary{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return HistogramSummary{
		Count: n,
		Sum:   sum,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Mean:  sum / float64(n),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
}

// percentile interpolates linearly between the two nearest ranks of a sorted
// sample set.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	k := float64(n-1) * p
	lo := int(math.Floor(k))
	hi := int(math.Ceil(k))
	if lo == hi {
		return sorted[lo]
	}
	frac := k - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// seriesKey renders "name" or "name{k=v,...}" with label keys sorted. An
// empty name yields an empty key and the sample is dropped.
func seriesKey(name string, labels Labels) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if len(labels) == 0 {
		return name
	}
	norm := make(map[string]string, len(labels))
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		k2 := strings.ToLower(strings.TrimSpace(k))
		if k2 == "" || len(k2) > MaxLabelKey {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) > MaxLabelVal {
			v = v[:MaxLabelVal]
		}
		if _, dup := norm[k2]; !dup {
			keys = append(keys, k2)
		}
		norm[k2] = v
	}
	sort.Strings(keys)
	if len(keys) > MaxLabelPairs {
		keys = keys[:MaxLabelPairs]
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(norm[k])
	}
	b.WriteByte('}')
	return b.String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
