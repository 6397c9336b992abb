// Package obsmetrics wraps the lifecycle manager's metrics sink as a
// Prometheus collector, adapted from the teacher's metrics.go
// DefaultMetrics (an in-memory map-based counter/duration store) into the
// client_golang idiom used elsewhere in the retrieval pack (moolen-spectre,
// kbukum-gokit both depend on github.com/prometheus/client_golang).
package obsmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the in-process store Collector maintains; it implements
// lifecycle.MetricsSink so a *Collector can be passed directly as
// ManagerOptions.Metrics.
type Sink struct {
	mu sync.Mutex

	startDurations map[string]time.Duration
	stopDurations  map[string]time.Duration
	startErrors    map[string]int
	errorCounts    map[string]int
}

func newSink() *Sink {
	return &Sink{
		startDurations: make(map[string]time.Duration),
		stopDurations:  make(map[string]time.Duration),
		startErrors:    make(map[string]int),
		errorCounts:    make(map[string]int),
	}
}

// ObserveStart records a component's start duration and whether it failed.
func (s *Sink) ObserveStart(name string, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startDurations[name] = d
	if err != nil {
		s.startErrors[name]++
	}
}

// ObserveStop records a component's stop duration and whether it failed.
func (s *Sink) ObserveStop(name string, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopDurations[name] = d
	if err != nil {
		s.errorCounts[name]++
	}
}

// IncError increments the generic per-component error counter.
func (s *Sink) IncError(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCounts[name]++
}

func (s *Sink) snapshot() (starts, stops map[string]time.Duration, startErrs, errs map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	starts = cloneDur(s.startDurations)
	stops = cloneDur(s.stopDurations)
	startErrs = cloneInt(s.startErrors)
	errs = cloneInt(s.errorCounts)
	return
}

func cloneDur(m map[string]time.Duration) map[string]time.Duration {
	out := make(map[string]time.Duration, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInt(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	startDurationDesc = prometheus.NewDesc(
		"lifecycle_component_start_duration_seconds",
		"Duration of the most recent start attempt for a component.",
		[]string{"component"}, nil,
	)
	stopDurationDesc = prometheus.NewDesc(
		"lifecycle_component_stop_duration_seconds",
		"Duration of the most recent stop attempt for a component.",
		[]string{"component"}, nil,
	)
	startErrorsDesc = prometheus.NewDesc(
		"lifecycle_component_start_errors_total",
		"Number of failed start attempts for a component.",
		[]string{"component"}, nil,
	)
	errorsTotalDesc = prometheus.NewDesc(
		"lifecycle_component_errors_total",
		"Total number of errors observed for a component across start/stop.",
		[]string{"component"}, nil,
	)
)

// Collector adapts Sink into a prometheus.Collector, so it can be
// registered with any prometheus.Registerer while still being usable
// directly as a lifecycle.MetricsSink.
type Collector struct {
	*Sink
}

// NewCollector constructs a Collector with a fresh Sink.
func NewCollector() *Collector {
	return &Collector{Sink: newSink()}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- startDurationDesc
	ch <- stopDurationDesc
	ch <- startErrorsDesc
	ch <- errorsTotalDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	starts, stops, startErrs, errs := c.snapshot()
	for name, d := range starts {
		ch <- prometheus.MustNewConstMetric(startDurationDesc, prometheus.GaugeValue, d.Seconds(), name)
	}
	for name, d := range stops {
		ch <- prometheus.MustNewConstMetric(stopDurationDesc, prometheus.GaugeValue, d.Seconds(), name)
	}
	for name, n := range startErrs {
		ch <- prometheus.MustNewConstMetric(startErrorsDesc, prometheus.CounterValue, float64(n), name)
	}
	for name, n := range errs {
		ch <- prometheus.MustNewConstMetric(errorsTotalDesc, prometheus.CounterValue, float64(n), name)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
