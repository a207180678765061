package taskmon

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/opd-ai/go-taskmon/internal/collector"
	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// Metrics holds the Prometheus instrumentation of one Monitor: lifecycle
// counters, the sampler's cycle metrics and gauges for the latest snapshot.
type Metrics struct {
	gatherer prometheus.Gatherer
	cycles   *collector.Metrics
	source   atomic.Pointer[func() *sysinfo.Snapshot]

	starts   prometheus.Counter
	stops    prometheus.Counter
	restarts prometheus.Counter
	reloads  prometheus.Counter
	errors   prometheus.Counter
	running  prometheus.Gauge
}

// NewMetrics creates and registers the metrics with reg. A nil reg uses a
// new registry that also carries the Go runtime and process collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}

	switch {
	case reg == nil:
		r := prometheus.NewRegistry()
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg, m.gatherer = r, r
	default:
		if g, ok := reg.(prometheus.Gatherer); ok {
			m.gatherer = g
		} else {
			m.gatherer = prometheus.DefaultGatherer
		}
	}

	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{Namespace: "taskmon", Name: name, Help: help})
	}
	m.starts = counter("starts_total", "Number of successful starts.")
	m.stops = counter("stops_total", "Number of stops.")
	m.restarts = counter("restarts_total", "Number of restarts.")
	m.reloads = counter("config_reloads_total", "Number of configuration reloads.")
	m.errors = counter("errors_total", "Number of reported runtime errors.")
	m.running = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskmon",
		Name:      "running",
		Help:      "1 while the sampler is running.",
	})

	m.cycles = collector.NewMetrics(reg)
	reg.MustRegister(collector.NewSnapshotExporter(m.latest))
	return m
}

func (m *Metrics) latest() *sysinfo.Snapshot {
	if fn := m.source.Load(); fn != nil {
		return (*fn)()
	}
	return nil
}

func (m *Metrics) setSource(fn func() *sysinfo.Snapshot) {
	m.source.Store(&fn)
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// MetricsSnapshot is a point-in-time copy of the lifecycle counters.
type MetricsSnapshot struct {
	Starts        uint64
	Stops         uint64
	Restarts      uint64
	ConfigReloads uint64
	Errors        uint64
	Running       bool
}

// Snapshot returns the current lifecycle counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Starts:        uint64(readMetric(m.starts)),
		Stops:         uint64(readMetric(m.stops)),
		Restarts:      uint64(readMetric(m.restarts)),
		ConfigReloads: uint64(readMetric(m.reloads)),
		Errors:        uint64(readMetric(m.errors)),
		Running:       readMetric(m.running) > 0,
	}
}

func readMetric(metric prometheus.Metric) float64 {
	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return 0
	}
	if c := pb.GetCounter(); c != nil {
		return c.GetValue()
	}
	return pb.GetGauge().GetValue()
}
