package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

const metricsNamespace = "taskmon"

// Metrics instruments the sampling loop. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	cycles   prometheus.Counter
	errors   prometheus.Counter
	duration prometheus.Histogram
	live     prometheus.Gauge
	dead     prometheus.Gauge
}

// NewMetrics creates the collector metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Number of completed sampling cycles.",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_errors_total",
			Help:      "Number of sampling cycles that failed to enumerate processes.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in the platform loader per cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "processes_live",
			Help:      "Live processes in the latest snapshot.",
		}),
		dead: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "processes_dead",
			Help:      "Dead processes retained in the latest snapshot.",
		}),
	}
}

func (m *Metrics) observeCycle(snap *sysinfo.Snapshot, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.duration.Observe(elapsed.Seconds())
	m.live.Set(float64(len(snap.Processes)))
	m.dead.Set(float64(len(snap.DeadProcesses)))
}

func (m *Metrics) observeFailure(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.errors.Inc()
	m.duration.Observe(elapsed.Seconds())
}

// SnapshotExporter exposes the system aggregates of the latest snapshot as
// Prometheus gauges. It reads the snapshot at scrape time.
type SnapshotExporter struct {
	source func() *sysinfo.Snapshot

	cpuDesc       *prometheus.Desc
	memUsedDesc   *prometheus.Desc
	memTotalDesc  *prometheus.Desc
	memFreeDesc   *prometheus.Desc
	processesDesc *prometheus.Desc
	threadsDesc   *prometheus.Desc
	handlesDesc   *prometheus.Desc
	networkDesc   *prometheus.Desc
	diskDesc      *prometheus.Desc
}

// NewSnapshotExporter creates an exporter reading snapshots from source,
// typically Collector.Latest.
func NewSnapshotExporter(source func() *sysinfo.Snapshot) *SnapshotExporter {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "system", name), help, labels, nil)
	}
	return &SnapshotExporter{
		source:        source,
		cpuDesc:       desc("cpu_usage_ratio", "System-wide CPU usage between 0 and 1."),
		memUsedDesc:   desc("memory_used_bytes", "Physical memory in use."),
		memTotalDesc:  desc("memory_total_bytes", "Usable physical memory."),
		memFreeDesc:   desc("memory_free_bytes", "Free physical memory."),
		processesDesc: desc("processes", "Process count reported by the operating system."),
		threadsDesc:   desc("threads", "Thread count across all processes."),
		handlesDesc:   desc("handles", "Open handle or file descriptor count."),
		networkDesc:   desc("network_bytes_per_second", "Network throughput.", "direction"),
		diskDesc:      desc("disk_bytes_per_second", "Disk throughput.", "direction"),
	}
}

// Describe implements prometheus.Collector.
func (e *SnapshotExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.cpuDesc
	ch <- e.memUsedDesc
	ch <- e.memTotalDesc
	ch <- e.memFreeDesc
	ch <- e.processesDesc
	ch <- e.threadsDesc
	ch <- e.handlesDesc
	ch <- e.networkDesc
	ch <- e.diskDesc
}

// Collect implements prometheus.Collector. Nothing is emitted before the
// first snapshot is published.
func (e *SnapshotExporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.source()
	if snap == nil {
		return
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	gauge(e.cpuDesc, sysinfo.Percent(snap.CPUUsage.Newest())/100)
	gauge(e.memUsedDesc, float64(snap.PhysicalMemoryUsed.Newest()))
	gauge(e.memTotalDesc, float64(snap.PhysicalMemoryTotal))
	gauge(e.memFreeDesc, float64(snap.FreeMemory))
	gauge(e.processesDesc, float64(snap.TotalProcesses))
	gauge(e.threadsDesc, float64(snap.TotalThreads))
	gauge(e.handlesDesc, float64(snap.TotalHandles))
	gauge(e.networkDesc, float64(snap.NetworkSent.Newest()), "sent")
	gauge(e.networkDesc, float64(snap.NetworkReceived.Newest()), "received")
	gauge(e.diskDesc, float64(snap.DiskRead.Newest()), "read")
	gauge(e.diskDesc, float64(snap.DiskWrite.Newest()), "write")
}
