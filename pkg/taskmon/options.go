package taskmon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/go-taskmon/internal/platform"
)

// DefaultShutdownTimeout is the default timeout for graceful shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Options configures a Monitor.
type Options struct {
	// UpdateInterval overrides the configuration's update_interval.
	// Zero means use the configuration value.
	UpdateInterval time.Duration

	// HistorySize overrides the configuration's history_size.
	HistorySize int

	// ShutdownTimeout sets the maximum time to wait for the sampler to stop.
	// Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Logger receives diagnostics from every component. Nil discards them.
	Logger Logger

	// Consumer receives a copy of every published snapshot.
	Consumer Consumer

	// Registerer receives the Prometheus metrics. Nil uses a private
	// registry, reachable through Metrics().Handler().
	Registerer prometheus.Registerer

	// WatchConfig reloads the configuration when its file changes on disk.
	// Only instances created with New watch their file.
	WatchConfig bool

	// WatchDebounce sets the debounce interval for file change events.
	// Zero means DefaultWatchDebounce.
	WatchDebounce time.Duration

	// NewLoader creates the platform loader. Nil selects the loader for the
	// running operating system.
	NewLoader func(LoaderOptions) (Loader, error)
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ShutdownTimeout: DefaultShutdownTimeout,
		WatchDebounce:   DefaultWatchDebounce,
		NewLoader:       platform.New,
	}
}

func (o Options) withDefaults() Options {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.WatchDebounce <= 0 {
		o.WatchDebounce = DefaultWatchDebounce
	}
	if o.NewLoader == nil {
		o.NewLoader = platform.New
	}
	return o
}
