package taskmon

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"

	"github.com/opd-ai/go-taskmon/internal/collector"
	"github.com/opd-ai/go-taskmon/internal/config"
	"github.com/opd-ai/go-taskmon/internal/platform"
	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// Configuration format constants for use with NewFromReader.
const (
	// FormatLua indicates a Lua script assigning taskmon.config.
	FormatLua = "lua"
	// FormatYAML indicates a flat YAML document.
	FormatYAML = "yaml"
)

// Re-exported types so that embedders do not import internal packages.
type (
	Snapshot      = sysinfo.Snapshot
	Process       = sysinfo.Process
	LinuxExtra    = sysinfo.LinuxExtra
	WindowsExtra  = sysinfo.WindowsExtra
	Config        = config.Config
	Consumer      = collector.Consumer
	Loader        = platform.Loader
	LoaderOptions = platform.Options
)

// Percent converts a usage ratio from a snapshot into a percentage.
func Percent(ratio int64) float64 {
	return sysinfo.Percent(ratio)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return config.DefaultConfig()
}

// Monitor is an embedded task monitor with full lifecycle control.
// It is safe for concurrent use from multiple goroutines.
type Monitor interface {
	// Start initializes the platform loader and begins sampling.
	// It returns once the first snapshot is published, or with the error
	// that prevented initialization.
	Start() error

	// Stop ends sampling and waits for the loader to close.
	// Safe to call multiple times; subsequent calls are no-ops.
	Stop() error

	// Restart performs a stop followed by a start.
	// Configuration is reloaded from the original source.
	Restart() error

	// ReloadConfig reloads the configuration while running. A changed
	// interval applies in place; changes that affect the loader restart
	// the sampler. On error the previous configuration remains active.
	ReloadConfig() error

	// IsRunning returns true while the sampler is running.
	IsRunning() bool

	// Status returns detailed status information about the instance.
	Status() Status

	// Health returns a health check result for the instance.
	Health() HealthCheck

	// Snapshot returns the latest published snapshot, or nil before the
	// first start. The result is shared and must be treated as read-only.
	Snapshot() *Snapshot

	// Config returns a copy of the active configuration.
	Config() Config

	// SetErrorHandler registers a callback for runtime errors.
	// The handler is invoked asynchronously and panics are recovered.
	SetErrorHandler(handler ErrorHandler)

	// SetEventHandler registers a callback for lifecycle events.
	SetEventHandler(handler EventHandler)

	// Metrics returns the Prometheus instrumentation of this instance.
	Metrics() *Metrics
}

// New creates a Monitor from a configuration file on disk, in Lua or YAML.
// The instance is created but not started.
//
//	m, err := taskmon.New("/etc/taskmon.yaml", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := m.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer m.Stop()
func New(configPath string, opts *Options) (Monitor, error) {
	loader := func() (*config.Config, error) {
		return parseWith(func(p *config.Parser) (*config.Config, error) {
			return p.ParseFile(configPath)
		})
	}
	return newMonitor(loader, configPath, configPath, opts)
}

// NewFromFS creates a Monitor using a configuration file from fsys, such as
// an embed.FS.
func NewFromFS(fsys fs.FS, configPath string, opts *Options) (Monitor, error) {
	loader := func() (*config.Config, error) {
		return parseWith(func(p *config.Parser) (*config.Config, error) {
			return p.ParseFromFS(fsys, configPath)
		})
	}
	return newMonitor(loader, "embedded:"+configPath, "", opts)
}

// NewFromReader creates a Monitor from configuration content in the named
// format, FormatLua or FormatYAML.
func NewFromReader(r io.Reader, format string, opts *Options) (Monitor, error) {
	if format != FormatLua && format != FormatYAML {
		return nil, fmt.Errorf("invalid format: %s (expected '%s' or '%s')", format, FormatLua, FormatYAML)
	}

	// A reader cannot be re-read, so reloads parse the stored content.
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	loader := func() (*config.Config, error) {
		return parseWith(func(p *config.Parser) (*config.Config, error) {
			return p.ParseReader(bytes.NewReader(content), format)
		})
	}
	return newMonitor(loader, "reader", "", opts)
}

// NewFromConfig creates a Monitor from an in-memory configuration.
func NewFromConfig(cfg Config, opts *Options) (Monitor, error) {
	loader := func() (*config.Config, error) {
		cp := cfg.Clone()
		if err := cp.Validate(); err != nil {
			return nil, err
		}
		return cp, nil
	}
	return newMonitor(loader, "config", "", opts)
}

func parseWith(parse func(*config.Parser) (*config.Config, error)) (*config.Config, error) {
	p, err := config.NewParser()
	if err != nil {
		return nil, fmt.Errorf("parser init: %w", err)
	}
	defer p.Close()

	cfg, err := parse(p)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newMonitor(loader func() (*config.Config, error), source, path string, opts *Options) (Monitor, error) {
	if opts == nil {
		defaultOpts := DefaultOptions()
		opts = &defaultOpts
	}
	cfg, err := loader()
	if err != nil {
		return nil, err
	}

	o := opts.withDefaults()
	m := &monitorImpl{
		cfg:          cfg,
		opts:         o,
		configSource: source,
		configPath:   path,
		configLoader: loader,
		logger:       toSlog(o.Logger),
		metrics:      NewMetrics(o.Registerer),
	}
	m.metrics.setSource(m.Snapshot)
	return m, nil
}
