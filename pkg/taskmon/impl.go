package taskmon

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-taskmon/internal/collector"
	"github.com/opd-ai/go-taskmon/internal/config"
)

// monitorImpl is the private implementation of the Monitor interface.
type monitorImpl struct {
	// Configuration
	cfg          *config.Config
	opts         Options
	configSource string
	configPath   string // watched file, empty when not on disk
	configLoader func() (*config.Config, error)

	logger  *slog.Logger
	metrics *Metrics

	// State
	coll        *collector.Collector // last started collector, kept after stop
	watcher     *configWatcher
	running     atomic.Bool
	startTime   time.Time
	updateCount atomic.Uint64
	lastError   atomic.Pointer[errorBox]

	// Handlers
	errorHandler ErrorHandler
	eventHandler EventHandler

	// lifecycle serializes Start, Stop, Restart and ReloadConfig. mu guards
	// the fields read by the accessors.
	lifecycle sync.Mutex
	mu        sync.RWMutex
}

type errorBox struct{ err error }

var _ Monitor = (*monitorImpl)(nil)

// relay forwards published snapshots to the embedder's consumer and counts
// updates.
type relay struct {
	m    *monitorImpl
	next Consumer
}

func (r relay) Init(snap *Snapshot) {
	if r.next != nil {
		r.next.Init(snap)
	}
}

func (r relay) Update(snap *Snapshot) {
	r.m.updateCount.Add(1)
	if r.next != nil {
		r.next.Update(snap)
	}
}

func (r relay) HasTerminated() bool {
	return r.next != nil && r.next.HasTerminated()
}

// Start initializes the loader and begins sampling.
func (m *monitorImpl) Start() error {
	m.lifecycle.Lock()
	err := m.startLocked()
	m.lifecycle.Unlock()
	if err != nil {
		return err
	}

	if m.opts.WatchConfig && m.configPath != "" {
		// ReloadConfig reports its own failures.
		reload := func() error {
			_ = m.ReloadConfig()
			return nil
		}
		w, err := newConfigWatcher(m.configPath, m.opts.WatchDebounce, reload, m.notifyError)
		if err != nil {
			m.notifyError(fmt.Errorf("watch config: %w", err))
		} else {
			m.mu.Lock()
			m.watcher = w
			m.mu.Unlock()
		}
	}

	m.emitEvent(EventStarted, "Instance started")
	return nil
}

func (m *monitorImpl) startLocked() error {
	if m.running.Load() {
		return ErrAlreadyRunning
	}

	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	loader, err := m.opts.NewLoader(LoaderOptions{
		ProcRoot:     cfg.ProcRoot,
		PasswdPath:   cfg.PasswdPath,
		UserCacheTTL: cfg.UserCacheTTL,
		Logger:       m.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	coll := collector.New(loader, relay{m: m, next: m.opts.Consumer},
		collector.WithInterval(m.interval(cfg)),
		collector.WithHistorySize(m.historySize(cfg)),
		collector.WithDeadLimit(cfg.DeadLimit),
		collector.WithLogger(m.logger),
		collector.WithMetrics(m.metrics.cycles),
		collector.WithOnError(m.notifyError),
	)

	m.updateCount.Store(0)
	if err := coll.Start(); err != nil {
		return fmt.Errorf("failed to start sampler: %w", err)
	}

	select {
	case <-coll.Ready():
	case <-coll.Done():
		// Ready may have closed just before a terminating consumer ended
		// the run.
		select {
		case <-coll.Ready():
		default:
			return fmt.Errorf("failed to start sampler: %w", coll.Err())
		}
	}

	m.mu.Lock()
	m.coll = coll
	m.startTime = time.Now()
	m.mu.Unlock()
	m.running.Store(true)

	m.metrics.starts.Inc()
	m.metrics.running.Set(1)

	go m.awaitStop(coll)
	return nil
}

// awaitStop marks the instance stopped once coll ends, whether through Stop
// or because the consumer terminated.
func (m *monitorImpl) awaitStop(coll *collector.Collector) {
	<-coll.Done()

	m.mu.RLock()
	current := m.coll == coll
	m.mu.RUnlock()
	if !current {
		return
	}
	m.markStopped()
}

// markStopped flips the running flag once per run.
func (m *monitorImpl) markStopped() {
	if m.running.CompareAndSwap(true, false) {
		m.metrics.running.Set(0)
		m.emitEvent(EventStopped, "Instance stopped")
	}
}

// Stop ends sampling and waits for the loader to close.
func (m *monitorImpl) Stop() error {
	// The watcher goes first: its reload callback takes the lifecycle lock.
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if w != nil {
		w.Close()
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.stopLocked()
}

func (m *monitorImpl) stopLocked() error {
	m.mu.RLock()
	coll := m.coll
	m.mu.RUnlock()
	if coll == nil || !m.running.Load() {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- coll.Stop() }()

	select {
	case <-done:
		m.markStopped()
		m.metrics.stops.Inc()
		return nil
	case <-time.After(m.opts.ShutdownTimeout):
		err := fmt.Errorf("shutdown timeout after %v: sampler did not stop", m.opts.ShutdownTimeout)
		m.notifyError(err)
		return err
	}
}

// Restart performs a stop followed by a start with a freshly loaded
// configuration.
func (m *monitorImpl) Restart() error {
	if err := m.Stop(); err != nil {
		wrappedErr := fmt.Errorf("stop failed: %w", err)
		m.notifyError(wrappedErr)
		return wrappedErr
	}

	cfg, err := m.configLoader()
	if err != nil {
		wrappedErr := fmt.Errorf("config reload failed: %w", err)
		m.notifyError(wrappedErr)
		return wrappedErr
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.emitEvent(EventConfigReloaded, "Configuration reloaded")

	if err := m.Start(); err != nil {
		wrappedErr := fmt.Errorf("start failed: %w", err)
		m.notifyError(wrappedErr)
		return wrappedErr
	}

	m.metrics.restarts.Inc()
	m.emitEvent(EventRestarted, "Instance restarted")
	return nil
}

// ReloadConfig loads the configuration again and applies it.
func (m *monitorImpl) ReloadConfig() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if !m.running.Load() {
		return ErrNotRunning
	}

	newCfg, err := m.configLoader()
	if err != nil {
		wrappedErr := fmt.Errorf("config reload failed: %w", err)
		m.notifyError(wrappedErr)
		return wrappedErr
	}

	m.mu.Lock()
	oldCfg := m.cfg
	m.cfg = newCfg
	coll := m.coll
	m.mu.Unlock()

	if needsRestart(oldCfg, newCfg) {
		m.logger.Info("configuration change requires a new loader, restarting sampler")
		if err := m.stopLocked(); err != nil {
			return err
		}
		if err := m.startLocked(); err != nil {
			wrappedErr := fmt.Errorf("start failed: %w", err)
			m.notifyError(wrappedErr)
			return wrappedErr
		}
		m.metrics.restarts.Inc()
	} else {
		coll.SetInterval(m.interval(newCfg))
	}

	m.metrics.reloads.Inc()
	m.emitEvent(EventConfigReloaded, "Configuration reloaded in-place")
	return nil
}

// needsRestart reports whether b differs from a in a field that only takes
// effect when a loader is created.
func needsRestart(a, b *config.Config) bool {
	return a.HistorySize != b.HistorySize ||
		a.ProcRoot != b.ProcRoot ||
		a.PasswdPath != b.PasswdPath ||
		a.UserCacheTTL != b.UserCacheTTL ||
		a.DeadLimit != b.DeadLimit
}

func (m *monitorImpl) interval(cfg *config.Config) time.Duration {
	if m.opts.UpdateInterval > 0 {
		return m.opts.UpdateInterval
	}
	if cfg.UpdateInterval > 0 {
		return cfg.UpdateInterval
	}
	return collector.DefaultInterval
}

func (m *monitorImpl) historySize(cfg *config.Config) int {
	if m.opts.HistorySize > 0 {
		return m.opts.HistorySize
	}
	if cfg.HistorySize > 0 {
		return cfg.HistorySize
	}
	return collector.DefaultHistorySize
}

// IsRunning returns true while the sampler is running.
func (m *monitorImpl) IsRunning() bool {
	return m.running.Load()
}

// Status returns detailed status information about the instance.
func (m *monitorImpl) Status() Status {
	m.mu.RLock()
	startTime := m.startTime
	configSource := m.configSource
	coll := m.coll
	cfg := m.cfg
	m.mu.RUnlock()

	st := Status{
		Running:      m.running.Load(),
		StartTime:    startTime,
		UpdateCount:  m.updateCount.Load(),
		Interval:     m.interval(cfg),
		LastError:    m.getError(),
		ConfigSource: configSource,
	}
	if coll != nil {
		st.Loader = coll.LoaderName()
		st.Interval = coll.Interval()
		if snap := coll.Latest(); snap != nil {
			st.Cycle = snap.Cycle
		}
	}
	return st
}

// Snapshot returns the latest published snapshot.
func (m *monitorImpl) Snapshot() *Snapshot {
	m.mu.RLock()
	coll := m.coll
	m.mu.RUnlock()
	if coll == nil {
		return nil
	}
	return coll.Latest()
}

// Config returns a copy of the active configuration.
func (m *monitorImpl) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// SetErrorHandler registers a callback for runtime errors.
func (m *monitorImpl) SetErrorHandler(handler ErrorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorHandler = handler
}

// SetEventHandler registers a callback for lifecycle events.
func (m *monitorImpl) SetEventHandler(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandler = handler
}

// Metrics returns the Prometheus instrumentation of this instance.
func (m *monitorImpl) Metrics() *Metrics {
	return m.metrics
}

func (m *monitorImpl) getError() error {
	if box := m.lastError.Load(); box != nil {
		return box.err
	}
	return nil
}

// notifyError stores err for Status and hands it to the error handler.
func (m *monitorImpl) notifyError(err error) {
	m.lastError.Store(&errorBox{err: err})
	m.metrics.errors.Inc()

	m.mu.RLock()
	handler := m.errorHandler
	m.mu.RUnlock()

	if handler != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("error handler panicked", "panic", r, "original_error", err)
				}
			}()
			handler(err)
		}()
	}

	m.emitEvent(EventError, err.Error())
}

// emitEvent sends an event to the event handler if configured.
func (m *monitorImpl) emitEvent(eventType EventType, message string) {
	m.mu.RLock()
	handler := m.eventHandler
	m.mu.RUnlock()
	if handler == nil {
		return
	}

	event := Event{Type: eventType, Timestamp: time.Now(), Message: message}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("event handler panicked", "panic", r, "event", eventType.String())
			}
		}()
		handler(event)
	}()
}

// Health returns a health check result for the instance.
func (m *monitorImpl) Health() HealthCheck {
	now := time.Now()
	components := make(map[string]ComponentHealth)
	running := m.running.Load()

	m.mu.RLock()
	startTime := m.startTime
	coll := m.coll
	m.mu.RUnlock()

	var uptime time.Duration
	if running && !startTime.IsZero() {
		uptime = now.Sub(startTime)
	}

	if running {
		components["instance"] = ComponentHealth{Status: HealthOK, Message: "Instance is running", LastUpdated: now}
	} else {
		components["instance"] = ComponentHealth{Status: HealthUnhealthy, Message: "Instance is not running", LastUpdated: now}
	}

	sampler := ComponentHealth{Status: HealthUnhealthy, Message: "Sampler not started", LastUpdated: now}
	if coll != nil {
		if snap := coll.Latest(); snap != nil {
			sampler.LastUpdated = snap.Timestamp
			age := now.Sub(snap.Timestamp)
			switch {
			case !running:
				sampler.Status = HealthDegraded
				sampler.Message = fmt.Sprintf("Sampler stopped after %d cycles", snap.Cycle)
			case !snap.Timestamp.IsZero() && age > staleFactor*coll.Interval():
				sampler.Status = HealthDegraded
				sampler.Message = fmt.Sprintf("Latest snapshot is %v old", age.Round(time.Millisecond))
			default:
				sampler.Status = HealthOK
				sampler.Message = fmt.Sprintf("Sampler active, %d updates completed", m.updateCount.Load())
			}
		}
	}
	components["sampler"] = sampler

	lastErr := m.getError()
	if lastErr != nil {
		components["errors"] = ComponentHealth{Status: HealthDegraded, Message: lastErr.Error(), LastUpdated: now}
	} else {
		components["errors"] = ComponentHealth{Status: HealthOK, Message: "No recent errors", LastUpdated: now}
	}

	overall := HealthOK
	for _, c := range components {
		overall = worst(overall, c.Status)
	}

	var message string
	switch {
	case !running:
		message = "Instance is not running"
	case overall == HealthOK:
		message = "All components healthy"
	case lastErr != nil:
		message = "Running with recent errors"
	default:
		message = "Sampler is falling behind"
	}

	return HealthCheck{
		Status:     overall,
		Timestamp:  now,
		Uptime:     uptime,
		Components: components,
		Message:    message,
	}
}
