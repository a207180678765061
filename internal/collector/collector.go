// Package collector drives a platform loader on a fixed cadence and hands
// complete snapshot copies to a consumer.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-taskmon/internal/platform"
	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// Default collector settings.
const (
	DefaultInterval    = time.Second
	DefaultHistorySize = 60
)

// ErrAlreadyStarted is returned when Run or Start is called on a collector
// that has already been started. A collector runs at most once.
var ErrAlreadyStarted = errors.New("collector: already started")

// Consumer receives published snapshots.
//
// Every snapshot passed to a Consumer is a private deep copy. The consumer
// owns it and may keep or modify it; neither the loader nor Latest readers
// ever see it.
type Consumer interface {
	// Init receives the first snapshot, after the loader has initialized.
	Init(snap *sysinfo.Snapshot)
	// Update receives one snapshot per completed cycle.
	Update(snap *sysinfo.Snapshot)
	// HasTerminated reports whether the consumer wants sampling to stop.
	// It is polled once per cycle.
	HasTerminated() bool
}

// Option configures a Collector.
type Option func(*Collector)

// WithInterval sets the delay between the end of one cycle and the start
// of the next. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.interval.Store(int64(d))
		}
	}
}

// WithHistorySize sets the capacity of every sample series.
func WithHistorySize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.historySize = n
		}
	}
}

// WithDeadLimit bounds the number of dead processes kept in the snapshot.
// Zero keeps every dead process.
func WithDeadLimit(n int) Option {
	return func(c *Collector) {
		if n >= 0 {
			c.deadLimit = n
		}
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = l
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// WithOnError registers a callback invoked for every failed cycle.
// The callback runs on the sampling goroutine and must not block.
func WithOnError(fn func(error)) Option {
	return func(c *Collector) {
		c.onError = fn
	}
}

// Collector owns a platform loader and its live snapshot.
//
// The live snapshot is only touched by the sampling goroutine. Consumers
// and Latest callers always get copies taken under the transfer lock.
type Collector struct {
	loader      platform.Loader
	consumer    Consumer
	logger      *slog.Logger
	metrics     *Metrics
	onError     func(error)
	historySize int
	deadLimit   int

	interval atomic.Int64
	reset    chan struct{}

	transfer sync.Mutex
	snap     *sysinfo.Snapshot
	latest   atomic.Pointer[sysinfo.Snapshot]

	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ready   chan struct{}
	done    chan struct{}
	err     error
}

// New creates a collector for loader. consumer may be nil when snapshots are
// only read through Latest.
func New(loader platform.Loader, consumer Consumer, opts ...Option) *Collector {
	c := &Collector{
		loader:      loader,
		consumer:    consumer,
		historySize: DefaultHistorySize,
		reset:       make(chan struct{}, 1),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.interval.Store(int64(DefaultInterval))
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Interval returns the current sampling interval.
func (c *Collector) Interval() time.Duration {
	return time.Duration(c.interval.Load())
}

// SetInterval changes the sampling interval of a running collector.
// The new value applies from the next wait.
func (c *Collector) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.interval.Store(int64(d))
	select {
	case c.reset <- struct{}{}:
	default:
	}
}

// LoaderName returns the name of the platform loader.
func (c *Collector) LoaderName() string {
	return c.loader.Name()
}

// Latest returns the most recently published snapshot, or nil before the
// first publication. The result is shared between callers and must be
// treated as read-only.
func (c *Collector) Latest() *sysinfo.Snapshot {
	return c.latest.Load()
}

// Run initializes the loader and samples until ctx is cancelled or the
// consumer terminates. The loader is closed before Run returns.
//
// Run returns nil on a clean stop; an error means the loader could not be
// initialized.
func (c *Collector) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	return c.execute(ctx)
}

// Start runs the collector in a background goroutine. Use Stop to end it.
func (c *Collector) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.execute(ctx); err != nil {
			c.logger.Error("collector failed", "error", err)
		}
	}()
	return nil
}

// Stop cancels a collector started with Start and waits for it to finish.
// It returns the error Run ended with.
func (c *Collector) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	c.wg.Wait()
	return c.Err()
}

// Ready is closed once the loader has initialized and the first snapshot
// has been published. It stays open if initialization fails.
func (c *Collector) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed when the collector has stopped and the loader is closed.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Err returns the error Run ended with, or nil.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Collector) execute(ctx context.Context) error {
	defer close(c.done)
	err := c.run(ctx)
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	return err
}

func (c *Collector) run(ctx context.Context) error {
	defer func() {
		if err := c.loader.Close(); err != nil {
			c.logger.Warn("failed to close loader", "loader", c.loader.Name(), "error", err)
		}
	}()

	snap := sysinfo.NewSnapshot(c.historySize)
	if err := c.loader.Init(ctx, snap); err != nil {
		return fmt.Errorf("init %s loader: %w", c.loader.Name(), err)
	}
	c.snap = snap
	c.logger.Info("collector started", "loader", c.loader.Name(), "interval", c.Interval(), "history", c.historySize)

	if c.consumer != nil {
		c.deliver(func() { c.consumer.Init(c.publish().Copy()) })
	} else {
		c.publish()
	}
	close(c.ready)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopped", "cycles", c.snap.Cycle)
			return nil
		case <-c.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.Interval())
		case <-timer.C:
			if c.terminated() {
				c.logger.Info("consumer terminated", "cycles", c.snap.Cycle)
				return nil
			}
			c.cycle(ctx)
			// The next wait only starts once this cycle has been published.
			timer.Reset(c.Interval())
		}
	}
}

func (c *Collector) terminated() bool {
	return c.consumer != nil && c.consumer.HasTerminated()
}

func (c *Collector) cycle(ctx context.Context) {
	start := time.Now()
	err := c.loader.Update(ctx, c.snap)
	elapsed := time.Since(start)

	if err != nil {
		c.logger.Warn("update cycle failed", "loader", c.loader.Name(), "error", err)
		c.metrics.observeFailure(elapsed)
		if c.onError != nil {
			c.deliver(func() { c.onError(err) })
		}
		return
	}

	if c.deadLimit > 0 {
		c.snap.TrimDead(c.deadLimit)
	}
	published := c.publish()
	c.metrics.observeCycle(published, elapsed)

	if c.consumer != nil {
		own := published.Copy()
		c.deliver(func() { c.consumer.Update(own) })
	}
}

// publish takes a copy of the live snapshot under the transfer lock and
// stores it as the latest. The stored copy is shared by every Latest reader
// and must not be handed to the consumer.
func (c *Collector) publish() *sysinfo.Snapshot {
	c.transfer.Lock()
	defer c.transfer.Unlock()
	cp := c.snap.Copy()
	c.latest.Store(cp)
	return cp
}

// deliver runs a user callback, recovering from panics.
func (c *Collector) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked", "panic", r)
		}
	}()
	fn()
}
