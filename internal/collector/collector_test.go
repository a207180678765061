package collector

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opd-ai/go-taskmon/internal/platform"
	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// fakeLoader adds one process per cycle and kills the oldest once more
// than two are alive.
type fakeLoader struct {
	mu      sync.Mutex
	live    *sysinfo.Snapshot
	initErr error
	fail    map[int]bool
	calls   int
	closed  bool
	nextID  uint64
}

func (f *fakeLoader) Name() string { return "fake" }

func (f *fakeLoader) Init(_ context.Context, snap *sysinfo.Snapshot) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.live = snap
	snap.LogicalProcessors = 2
	snap.Extra = &sysinfo.LinuxExtra{}
	return nil
}

func (f *fakeLoader) Update(_ context.Context, snap *sysinfo.Snapshot) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.fail[call] {
		return fmt.Errorf("%w: scripted", platform.ErrEnumeration)
	}
	snap.Cycle++
	snap.Timestamp = time.Unix(int64(call), 0)
	snap.CPUUsage.Add(int64(call * 100))

	f.nextID++
	p := snap.NewProcess(f.nextID, uint32(1000+f.nextID))
	p.UpdateCPU(f.nextID*10, 100, 1)
	snap.Processes = append(snap.Processes, p)
	if len(snap.Processes) > 2 {
		oldest := snap.Processes[0]
		oldest.MarkDead(snap.Timestamp)
		snap.DeadProcesses = append(snap.DeadProcesses, oldest)
		snap.Processes = snap.Processes[1:]
	}
	snap.Extra.(*sysinfo.LinuxExtra).OpenFileDescriptors = uint64(call)
	return nil
}

func (f *fakeLoader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLoader) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// recorder is a Consumer that terminates after stopAfter updates.
type recorder struct {
	mu        sync.Mutex
	init      *sysinfo.Snapshot
	updates   []*sysinfo.Snapshot
	stopAfter int
	onUpdate  func(*sysinfo.Snapshot)
}

func (r *recorder) Init(snap *sysinfo.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init = snap
}

func (r *recorder) Update(snap *sysinfo.Snapshot) {
	if r.onUpdate != nil {
		r.onUpdate(snap)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, snap)
}

func (r *recorder) HasTerminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopAfter > 0 && len(r.updates) >= r.stopAfter
}

func runWithTimeout(t *testing.T, c *Collector) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	if ctx.Err() != nil {
		t.Fatal("collector did not stop before the deadline")
	}
	return err
}

func TestCollectorPublishesCopies(t *testing.T) {
	loader := &fakeLoader{}
	rec := &recorder{stopAfter: 3}
	rec.onUpdate = func(snap *sysinfo.Snapshot) {
		if snap == loader.live {
			t.Error("consumer received the live snapshot")
		}
		// The loader does not run while the consumer is being called, so the
		// copy must equal the live snapshot at this instant.
		if !reflect.DeepEqual(snap, loader.live) {
			t.Errorf("cycle %d: published copy differs from live snapshot", snap.Cycle)
		}
	}

	c := New(loader, rec, WithInterval(time.Millisecond), WithHistorySize(8))
	if err := runWithTimeout(t, c); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if !loader.isClosed() {
		t.Error("loader was not closed")
	}
	if rec.init == nil || rec.init.LogicalProcessors != 2 {
		t.Fatalf("Init snapshot = %+v", rec.init)
	}
	if rec.init.HistorySize != 8 {
		t.Errorf("HistorySize = %d, want 8", rec.init.HistorySize)
	}
	if len(rec.updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(rec.updates))
	}
	for i, snap := range rec.updates {
		if snap.Cycle != uint64(i+1) {
			t.Errorf("update %d has cycle %d", i, snap.Cycle)
		}
	}
	// Earlier copies are frozen.
	if got := rec.updates[0].Extra.(*sysinfo.LinuxExtra).OpenFileDescriptors; got != 1 {
		t.Errorf("first copy was mutated: descriptors = %d", got)
	}
	if !reflect.DeepEqual(c.Latest(), rec.updates[2]) {
		t.Error("Latest() differs from the last delivered snapshot")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}
}

func TestConsumerOwnsItsSnapshot(t *testing.T) {
	loader := &fakeLoader{}
	rec := &recorder{stopAfter: 2}
	var c *Collector
	rec.onUpdate = func(snap *sysinfo.Snapshot) {
		if snap == c.Latest() {
			t.Error("consumer shares the snapshot returned by Latest()")
		}
		snap.Processes = nil
		snap.CPUUsage.Add(-1)
		if got := len(c.Latest().Processes); got == 0 {
			t.Error("consumer edit is visible through Latest()")
		}
		if got := c.Latest().CPUUsage.Newest(); got == -1 {
			t.Error("consumer edit of a series is visible through Latest()")
		}
	}

	c = New(loader, rec, WithInterval(time.Millisecond))
	if err := runWithTimeout(t, c); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if rec.init == c.Latest() {
		t.Error("Init snapshot is shared with Latest()")
	}
	if got := len(c.Latest().Processes); got != 2 {
		t.Errorf("Latest() has %d processes, want 2", got)
	}
}

func TestCollectorInitFailure(t *testing.T) {
	initErr := errors.New("no procfs")
	loader := &fakeLoader{initErr: initErr}
	rec := &recorder{}

	c := New(loader, rec)
	err := runWithTimeout(t, c)
	if !errors.Is(err, initErr) {
		t.Fatalf("Run() = %v, want wrapped init error", err)
	}
	if !errors.Is(c.Err(), initErr) {
		t.Errorf("Err() = %v", c.Err())
	}
	if !loader.isClosed() {
		t.Error("loader must be closed after a failed init")
	}
	if rec.init != nil || c.Latest() != nil {
		t.Error("nothing should be published after a failed init")
	}
	select {
	case <-c.Ready():
		t.Error("Ready() closed after a failed init")
	default:
	}
}

func TestCollectorContinuesAfterUpdateError(t *testing.T) {
	loader := &fakeLoader{fail: map[int]bool{2: true}}
	rec := &recorder{stopAfter: 2}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	var reported []error
	c := New(loader, rec,
		WithInterval(time.Millisecond),
		WithMetrics(metrics),
		WithOnError(func(err error) { reported = append(reported, err) }),
	)
	if err := runWithTimeout(t, c); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if len(reported) != 1 || !errors.Is(reported[0], platform.ErrEnumeration) {
		t.Fatalf("reported errors = %v", reported)
	}
	if len(rec.updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(rec.updates))
	}
	if rec.updates[1].Cycle != 2 {
		t.Errorf("second published cycle = %d, want 2", rec.updates[1].Cycle)
	}
	if got := testutil.ToFloat64(metrics.cycles); got != 2 {
		t.Errorf("cycles_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.errors); got != 1 {
		t.Errorf("cycle_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.live); got != 2 {
		t.Errorf("processes_live = %v, want 2", got)
	}
}

func TestCollectorDeadLimit(t *testing.T) {
	loader := &fakeLoader{}
	rec := &recorder{stopAfter: 6}

	c := New(loader, rec, WithInterval(time.Millisecond), WithDeadLimit(2))
	if err := runWithTimeout(t, c); err != nil {
		t.Fatal(err)
	}

	last := rec.updates[len(rec.updates)-1]
	if len(last.DeadProcesses) != 2 {
		t.Fatalf("dead processes = %d, want 2", len(last.DeadProcesses))
	}
	// The most recent deaths are kept.
	if last.DeadProcesses[0].ID != 3 || last.DeadProcesses[1].ID != 4 {
		t.Errorf("kept dead ids %d, %d; want 3, 4", last.DeadProcesses[0].ID, last.DeadProcesses[1].ID)
	}
}

func TestCollectorRecoversConsumerPanic(t *testing.T) {
	loader := &fakeLoader{}
	calls := 0
	rec := &recorder{stopAfter: 2}
	rec.onUpdate = func(*sysinfo.Snapshot) {
		calls++
		if calls == 1 {
			panic("consumer bug")
		}
	}

	c := New(loader, rec, WithInterval(time.Millisecond))
	if err := runWithTimeout(t, c); err != nil {
		t.Fatal(err)
	}
	if calls < 2 {
		t.Errorf("consumer called %d times, want sampling to continue after a panic", calls)
	}
}

func TestCollectorStartStop(t *testing.T) {
	loader := &fakeLoader{}
	c := New(loader, nil, WithInterval(time.Millisecond))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}

	select {
	case <-c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("collector never became ready")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if snap := c.Latest(); snap != nil && snap.Cycle >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no snapshot published")
		}
		time.Sleep(time.Millisecond)
	}

	c.SetInterval(time.Hour)
	if c.Interval() != time.Hour {
		t.Errorf("Interval() = %v", c.Interval())
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
	if !loader.isClosed() {
		t.Error("loader not closed after Stop")
	}
	if err := c.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Run() after Stop = %v, want ErrAlreadyStarted", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	c := New(&fakeLoader{}, nil)
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestSnapshotExporter(t *testing.T) {
	var snap *sysinfo.Snapshot
	exp := NewSnapshotExporter(func() *sysinfo.Snapshot { return snap })

	if n := testutil.CollectAndCount(exp); n != 0 {
		t.Errorf("collected %d metrics before the first snapshot, want 0", n)
	}

	snap = sysinfo.NewSnapshot(4)
	snap.CPUUsage.Add(sysinfo.UsageScale / 4)
	snap.PhysicalMemoryUsed.Add(2048)
	snap.TotalProcesses = 12
	if n := testutil.CollectAndCount(exp); n != 11 {
		t.Errorf("collected %d metrics, want 11", n)
	}

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("Register() = %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "taskmon_system_cpu_usage_ratio" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 0.25 {
				t.Errorf("cpu usage ratio = %v, want 0.25", got)
			}
			return
		}
	}
	t.Error("cpu usage metric not gathered")
}
