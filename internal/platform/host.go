package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os/user"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// hostSource provides the system-wide counters that are the same on every
// platform. The default implementation is backed by gopsutil.
type hostSource interface {
	LogicalCPUs(ctx context.Context) (int, error)
	Info(ctx context.Context) (*host.InfoStat, error)
	Memory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	CPUPercent(ctx context.Context) (float64, error)
	NetIO(ctx context.Context) (sent, recv uint64, err error)
	DiskIO(ctx context.Context) (read, write uint64, err error)
	CurrentUser() (string, error)
}

type gopsutilSource struct{}

func (gopsutilSource) LogicalCPUs(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (gopsutilSource) Info(ctx context.Context) (*host.InfoStat, error) {
	return host.InfoWithContext(ctx)
}

func (gopsutilSource) Memory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (gopsutilSource) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu percentage reported")
	}
	return percents[0], nil
}

func (gopsutilSource) NetIO(ctx context.Context) (sent, recv uint64, err error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range counters {
		sent += c.BytesSent
		recv += c.BytesRecv
	}
	return sent, recv, nil
}

func (gopsutilSource) DiskIO(ctx context.Context) (read, write uint64, err error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range counters {
		read += c.ReadBytes
		write += c.WriteBytes
	}
	return read, write, nil
}

func (gopsutilSource) CurrentUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// hostSampler fills the platform-neutral parts of a snapshot: static host
// facts at init and the memory, CPU, network and disk series every cycle.
// A failed source repeats its previous sample.
type hostSampler struct {
	source  hostSource
	logger  *slog.Logger
	outages *outageLog

	lastAt              time.Time
	lastSent, lastRecv  uint64
	lastRead, lastWrite uint64
	haveNet, haveDisk   bool
}

func newHostSampler(source hostSource, logger *slog.Logger) *hostSampler {
	return &hostSampler{
		source:  source,
		logger:  logger,
		outages: newOutageLog(logger),
	}
}

// init fills static host facts. Failures degrade the snapshot and are
// reported once.
func (h *hostSampler) init(ctx context.Context, snap *sysinfo.Snapshot) {
	if n, err := h.source.LogicalCPUs(ctx); err != nil {
		h.logger.Warn("counting logical processors", "error", err)
		snap.LogicalProcessors = 1
	} else {
		snap.LogicalProcessors = n
	}

	if info, err := h.source.Info(ctx); err != nil {
		h.logger.Warn("reading host information", "error", err)
	} else {
		snap.Hostname = info.Hostname
		snap.OS = info.OS
		snap.Platform = info.Platform
		snap.KernelVersion = info.KernelVersion
	}

	if vm, err := h.source.Memory(ctx); err != nil {
		h.logger.Warn("reading physical memory size", "error", err)
	} else {
		snap.PhysicalMemoryTotal = vm.Total
	}

	if name, err := h.source.CurrentUser(); err != nil {
		h.logger.Warn("resolving current user", "error", err)
	} else {
		snap.UserName = name
	}
}

// update appends one sample to every host series.
func (h *hostSampler) update(ctx context.Context, snap *sysinfo.Snapshot, now time.Time) {
	elapsed := now.Sub(h.lastAt).Seconds()
	if h.lastAt.IsZero() {
		elapsed = 0
	}
	h.lastAt = now

	if vm, err := h.source.Memory(ctx); err != nil {
		h.outages.failed("memory", err)
		snap.PhysicalMemoryUsed.Add(snap.PhysicalMemoryUsed.Newest())
	} else {
		h.outages.recovered("memory")
		if snap.PhysicalMemoryTotal == 0 {
			snap.PhysicalMemoryTotal = vm.Total
		}
		used := vm.Total - vm.Available
		if vm.Available > vm.Total {
			used = 0
		}
		snap.PhysicalMemoryUsed.Add(int64(used))
	}

	if pct, err := h.source.CPUPercent(ctx); err != nil {
		h.outages.failed("cpu", err)
		snap.CPUUsage.Add(snap.CPUUsage.Newest())
	} else {
		h.outages.recovered("cpu")
		snap.CPUUsage.Add(percentToRatio(pct))
	}

	if sent, recv, err := h.source.NetIO(ctx); err != nil {
		h.outages.failed("network", err)
		snap.NetworkSent.Add(snap.NetworkSent.Newest())
		snap.NetworkReceived.Add(snap.NetworkReceived.Newest())
	} else {
		h.outages.recovered("network")
		snap.NetworkSent.Add(rate(sent, h.lastSent, elapsed, h.haveNet))
		snap.NetworkReceived.Add(rate(recv, h.lastRecv, elapsed, h.haveNet))
		h.lastSent, h.lastRecv, h.haveNet = sent, recv, true
	}

	if read, write, err := h.source.DiskIO(ctx); err != nil {
		h.outages.failed("disk", err)
		snap.DiskRead.Add(snap.DiskRead.Newest())
		snap.DiskWrite.Add(snap.DiskWrite.Newest())
	} else {
		h.outages.recovered("disk")
		snap.DiskRead.Add(rate(read, h.lastRead, elapsed, h.haveDisk))
		snap.DiskWrite.Add(rate(write, h.lastWrite, elapsed, h.haveDisk))
		h.lastRead, h.lastWrite, h.haveDisk = read, write, true
	}
}

// percentToRatio converts a 0-100 percentage to a UsageScale ratio.
func percentToRatio(pct float64) int64 {
	ratio := int64(pct * sysinfo.UsageScale / 100)
	switch {
	case ratio < 0:
		return 0
	case ratio > sysinfo.UsageScale:
		return sysinfo.UsageScale
	}
	return ratio
}

// rate returns the per-second increase of a cumulative counter. The first
// sample and counter resets yield 0.
func rate(current, previous uint64, seconds float64, havePrevious bool) int64 {
	if !havePrevious || seconds <= 0 || current < previous {
		return 0
	}
	return int64(float64(current-previous) / seconds)
}
