//go:build windows
// +build windows

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/windows"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

const idleProcessName = "System Idle Process"

// windowsLoader implements Loader using the native NT process and memory
// queries. Raw buffers are decoded by the functions in ntlayout.go.
type windowsLoader struct {
	logger     *slog.Logger
	host       *hostSampler
	reconciler *reconciler
	outages    *outageLog

	// buf is reused between process list queries.
	buf []byte
	// debug is nil when SeDebugPrivilege could not be enabled.
	debug *debugPrivilege

	lastTime    uint64
	currentTime uint64
}

func newWindowsLoader(opts Options) (Loader, error) {
	return &windowsLoader{
		logger:     opts.Logger.With("platform", "windows"),
		host:       newHostSampler(gopsutilSource{}, opts.Logger),
		reconciler: newReconciler(),
		outages:    newOutageLog(opts.Logger),
	}, nil
}

func (l *windowsLoader) Name() string {
	return "windows"
}

func (l *windowsLoader) Init(ctx context.Context, snap *sysinfo.Snapshot) error {
	if _, err := l.queryProcesses(); err != nil {
		return fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	l.host.init(ctx, snap)
	snap.PageSize = nativePageSize()

	if installed, err := physicallyInstalledMemory(); err != nil {
		l.logger.Warn("reading installed memory", "error", err)
		snap.PhysicalMemoryInstalled = snap.PhysicalMemoryTotal
	} else {
		snap.PhysicalMemoryInstalled = installed
		snap.ReservedMemory = subtractFloor(installed, snap.PhysicalMemoryTotal)
	}

	if name, err := currentUserName(); err != nil {
		l.logger.Warn("reading user name, keeping fallback", "user", snap.UserName, "error", err)
	} else {
		snap.UserName = name
	}

	debug, err := enableDebugPrivilege()
	if err != nil {
		l.logger.Warn("enabling debug privilege, identity of other users' processes will be incomplete", "error", err)
	}
	l.debug = debug

	snap.Extra = &sysinfo.WindowsExtra{}
	return nil
}

func (l *windowsLoader) Update(ctx context.Context, snap *sysinfo.Snapshot) error {
	records, err := l.queryProcesses()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	now := time.Now()
	snap.Timestamp = now
	snap.Cycle++

	l.host.update(ctx, snap, now)

	l.lastTime, l.currentTime = l.currentTime, systemTimeTicks()
	var systemDelta uint64
	if l.lastTime != 0 && l.currentTime > l.lastTime {
		systemDelta = l.currentTime - l.lastTime
	}

	byPID := make(map[uint32]processRecord, len(records))
	pids := make([]uint32, 0, len(records))
	for _, rec := range records {
		byPID[rec.PID] = rec
		pids = append(pids, rec.PID)
	}
	l.reconciler.reconcile(snap, pids, now)

	var threads, handles int
	for _, p := range snap.Processes {
		rec := byPID[p.PID]
		if p.NeedsEnrichment() {
			l.enrich(p, rec)
		}
		p.PrivateWorkingSet.Add(int64(rec.PrivateWorkingSet))
		// System time advances once for all cores, process time per core.
		p.UpdateCPU(rec.UserTime+rec.KernelTime, systemDelta, snap.LogicalProcessors)
		threads += int(rec.Threads)
		handles += int(rec.Handles)
	}

	extra, ok := snap.Extra.(*sysinfo.WindowsExtra)
	if !ok {
		extra = &sysinfo.WindowsExtra{}
		snap.Extra = extra
	}

	if perf, err := getPerformanceInfo(); err != nil {
		l.outages.failed("performance", err)
		snap.TotalProcesses, snap.TotalThreads, snap.TotalHandles = len(records), threads, handles
	} else {
		l.outages.recovered("performance")
		page := uint64(perf.PageSize)
		snap.TotalProcesses = int(perf.ProcessCount)
		snap.TotalThreads = int(perf.ThreadCount)
		snap.TotalHandles = int(perf.HandleCount)
		extra.CommitLimit = uint64(perf.CommitLimit) * page
		extra.CommitUsed = uint64(perf.CommitTotal) * page
		extra.KernelPaged = uint64(perf.KernelPaged) * page
		extra.KernelNonPaged = uint64(perf.KernelNonpaged) * page
	}

	buf, err := querySystemInformation(systemMemoryListInformation, make([]byte, smliSize))
	var lists memoryLists
	if err == nil {
		lists, err = parseMemoryLists(buf)
	}
	if err != nil {
		l.outages.failed("memory-lists", err)
		return nil
	}
	l.outages.recovered("memory-lists")
	extra.ModifiedMemory = lists.ModifiedPages * snap.PageSize
	extra.StandbyMemory = lists.StandbyPages * snap.PageSize
	snap.FreeMemory = (lists.FreePages + lists.ZeroPages) * snap.PageSize
	return nil
}

func (l *windowsLoader) Close() error {
	l.buf = nil
	err := l.debug.release()
	l.debug = nil
	return err
}

func (l *windowsLoader) queryProcesses() ([]processRecord, error) {
	buf, err := querySystemInformation(windows.SystemProcessInformation, l.buf[:cap(l.buf)])
	if err != nil {
		return nil, err
	}
	l.buf = buf
	return parseProcessRecords(buf, bufferBase(buf))
}

// enrich resolves identity attributes through the PEB chain. On failure the
// image name from the process record stands in and the process is retried on
// the next cycle.
func (l *windowsLoader) enrich(p *sysinfo.Process, rec processRecord) {
	if p.PID == 0 {
		p.FileName = idleProcessName
		p.UserName = "SYSTEM"
		p.Description = idleProcessName
		p.Enrichment = sysinfo.EnrichmentComplete
		return
	}
	p.FileName = rec.ImageName

	id, err := readProcessIdentity(p.PID)
	switch {
	case err == nil:
		p.FilePath = id.path
		p.CommandLine = id.commandLine
		p.UserName = id.user
		if desc, err := readFileDescription(id.path); err != nil {
			l.logger.Debug("reading file description", "pid", p.PID, "path", id.path, "error", err)
		} else {
			p.Description = desc
		}
	default:
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			l.logger.Debug("process identity not readable", "pid", p.PID, "name", p.FileName, "error", err)
		} else {
			l.logger.Debug("reading process identity, will retry", "pid", p.PID, "name", p.FileName, "error", err)
		}
		p.Description = p.FileName
		p.Enrichment = sysinfo.EnrichmentRetryable
		return
	}

	if p.Description == "" {
		p.Description = p.FileName
	}
	p.Enrichment = sysinfo.EnrichmentComplete
}
