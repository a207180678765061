package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// linuxLoader implements Loader by reading the /proc filesystem.
//
// It only touches files below procRoot and the account database, so tests
// point it at a fake tree.
type linuxLoader struct {
	procRoot   string
	logger     *slog.Logger
	host       *hostSampler
	users      *userTable
	reconciler *reconciler
	outages    *outageLog

	// exists decides whether a recovered executable path is reported.
	exists func(string) bool
	now    func() time.Time

	lastTicks    uint64
	currentTicks uint64
}

func newLinuxLoader(opts Options) *linuxLoader {
	return &linuxLoader{
		procRoot:   opts.ProcRoot,
		logger:     opts.Logger.With("platform", "linux"),
		host:       newHostSampler(gopsutilSource{}, opts.Logger),
		users:      newUserTable(opts.PasswdPath, opts.UserCacheTTL, opts.Logger),
		reconciler: newReconciler(),
		outages:    newOutageLog(opts.Logger),
		exists:     fileExists,
		now:        time.Now,
	}
}

func (l *linuxLoader) Name() string {
	return "linux"
}

func (l *linuxLoader) Init(ctx context.Context, snap *sysinfo.Snapshot) error {
	if _, err := os.ReadDir(l.procRoot); err != nil {
		return fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	l.host.init(ctx, snap)
	snap.PageSize = nativePageSize()
	if snap.PhysicalMemoryTotal == 0 {
		if total, err := nativeMemoryTotal(); err == nil {
			snap.PhysicalMemoryTotal = total
		}
	}
	// Linux does not report firmware-reserved memory separately.
	snap.PhysicalMemoryInstalled = snap.PhysicalMemoryTotal
	snap.Extra = &sysinfo.LinuxExtra{}

	if err := l.users.refresh(); err != nil {
		l.logger.Warn("building user table, user names fall back to numeric ids", "error", err)
	}
	return nil
}

func (l *linuxLoader) Update(ctx context.Context, snap *sysinfo.Snapshot) error {
	pids, err := listPIDs(l.procRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	now := l.now()
	snap.Timestamp = now
	snap.Cycle++

	l.host.update(ctx, snap, now)
	snap.FreeMemory = subtractFloor(snap.PhysicalMemoryTotal, uint64(snap.PhysicalMemoryUsed.Newest()))

	systemDelta := l.updateTotalTicks()
	l.reconciler.reconcile(snap, pids, now)

	threads := 0
	for _, p := range snap.Processes {
		threads += l.updateProcess(p, systemDelta)
	}
	snap.TotalProcesses = len(snap.Processes)
	snap.TotalThreads = threads

	l.updateExtra(snap)
	return nil
}

func (l *linuxLoader) Close() error {
	l.users.cache.DeleteAll()
	return nil
}

// updateTotalTicks samples the system-wide tick counter and returns the
// delta since the previous cycle. A failed read yields a zero delta, which
// makes every process repeat its previous usage. It also drops the baseline,
// so the first cycle after a failure does not span two intervals.
func (l *linuxLoader) updateTotalTicks() uint64 {
	ticks, err := readTotalTicks(l.procRoot)
	if err != nil {
		l.outages.failed("stat", err)
		l.currentTicks = 0
		return 0
	}
	l.outages.recovered("stat")

	l.lastTicks, l.currentTicks = l.currentTicks, ticks
	if l.lastTicks == 0 || l.currentTicks < l.lastTicks {
		return 0
	}
	return l.currentTicks - l.lastTicks
}

// updateProcess refreshes one live process and returns its thread count.
func (l *linuxLoader) updateProcess(p *sysinfo.Process, systemDelta uint64) int {
	dir := filepath.Join(l.procRoot, strconv.FormatUint(uint64(p.PID), 10))

	status, statusErr := readKeyValueFile(filepath.Join(dir, "status"))
	if p.NeedsEnrichment() {
		l.enrich(p, dir, status, statusErr)
	}

	if statusErr != nil {
		l.logger.Debug("reading process status, duplicating previous memory value", "pid", p.PID, "error", statusErr)
		p.RepeatMemory()
	} else {
		// Kernel threads have no RssAnon.
		p.PrivateWorkingSet.Add(int64(parseKB(status["RssAnon"])))
	}

	data, err := os.ReadFile(filepath.Join(dir, "stat"))
	var st procStat
	if err == nil {
		st, err = parseProcStat(string(data))
	}
	if err != nil {
		l.logger.Debug("reading process stat, duplicating previous CPU values", "pid", p.PID, "error", err)
		p.RepeatCPU()
		return 0
	}

	// The total from /proc/stat already spans every core.
	p.UpdateCPU(st.utime+st.stime, systemDelta, 1)
	p.Status = parseState(st.state)
	return st.threads
}

// enrich resolves the identity attributes of p. It leaves the process
// retryable when the status file is gone or no name can be found at all.
func (l *linuxLoader) enrich(p *sysinfo.Process, dir string, status map[string]string, statusErr error) {
	if statusErr != nil {
		p.Enrichment = sysinfo.EnrichmentRetryable
		return
	}

	p.UserName = l.users.lookup(firstField(status["Uid"]))

	cmdline, err := readCommandLine(filepath.Join(dir, "cmdline"))
	if err != nil {
		l.logger.Debug("reading process command line", "pid", p.PID, "error", err)
	}
	p.CommandLine = cmdline

	if target, err := os.Readlink(filepath.Join(dir, "exe")); err != nil {
		l.logger.Debug("reading process executable link", "pid", p.PID, "error", err)
	} else if filepath.IsAbs(target) {
		target = strings.TrimSuffix(target, " (deleted)")
		p.FilePath = target
		p.FileName = filepath.Base(target)
	}

	if p.FileName == "" {
		partial, _ := readStringFile(filepath.Join(dir, "comm"))
		if partial == "" {
			partial = status["Name"]
		}
		name, path, ok := resolveIdentity(partial, cmdline, l.exists)
		if !ok {
			l.logger.Debug("found no process name in comm, status or cmdline, did the process exit?", "pid", p.PID)
			p.Enrichment = sysinfo.EnrichmentRetryable
			return
		}
		p.FileName, p.FilePath = name, path
	}

	p.Enrichment = sysinfo.EnrichmentComplete
}

func (l *linuxLoader) updateExtra(snap *sysinfo.Snapshot) {
	extra, ok := snap.Extra.(*sysinfo.LinuxExtra)
	if !ok {
		extra = &sysinfo.LinuxExtra{}
		snap.Extra = extra
	}

	if used, limit, err := readFileNr(l.procRoot); err != nil {
		l.outages.failed("file-nr", err)
	} else {
		l.outages.recovered("file-nr")
		extra.OpenFileDescriptors = used
		extra.OpenFileDescriptorsLimit = limit
	}

	content, ok := readStringFile(filepath.Join(l.procRoot, "meminfo"))
	if !ok {
		l.outages.failed("meminfo", fmt.Errorf("reading %s/meminfo", l.procRoot))
		return
	}
	l.outages.recovered("meminfo")
	info := parseMemInfo(content)
	extra.SharedMemory = info.shmem
	extra.SwapSize = info.swapTotal
	extra.SwapUsed = subtractFloor(info.swapTotal, info.swapFree)
}

// subtractFloor returns a-b, or 0 if b exceeds a.
func subtractFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
