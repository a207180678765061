package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/c2h5oh/datasize"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// viewOptions selects and orders the processes shown by watch, snapshot
// and the HTTP API.
type viewOptions struct {
	filter string
	sortBy string
	top    int
	dead   bool
}

var orders = map[string]sysinfo.Order{
	"":       sysinfo.ByID,
	"id":     sysinfo.ByID,
	"cpu":    sysinfo.ByCPU,
	"memory": sysinfo.ByMemory,
	"mem":    sysinfo.ByMemory,
}

func parseOrder(name string) (sysinfo.Order, error) {
	order, ok := orders[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown sort order %q (expected id, cpu or memory)", name)
	}
	return order, nil
}

// apply returns a shallow copy of snap whose process lists are filtered,
// sorted and truncated. snap itself is not modified.
func (v viewOptions) apply(snap *sysinfo.Snapshot) (*sysinfo.Snapshot, error) {
	order, err := parseOrder(v.sortBy)
	if err != nil {
		return nil, err
	}
	var filter sysinfo.Filter
	if v.filter != "" {
		tf, err := sysinfo.ParseFilter(v.filter)
		if err != nil {
			return nil, err
		}
		filter = tf
	}

	view := *snap
	view.Processes = sysinfo.Sorted(sysinfo.Select(snap.Processes, filter), order)
	if v.top > 0 && len(view.Processes) > v.top {
		view.Processes = view.Processes[:v.top]
	}
	if v.dead {
		view.DeadProcesses = sysinfo.Sorted(sysinfo.Select(snap.DeadProcesses, filter), sysinfo.ByDeathTime)
	} else {
		view.DeadProcesses = nil
	}
	return &view, nil
}

func bytesString(n int64) string {
	if n < 0 {
		return "-"
	}
	return datasize.ByteSize(n).HumanReadable()
}

// writeSummary prints the system aggregates of snap on one line.
func writeSummary(w io.Writer, snap *sysinfo.Snapshot) {
	fmt.Fprintf(w, "cycle %d  cpu %.1f%%  mem %s / %s  procs %d  threads %d  net %s/s up %s/s down  disk %s/s read %s/s write\n",
		snap.Cycle,
		sysinfo.Percent(snap.CPUUsage.Newest()),
		bytesString(snap.PhysicalMemoryUsed.Newest()),
		bytesString(int64(snap.PhysicalMemoryTotal)),
		snap.TotalProcesses,
		snap.TotalThreads,
		bytesString(snap.NetworkSent.Newest()),
		bytesString(snap.NetworkReceived.Newest()),
		bytesString(snap.DiskRead.Newest()),
		bytesString(snap.DiskWrite.Newest()),
	)
}

// writeTable prints the process lists of snap as aligned columns.
func writeTable(w io.Writer, snap *sysinfo.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPID\tNAME\tUSER\tCPU%\tMEMORY\tSTATUS")
	row := func(p *sysinfo.Process) {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%.1f\t%s\t%s\n",
			p.ID, p.PID, p.FileName, p.UserName,
			sysinfo.Percent(p.CPUUsage.Newest()),
			bytesString(p.PrivateWorkingSet.Newest()),
			p.Status)
	}
	for _, p := range snap.Processes {
		row(p)
	}
	for _, p := range snap.DeadProcesses {
		row(p)
	}
	return tw.Flush()
}
