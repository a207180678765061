package platform

import (
	"slices"
	"time"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// reconciler matches the OS ids seen in one cycle against the live process
// list of a snapshot. It owns the internal id counter, which starts at 1 and
// only ever grows.
type reconciler struct {
	nextID uint64
}

func newReconciler() *reconciler {
	return &reconciler{nextID: 1}
}

// reconcile moves live processes whose OS id is absent from pids to the dead
// list, stamped with now, and appends a new process for every OS id that has
// no live match. It returns the processes created this cycle.
//
// Live order stays by internal id: survivors keep their relative order and
// newcomers get increasing ids in ascending OS id order.
func (r *reconciler) reconcile(snap *sysinfo.Snapshot, pids []uint32, now time.Time) []*sysinfo.Process {
	seen := make(map[uint32]struct{}, len(pids))
	for _, pid := range pids {
		seen[pid] = struct{}{}
	}

	live := make([]*sysinfo.Process, 0, len(seen))
	matched := make(map[uint32]struct{}, len(snap.Processes))
	for _, p := range snap.Processes {
		if _, ok := seen[p.PID]; ok {
			live = append(live, p)
			matched[p.PID] = struct{}{}
			continue
		}
		p.MarkDead(now)
		snap.DeadProcesses = append(snap.DeadProcesses, p)
	}

	ordered := slices.Clone(pids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	var added []*sysinfo.Process
	for _, pid := range ordered {
		if _, ok := matched[pid]; ok {
			continue
		}
		p := snap.NewProcess(r.nextID, pid)
		r.nextID++
		live = append(live, p)
		added = append(added, p)
	}

	snap.Processes = live
	return added
}
