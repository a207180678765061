package sysinfo

import (
	"cmp"
	"slices"
)

// Order compares two processes for sorting.
type Order func(a, b *Process) int

// ByID orders processes by internal id, i.e. by first observation.
func ByID(a, b *Process) int {
	return cmp.Compare(a.ID, b.ID)
}

// ByDeathTime orders processes by the time they died, oldest first.
func ByDeathTime(a, b *Process) int {
	if c := a.DeathTime.Compare(b.DeathTime); c != 0 {
		return c
	}
	return ByID(a, b)
}

// ByCPU orders processes by their latest CPU usage, highest first.
func ByCPU(a, b *Process) int {
	if c := cmp.Compare(b.CPUUsage.Newest(), a.CPUUsage.Newest()); c != 0 {
		return c
	}
	return ByID(a, b)
}

// ByMemory orders processes by their latest private working set, largest first.
func ByMemory(a, b *Process) int {
	if c := cmp.Compare(b.PrivateWorkingSet.Newest(), a.PrivateWorkingSet.Newest()); c != 0 {
		return c
	}
	return ByID(a, b)
}

// Sorted returns a sorted copy of the process slice.
func Sorted(processes []*Process, order Order) []*Process {
	out := slices.Clone(processes)
	slices.SortStableFunc(out, order)
	return out
}
