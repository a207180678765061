// Package sysinfo defines the platform-independent data model produced by the
// sampling engine: observed processes, the per-cycle system snapshot and the
// platform specific extra information attached to it.
package sysinfo

import (
	"time"

	"github.com/opd-ai/go-taskmon/internal/history"
)

// Status is the scheduling state of a process.
type Status int

const (
	// StatusRunning covers running, sleeping and any state without a dedicated value.
	StatusRunning Status = iota
	// StatusWaiting is an uninterruptible wait (usually disk I/O).
	StatusWaiting
	// StatusSuspended is a stopped or traced process.
	StatusSuspended
	// StatusZombie is a terminated process that has not been reaped.
	StatusZombie
	// StatusDead is a process that is no longer observed by the loader.
	StatusDead
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusWaiting:
		return "waiting"
	case StatusSuspended:
		return "suspended"
	case StatusZombie:
		return "zombie"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Enrichment tracks whether the identity attributes of a process have been resolved.
type Enrichment int

const (
	// EnrichmentNotAttempted means no resolution has been tried yet.
	EnrichmentNotAttempted Enrichment = iota
	// EnrichmentRetryable means the last attempt could not complete and will be
	// retried on a later cycle while the process stays observable.
	EnrichmentRetryable
	// EnrichmentComplete means identity attributes are final.
	EnrichmentComplete
)

// String returns the lower-case name of the enrichment state.
func (e Enrichment) String() string {
	switch e {
	case EnrichmentNotAttempted:
		return "not_attempted"
	case EnrichmentRetryable:
		return "retryable"
	case EnrichmentComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Enrichment) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Process is one observed OS process across its lifetime.
//
// ID is assigned by the loader on first observation and is never reused, while
// PID is whatever the operating system reported and may be recycled.
type Process struct {
	ID  uint64 `json:"id"`
	PID uint32 `json:"pid"`

	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	CommandLine string `json:"command_line"`
	UserName    string `json:"user_name"`
	Description string `json:"description"`

	Status     Status     `json:"status"`
	Enrichment Enrichment `json:"enrichment"`

	// PrivateWorkingSet holds private memory samples in bytes.
	PrivateWorkingSet *history.Buffer `json:"private_working_set"`
	// CPUTime holds cumulative CPU ticks (kernel + user) in OS-native units.
	CPUTime *history.Buffer `json:"cpu_time"`
	// CPUUsage holds usage ratios scaled by UsageScale.
	CPUUsage *history.Buffer `json:"cpu_usage"`

	DeathTime time.Time `json:"death_time,omitempty"`

	// ticked is set once a real tick counter has been recorded. Placeholder
	// samples written by RepeatCPU before that do not count as a baseline.
	ticked bool
}

// NewProcess creates a live process whose series hold historySize samples.
func NewProcess(id uint64, pid uint32, historySize int) *Process {
	return &Process{
		ID:                id,
		PID:               pid,
		Status:            StatusRunning,
		PrivateWorkingSet: history.NewBuffer(historySize),
		CPUTime:           history.NewBuffer(historySize),
		CPUUsage:          history.NewBuffer(historySize),
	}
}

// NeedsEnrichment reports whether identity attributes should be (re)resolved.
func (p *Process) NeedsEnrichment() bool {
	return p.Enrichment != EnrichmentComplete
}

// IsDead reports whether the process has been moved to the dead list.
// A live process may briefly report StatusDead while the kernel tears it down.
func (p *Process) IsDead() bool {
	return !p.DeathTime.IsZero()
}

// MarkDead moves the process to the dead state. Only the first call has an effect.
func (p *Process) MarkDead(at time.Time) {
	if !p.DeathTime.IsZero() {
		return
	}
	p.Status = StatusDead
	p.DeathTime = at
}

// UpdateCPU records the cumulative tick counter of this cycle and derives the
// usage ratio against the system-wide tick delta.
func (p *Process) UpdateCPU(ticks, systemDelta uint64, divisor int) {
	first := !p.ticked
	prev := p.CPUTime.Newest()
	p.CPUTime.Add(int64(ticks))
	p.ticked = true

	switch {
	case first:
		p.CPUUsage.Add(0)
	case systemDelta == 0:
		p.CPUUsage.Add(p.CPUUsage.Newest())
	default:
		p.CPUUsage.Add(UsageRatio(int64(ticks)-prev, systemDelta, divisor))
	}
}

// RepeatCPU duplicates the previous CPU samples when this cycle's counters
// could not be read, so consumers never see a gap. Before the first real
// reading the repeated samples are zero and UpdateCPU still treats its next
// call as the first observation.
func (p *Process) RepeatCPU() {
	p.CPUTime.Add(p.CPUTime.Newest())
	p.CPUUsage.Add(p.CPUUsage.Newest())
}

// RepeatMemory duplicates the previous working set sample.
func (p *Process) RepeatMemory() {
	p.PrivateWorkingSet.Add(p.PrivateWorkingSet.Newest())
}

// Copy returns a deep copy of the process.
func (p *Process) Copy() *Process {
	c := *p
	c.PrivateWorkingSet = p.PrivateWorkingSet.Copy()
	c.CPUTime = p.CPUTime.Copy()
	c.CPUUsage = p.CPUUsage.Copy()
	return &c
}
