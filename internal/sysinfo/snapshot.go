package sysinfo

import (
	"time"

	"github.com/opd-ai/go-taskmon/internal/history"
)

// Snapshot is one complete sampled view of system and process state.
//
// The loader owns a single Snapshot and mutates it in place every cycle;
// consumers only ever receive copies made with Copy.
type Snapshot struct {
	// Static facts, set once at init.
	LogicalProcessors       int    `json:"logical_processors"`
	PageSize                uint64 `json:"page_size"`
	PhysicalMemoryTotal     uint64 `json:"physical_memory_total"`
	PhysicalMemoryInstalled uint64 `json:"physical_memory_installed"`
	ReservedMemory          uint64 `json:"reserved_memory"`
	UserName                string `json:"user_name"`
	Hostname                string `json:"hostname"`
	OS                      string `json:"os"`
	Platform                string `json:"platform"`
	KernelVersion           string `json:"kernel_version"`

	// HistorySize is the capacity of every series in this snapshot.
	HistorySize int `json:"history_size"`

	// Per-cycle aggregates.
	Timestamp          time.Time       `json:"timestamp"`
	Cycle              uint64          `json:"cycle"`
	FreeMemory         uint64          `json:"free_memory"`
	PhysicalMemoryUsed *history.Buffer `json:"physical_memory_used"`
	CPUUsage           *history.Buffer `json:"cpu_usage"`
	NetworkSent        *history.Buffer `json:"network_sent"`
	NetworkReceived    *history.Buffer `json:"network_received"`
	DiskRead           *history.Buffer `json:"disk_read"`
	DiskWrite          *history.Buffer `json:"disk_write"`
	TotalProcesses     int             `json:"total_processes"`
	TotalThreads       int             `json:"total_threads"`
	TotalHandles       int             `json:"total_handles"`

	// Processes holds live processes ordered by ID.
	Processes []*Process `json:"processes"`
	// DeadProcesses holds dead processes in the order they died.
	DeadProcesses []*Process `json:"dead_processes"`

	Extra ExtraInfo `json:"extra"`
}

// NewSnapshot creates an empty snapshot whose series hold historySize samples.
func NewSnapshot(historySize int) *Snapshot {
	if historySize <= 0 {
		historySize = history.DefaultSize
	}
	return &Snapshot{
		HistorySize:        historySize,
		PhysicalMemoryUsed: history.NewBuffer(historySize),
		CPUUsage:           history.NewBuffer(historySize),
		NetworkSent:        history.NewBuffer(historySize),
		NetworkReceived:    history.NewBuffer(historySize),
		DiskRead:           history.NewBuffer(historySize),
		DiskWrite:          history.NewBuffer(historySize),
	}
}

// NewProcess creates a process sized to this snapshot's history.
// The process is not added to any list.
func (s *Snapshot) NewProcess(id uint64, pid uint32) *Process {
	return NewProcess(id, pid, s.HistorySize)
}

// ProcessByPID returns the live process with the given OS id, or nil.
func (s *Snapshot) ProcessByPID(pid uint32) *Process {
	for _, p := range s.Processes {
		if p.PID == pid {
			return p
		}
	}
	return nil
}

// ProcessByID returns the live or dead process with the given internal id, or nil.
func (s *Snapshot) ProcessByID(id uint64) *Process {
	for _, p := range s.Processes {
		if p.ID == id {
			return p
		}
	}
	for _, p := range s.DeadProcesses {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ClearDead drops all dead processes.
func (s *Snapshot) ClearDead() {
	s.DeadProcesses = nil
}

// TrimDead keeps at most limit of the most recently dead processes.
// A non-positive limit keeps everything.
func (s *Snapshot) TrimDead(limit int) {
	if limit <= 0 || len(s.DeadProcesses) <= limit {
		return
	}
	drop := len(s.DeadProcesses) - limit
	s.DeadProcesses = append([]*Process(nil), s.DeadProcesses[drop:]...)
}

// Copy returns a deep copy that shares no mutable state with s.
func (s *Snapshot) Copy() *Snapshot {
	c := *s
	c.PhysicalMemoryUsed = s.PhysicalMemoryUsed.Copy()
	c.CPUUsage = s.CPUUsage.Copy()
	c.NetworkSent = s.NetworkSent.Copy()
	c.NetworkReceived = s.NetworkReceived.Copy()
	c.DiskRead = s.DiskRead.Copy()
	c.DiskWrite = s.DiskWrite.Copy()
	c.Processes = copyProcesses(s.Processes)
	c.DeadProcesses = copyProcesses(s.DeadProcesses)
	if s.Extra != nil {
		c.Extra = s.Extra.clone()
	}
	return &c
}

func copyProcesses(src []*Process) []*Process {
	if src == nil {
		return nil
	}
	out := make([]*Process, len(src))
	for i, p := range src {
		out[i] = p.Copy()
	}
	return out
}
