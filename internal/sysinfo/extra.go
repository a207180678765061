package sysinfo

// ExtraInfo carries aggregate fields that only exist on one platform.
// The set of implementations is closed: *WindowsExtra and *LinuxExtra.
// Consumers use a type switch.
type ExtraInfo interface {
	// Platform returns the platform identifier ("windows" or "linux").
	Platform() string

	clone() ExtraInfo
}

// WindowsExtra holds Windows memory manager figures, all in bytes.
type WindowsExtra struct {
	CommitLimit    uint64 `json:"commit_limit"`
	CommitUsed     uint64 `json:"commit_used"`
	KernelPaged    uint64 `json:"kernel_paged"`
	KernelNonPaged uint64 `json:"kernel_non_paged"`
	ModifiedMemory uint64 `json:"modified_memory"`
	StandbyMemory  uint64 `json:"standby_memory"`
}

// Platform implements ExtraInfo.
func (*WindowsExtra) Platform() string { return "windows" }

func (w *WindowsExtra) clone() ExtraInfo {
	c := *w
	return &c
}

// LinuxExtra holds Linux specific aggregates. Memory fields are in bytes.
type LinuxExtra struct {
	OpenFileDescriptors      uint64 `json:"open_file_descriptors"`
	OpenFileDescriptorsLimit uint64 `json:"open_file_descriptors_limit"`
	SharedMemory             uint64 `json:"shared_memory"`
	SwapSize                 uint64 `json:"swap_size"`
	SwapUsed                 uint64 `json:"swap_used"`
}

// Platform implements ExtraInfo.
func (*LinuxExtra) Platform() string { return "linux" }

func (l *LinuxExtra) clone() ExtraInfo {
	c := *l
	return &c
}
