//go:build linux
// +build linux

package platform

import "golang.org/x/sys/unix"

// nativePageSize returns the kernel page size in bytes.
func nativePageSize() uint64 {
	return uint64(unix.Getpagesize())
}

// nativeMemoryTotal returns the usable physical memory reported by sysinfo(2).
func nativeMemoryTotal() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}
