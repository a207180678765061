//go:build !linux
// +build !linux

package platform

import (
	"errors"
	"os"
)

func nativePageSize() uint64 {
	return uint64(os.Getpagesize())
}

func nativeMemoryTotal() (uint64, error) {
	return 0, errors.New("sysinfo(2) is only available on linux")
}
