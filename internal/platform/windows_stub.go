//go:build !windows
// +build !windows

package platform

import "fmt"

// newWindowsLoader is a stub for non-Windows platforms.
func newWindowsLoader(Options) (Loader, error) {
	return nil, fmt.Errorf("%w: windows loader requires a windows build", ErrUnsupportedPlatform)
}
