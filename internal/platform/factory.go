package platform

import (
	"fmt"
	"runtime"
)

// New creates the appropriate Loader for the current OS.
// Returns an error wrapping ErrUnsupportedPlatform if the OS is not supported.
func New(opts Options) (Loader, error) {
	return NewForOS(runtime.GOOS, opts)
}

// NewForOS creates a Loader for the specified OS.
// The Linux loader only reads files below Options.ProcRoot, so it can be
// created anywhere; the Windows loader needs the native APIs.
func NewForOS(goos string, opts Options) (Loader, error) {
	opts = opts.withDefaults()
	switch goos {
	case "linux":
		return newLinuxLoader(opts), nil
	case "windows":
		return newWindowsLoader(opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
}
