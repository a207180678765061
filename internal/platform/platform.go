package platform

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

var (
	// ErrUnsupportedPlatform is returned by the factory when no loader exists
	// for the requested operating system.
	ErrUnsupportedPlatform = errors.New("platform: unsupported operating system")

	// ErrEnumeration is returned by Update when the process list itself could
	// not be obtained. The snapshot is left unchanged for that cycle.
	ErrEnumeration = errors.New("platform: process enumeration failed")
)

// Loader samples operating system state into a Snapshot.
//
// A Loader is not safe for concurrent use; the collector drives it from a
// single goroutine and hands consumers copies of the snapshot.
type Loader interface {
	// Name returns the platform identifier ("linux" or "windows").
	Name() string

	// Init fills the static facts of snap. It runs once before the first
	// Update. A returned error means the loader cannot run at all.
	Init(ctx context.Context, snap *sysinfo.Snapshot) error

	// Update refreshes per-cycle aggregates and reconciles the process list.
	// Only process enumeration failures are returned; every other failure is
	// logged and absorbed so that the cycle still produces a snapshot.
	Update(ctx context.Context, snap *sysinfo.Snapshot) error

	// Close releases any platform resources.
	Close() error
}

// Options configures a Loader.
type Options struct {
	// ProcRoot is the procfs mount point read by the Linux loader.
	ProcRoot string
	// PasswdPath is the account database used to resolve Linux user ids.
	PasswdPath string
	// UserCacheTTL bounds how long a resolved user name is trusted.
	UserCacheTTL time.Duration
	// Logger receives diagnostics. A nil Logger uses slog.Default.
	Logger *slog.Logger
}

// Default option values.
const (
	DefaultProcRoot     = "/proc"
	DefaultPasswdPath   = "/etc/passwd"
	DefaultUserCacheTTL = 5 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.ProcRoot == "" {
		o.ProcRoot = DefaultProcRoot
	}
	if o.PasswdPath == "" {
		o.PasswdPath = DefaultPasswdPath
	}
	if o.UserCacheTTL <= 0 {
		o.UserCacheTTL = DefaultUserCacheTTL
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
