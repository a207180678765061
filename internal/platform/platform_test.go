package platform

import (
	"errors"
	"runtime"
	"testing"
	"time"
)

// TestNewForOS tests creating loaders for specific operating systems.
func TestNewForOS(t *testing.T) {
	l, err := NewForOS("linux", Options{ProcRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("NewForOS(linux) failed: %v", err)
	}
	if l.Name() != "linux" {
		t.Errorf("Expected loader name 'linux', got '%s'", l.Name())
	}

	if _, err := NewForOS("plan9", Options{}); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("NewForOS(plan9) error = %v, want ErrUnsupportedPlatform", err)
	}

	_, err = NewForOS("windows", Options{})
	if runtime.GOOS == "windows" {
		if err != nil {
			t.Errorf("NewForOS(windows) failed on Windows: %v", err)
		}
	} else if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("NewForOS(windows) on %s error = %v, want ErrUnsupportedPlatform", runtime.GOOS, err)
	}
}

func TestNew(t *testing.T) {
	l, err := New(Options{})
	switch runtime.GOOS {
	case "linux", "windows":
		if err != nil {
			t.Fatalf("New() failed on %s: %v", runtime.GOOS, err)
		}
		if l.Name() != runtime.GOOS {
			t.Errorf("Expected loader name '%s', got '%s'", runtime.GOOS, l.Name())
		}
	default:
		if !errors.Is(err, ErrUnsupportedPlatform) {
			t.Errorf("Expected ErrUnsupportedPlatform on %s, got %v", runtime.GOOS, err)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.ProcRoot != DefaultProcRoot {
		t.Errorf("ProcRoot = %q, want %q", o.ProcRoot, DefaultProcRoot)
	}
	if o.PasswdPath != DefaultPasswdPath {
		t.Errorf("PasswdPath = %q, want %q", o.PasswdPath, DefaultPasswdPath)
	}
	if o.UserCacheTTL != DefaultUserCacheTTL {
		t.Errorf("UserCacheTTL = %v, want %v", o.UserCacheTTL, DefaultUserCacheTTL)
	}
	if o.Logger == nil {
		t.Error("Logger should default to slog.Default")
	}

	custom := Options{ProcRoot: "/host/proc", UserCacheTTL: time.Second}.withDefaults()
	if custom.ProcRoot != "/host/proc" || custom.UserCacheTTL != time.Second {
		t.Errorf("explicit options were overridden: %+v", custom)
	}
}
