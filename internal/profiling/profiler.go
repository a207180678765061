// Package profiling captures CPU and heap profiles of the taskmon process.
package profiling

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/c2h5oh/datasize"
)

var (
	// ErrActive is returned by Begin on a session that is already profiling.
	ErrActive = errors.New("profiling: session already active")
	// ErrInactive is returned by End on a session that was never begun.
	ErrInactive = errors.New("profiling: session not active")
)

// Options selects the profiles to capture. Empty paths disable a profile.
type Options struct {
	CPUPath  string
	HeapPath string
	Logger   *slog.Logger
}

// Enabled reports whether any profile is requested.
func (o Options) Enabled() bool {
	return o.CPUPath != "" || o.HeapPath != ""
}

// Session is one profiling run: CPU sampling between Begin and End and a
// heap profile written at End.
type Session struct {
	opts    Options
	cpuFile *os.File
	active  bool
	mu      sync.Mutex
}

// NewSession creates an inactive session.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{opts: opts}
}

// Begin starts CPU sampling when a CPU path is set.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrActive
	}
	if s.opts.CPUPath != "" {
		f, err := os.Create(s.opts.CPUPath)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("start CPU profile: %w", err)
		}
		s.cpuFile = f
	}
	s.active = true
	return nil
}

// End stops CPU sampling and writes the heap profile. Every failure is
// reported, joined.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ErrInactive
	}
	s.active = false

	var errs []error
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		s.logWritten("cpu", s.cpuFile)
		if err := s.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close CPU profile: %w", err))
		}
		s.cpuFile = nil
	}
	if s.opts.HeapPath != "" {
		if err := s.writeHeap(s.opts.HeapPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active reports whether the session is between Begin and End.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// WriteHeap writes a heap profile to path without ending the session.
func (s *Session) WriteHeap(path string) error {
	return s.writeHeap(path)
}

func (s *Session) writeHeap(path string) error {
	// Collect first so the profile reflects live objects only.
	runtime.GC()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer f.Close()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	s.logWritten("heap", f)
	return nil
}

func (s *Session) logWritten(kind string, f *os.File) {
	info, err := f.Stat()
	if err != nil {
		return
	}
	s.opts.Logger.Info("profile written",
		"kind", kind,
		"path", f.Name(),
		"size", datasize.ByteSize(info.Size()).HumanReadable())
}
