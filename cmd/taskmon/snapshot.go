package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
	"github.com/opd-ai/go-taskmon/pkg/taskmon"
)

func (a *app) snapshotCommand() *cobra.Command {
	var (
		view    viewOptions
		asJSON  bool
		samples int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Sample a few times and print the result",
		Long: `snapshot samples the system, waits for the requested number of
updates and prints the final snapshot. CPU usage needs two samples, so
the default waits for two updates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if samples < 1 {
				return errors.New("--samples must be at least 1")
			}
			if _, err := view.apply(sysinfo.NewSnapshot(1)); err != nil {
				return err
			}
			snap, err := a.takeSnapshot(cmd.Context(), samples, timeout)
			if err != nil {
				return err
			}
			out, err := view.apply(snap)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			writeSummary(cmd.OutOrStdout(), out)
			return writeTable(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	cmd.Flags().IntVar(&view.top, "top", 0, "number of processes to show (0 shows all)")
	cmd.Flags().StringVar(&view.filter, "filter", "", "only show processes matching [field:]text")
	cmd.Flags().StringVar(&view.sortBy, "sort", "id", "sort order: id, cpu or memory")
	cmd.Flags().BoolVar(&view.dead, "dead", false, "include processes that exited")
	cmd.Flags().IntVar(&samples, "samples", 2, "number of updates to wait for")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "maximum time to wait for the samples")
	return cmd
}

// sampleCounter is a Consumer that keeps the latest snapshot and terminates
// after n updates.
type sampleCounter struct {
	n    int
	done chan struct{}

	mu      sync.Mutex
	updates int
	last    *sysinfo.Snapshot
}

func (s *sampleCounter) Init(*sysinfo.Snapshot) {}

func (s *sampleCounter) Update(snap *sysinfo.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	s.last = snap
	if s.updates == s.n {
		close(s.done)
	}
}

func (s *sampleCounter) HasTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates >= s.n
}

func (a *app) takeSnapshot(ctx context.Context, samples int, timeout time.Duration) (*sysinfo.Snapshot, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	counter := &sampleCounter{n: samples, done: make(chan struct{})}
	m, err := a.openMonitor(cfg, taskmon.Options{Consumer: counter})
	if err != nil {
		return nil, err
	}
	if err := m.Start(); err != nil {
		return nil, err
	}
	defer m.Stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-counter.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %d samples: %w", samples, ctx.Err())
	}

	counter.mu.Lock()
	defer counter.mu.Unlock()
	return counter.last, nil
}
