package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
	"github.com/opd-ai/go-taskmon/pkg/taskmon"
)

func (a *app) watchCommand() *cobra.Command {
	var (
		view  viewOptions
		count int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the busiest processes after every sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := view.apply(sysinfo.NewSnapshot(1)); err != nil {
				return err
			}
			return a.runWatch(cmd.Context(), view, count)
		},
	}
	cmd.Flags().IntVar(&view.top, "top", 15, "number of processes to show (0 shows all)")
	cmd.Flags().StringVar(&view.filter, "filter", "", "only show processes matching [field:]text")
	cmd.Flags().StringVar(&view.sortBy, "sort", "cpu", "sort order: id, cpu or memory")
	cmd.Flags().BoolVar(&view.dead, "dead", false, "also show processes that exited")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many samples (0 runs until interrupted)")
	return cmd
}

// tablePrinter is a Consumer printing one table per update.
type tablePrinter struct {
	out   io.Writer
	view  viewOptions
	limit int

	mu      sync.Mutex
	printed int
	err     error
}

func (t *tablePrinter) Init(snap *sysinfo.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s  %s %s  %d logical processors  %s RAM\n",
		snap.Hostname, snap.Platform, snap.KernelVersion,
		snap.LogicalProcessors, bytesString(int64(snap.PhysicalMemoryTotal)))
}

func (t *tablePrinter) Update(snap *sysinfo.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	view, err := t.view.apply(snap)
	if err == nil {
		fmt.Fprintln(t.out)
		writeSummary(t.out, view)
		err = writeTable(t.out, view)
	}
	if err != nil && t.err == nil {
		t.err = err
	}
	t.printed++
}

func (t *tablePrinter) HasTerminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err != nil || (t.limit > 0 && t.printed >= t.limit)
}

func (a *app) runWatch(ctx context.Context, view viewOptions, count int) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	printer := &tablePrinter{out: a.out, view: view, limit: count}
	m, err := a.openMonitor(cfg, taskmon.Options{Consumer: printer})
	if err != nil {
		return err
	}

	stopped := make(chan struct{})
	var once sync.Once
	m.SetEventHandler(func(e taskmon.Event) {
		if e.Type == taskmon.EventStopped {
			once.Do(func() { close(stopped) })
		}
	})

	if err := m.Start(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	select {
	case <-ctx.Done():
	case <-stopped:
	}

	if err := m.Stop(); err != nil {
		return err
	}
	printer.mu.Lock()
	defer printer.mu.Unlock()
	return printer.err
}
