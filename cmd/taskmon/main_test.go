package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
	"github.com/opd-ai/go-taskmon/pkg/taskmon"
)

// stubLoader reports a fixed process set with growing CPU time.
type stubLoader struct{}

func (stubLoader) Name() string { return "stub" }

func (stubLoader) Init(_ context.Context, snap *sysinfo.Snapshot) error {
	snap.Hostname = "testhost"
	snap.LogicalProcessors = 2
	snap.PhysicalMemoryTotal = 1 << 30
	return nil
}

func (stubLoader) Update(_ context.Context, snap *sysinfo.Snapshot) error {
	snap.Cycle++
	snap.Timestamp = time.Now()
	snap.CPUUsage.Add(sysinfo.UsageScale / 2)
	if len(snap.Processes) == 0 {
		for i, name := range []string{"init", "worker"} {
			p := snap.NewProcess(uint64(i+1), uint32(i+1))
			p.FileName = name
			p.UserName = "root"
			snap.Processes = append(snap.Processes, p)
		}
	}
	for _, p := range snap.Processes {
		p.CPUUsage.Add(int64(p.ID) * 1000)
		p.PrivateWorkingSet.Add(int64(p.ID) << 20)
	}
	snap.TotalProcesses = len(snap.Processes)
	return nil
}

func (stubLoader) Close() error { return nil }

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	a.newLoader = func(taskmon.LoaderOptions) (taskmon.Loader, error) { return stubLoader{}, nil }
	root := a.rootCommand()
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskmon.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if want := "taskmon version " + Version; !strings.Contains(out, want) {
		t.Errorf("output %q does not contain %q", out, want)
	}
}

func TestSnapshotJSON(t *testing.T) {
	cfg := writeConfig(t, "update_interval: 5ms\nhistory_size: 4\n")
	out, _, err := runCLI(t, "-c", cfg, "snapshot", "--json", "--sort", "memory")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	var snap struct {
		Hostname    string `json:"hostname"`
		Cycle       uint64 `json:"cycle"`
		HistorySize int    `json:"history_size"`
		Processes   []struct {
			FileName string `json:"file_name"`
		} `json:"processes"`
	}
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if snap.Hostname != "testhost" || snap.Cycle != 2 || snap.HistorySize != 4 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Processes) != 2 || snap.Processes[0].FileName != "worker" {
		t.Errorf("processes = %+v", snap.Processes)
	}
}

func TestSnapshotTable(t *testing.T) {
	cfg := writeConfig(t, "update_interval: 5ms\n")
	out, _, err := runCLI(t, "-c", cfg, "snapshot", "--filter", "name:work", "--samples", "1")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"cycle 1", "cpu 50.0%", "worker", "2.0 MB"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "init") {
		t.Errorf("filtered process shown:\n%s", out)
	}
}

func TestSnapshotRejectsBadFlags(t *testing.T) {
	tests := [][]string{
		{"snapshot", "--samples", "0"},
		{"snapshot", "--sort", "color"},
		{"watch", "--sort", "color"},
	}
	for _, args := range tests {
		if _, _, err := runCLI(t, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestWatchCount(t *testing.T) {
	cfg := writeConfig(t, "update_interval: 5ms\n")
	out, _, err := runCLI(t, "-c", cfg, "watch", "--count", "3", "--top", "1")
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if !strings.Contains(out, "testhost") {
		t.Errorf("missing header:\n%s", out)
	}
	if got := strings.Count(out, "cycle "); got != 3 {
		t.Errorf("printed %d tables, want 3:\n%s", got, out)
	}
	// The busiest process is the only row.
	if strings.Contains(out, "init") || !strings.Contains(out, "worker") {
		t.Errorf("unexpected rows:\n%s", out)
	}
}

func TestLogFlagsOverrideConfig(t *testing.T) {
	a := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	a.configPath = writeConfig(t, "log_level: error\n")
	a.logLevel = "debug"
	a.logFormat = "json"
	cfg, err := a.loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("cfg = %+v", cfg)
	}

	a.logFormat = "xml"
	if _, err := a.loadConfig(); err == nil {
		t.Error("expected a validation error for an unknown log format")
	}
}

func TestProfilingFlags(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")
	if _, _, err := runCLI(t, "--cpuprofile", cpu, "--memprofile", heap, "version"); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{cpu, heap} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not written: %v", path, err)
		}
	}
}
