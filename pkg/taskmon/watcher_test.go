package taskmon

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfigWatcher_DetectsFileChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taskmon.yaml")
	if err := os.WriteFile(configPath, []byte("history_size: 10\n"), 0o644); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}

	var reloadCount atomic.Int32
	watcher, err := newConfigWatcher(configPath, 20*time.Millisecond,
		func() error {
			reloadCount.Add(1)
			return nil
		},
		func(err error) { t.Errorf("unexpected error: %v", err) },
	)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Close()

	// Several quick writes collapse into one reload.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(configPath, []byte("history_size: 11\n"), 0o644); err != nil {
			t.Fatalf("failed to modify config file: %v", err)
		}
	}

	waitFor(t, "reload", func() bool { return reloadCount.Load() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if count := reloadCount.Load(); count != 1 {
		t.Errorf("expected 1 reload, got %d", count)
	}
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taskmon.yaml")
	if err := os.WriteFile(configPath, []byte("history_size: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var reloadCount atomic.Int32
	watcher, err := newConfigWatcher(configPath, 10*time.Millisecond,
		func() error {
			reloadCount.Add(1)
			return nil
		}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := os.WriteFile(filepath.Join(tmpDir, "other.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if count := reloadCount.Load(); count != 0 {
		t.Errorf("expected no reload, got %d", count)
	}
}

func TestConfigWatcher_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskmon.yaml")
	watcher, err := newConfigWatcher(path, 0, func() error { return nil }, nil)
	if err != nil {
		t.Fatal(err)
	}
	watcher.Close()
	watcher.Close()
}

func TestMonitorWatchesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmon.yaml")
	if err := os.WriteFile(path, []byte("update_interval: 10ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := testOptions(&loaderFactory{})
	opts.UpdateInterval = 0
	opts.WatchConfig = true
	opts.WatchDebounce = 20 * time.Millisecond
	m, err := New(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	if err := os.WriteFile(path, []byte("update_interval: 30ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "config reload", func() bool {
		return m.Config().UpdateInterval == 30*time.Millisecond
	})
}
