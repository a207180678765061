package taskmon

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errTest = errors.New("test error")

func TestMetricsPrivateRegistry(t *testing.T) {
	m := NewMetrics(nil)
	m.starts.Inc()
	m.errors.Inc()
	m.errors.Inc()

	snap := m.Snapshot()
	if snap.Starts != 1 || snap.Errors != 2 || snap.Running {
		t.Errorf("Snapshot() = %+v", snap)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"taskmon_starts_total 1", "taskmon_errors_total 2", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition lacks %q", want)
		}
	}
}

func TestMetricsExportLatestSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := testOptions(&loaderFactory{})
	opts.Registerer = reg
	m, err := NewFromConfig(DefaultConfig(), opts)
	if err != nil {
		t.Fatal(err)
	}

	before, err := testutil.GatherAndCount(reg, "taskmon_system_processes")
	if err != nil {
		t.Fatal(err)
	}
	if before != 0 {
		t.Errorf("system metrics exported before Start")
	}

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()
	after, err := testutil.GatherAndCount(reg, "taskmon_system_processes")
	if err != nil {
		t.Fatal(err)
	}
	if after != 1 {
		t.Errorf("taskmon_system_processes count = %d, want 1", after)
	}
	if got := testutil.ToFloat64(m.Metrics().running); got != 1 {
		t.Errorf("taskmon_running = %v", got)
	}
}
