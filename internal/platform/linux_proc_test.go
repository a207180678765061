package platform

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

func TestParseProcStat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    procStat
		wantErr bool
	}{
		{
			name:    "plain comm",
			content: "42 (bash) S 1 42 42 0 -1 4194304 100 0 0 0 120 30 0 0 20 0 1 0 100 1000 100",
			want:    procStat{state: "S", utime: 120, stime: 30, threads: 1},
		},
		{
			name:    "comm with spaces and parentheses",
			content: "43 (Web Content (x)) R 1 43 43 0 -1 4194304 100 0 0 0 7 3 0 0 20 0 12 0 100 1000 100",
			want:    procStat{state: "R", utime: 7, stime: 3, threads: 12},
		},
		{
			name:    "missing parentheses",
			content: "44 bash S 1",
			wantErr: true,
		},
		{
			name:    "truncated record",
			content: "45 (bash) S 1 45 45",
			wantErr: true,
		},
		{
			name:    "malformed utime",
			content: "46 (bash) S 1 46 46 0 -1 4194304 100 0 0 0 x 30 0 0 20 0 1 0 100 1000 100",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProcStat(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseProcStat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseProcStat() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		code string
		want sysinfo.Status
	}{
		{"Z", sysinfo.StatusZombie},
		{"D", sysinfo.StatusWaiting},
		{"T", sysinfo.StatusSuspended},
		{"t", sysinfo.StatusSuspended},
		{"X", sysinfo.StatusDead},
		{"S", sysinfo.StatusRunning},
		{"R", sysinfo.StatusRunning},
		{"?", sysinfo.StatusRunning},
	}
	for _, tt := range tests {
		if got := parseState(tt.code); got != tt.want {
			t.Errorf("parseState(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestParseKeyValue(t *testing.T) {
	content := "Name:\tbash\nUid:\t1000\t1000\t1000\t1000\nRssAnon:\t    2048 kB\nno colon here\n"
	got := parseKeyValue(content)

	want := map[string]string{
		"Name":    "bash",
		"Uid":     "1000\t1000\t1000\t1000",
		"RssAnon": "2048 kB",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseKeyValue() = %v, want %v", got, want)
	}

	if v := parseKB(got["RssAnon"]); v != 2048*1024 {
		t.Errorf("parseKB(RssAnon) = %d, want %d", v, 2048*1024)
	}
	if v := parseKB(""); v != 0 {
		t.Errorf("parseKB(\"\") = %d, want 0", v)
	}
	if v := firstField(got["Uid"]); v != "1000" {
		t.Errorf("firstField(Uid) = %q, want 1000", v)
	}
}

func TestReadTotalTicks(t *testing.T) {
	dir := t.TempDir()
	content := "cpu  100 0 50 850 0 0 0 0 0 0\ncpu0 25 0 12 212 0 0 0 0 0 0\n"
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readTotalTicks(dir)
	if err != nil {
		t.Fatalf("readTotalTicks() failed: %v", err)
	}
	if got != 1000 {
		t.Errorf("readTotalTicks() = %d, want 1000", got)
	}

	if _, err := readTotalTicks(t.TempDir()); err == nil {
		t.Error("expected error for missing stat file")
	}
}

func TestReadFileNr(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sys", "fs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sys", "fs", "file-nr"), []byte("1024\t0\t9223372036854775807\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	used, limit, err := readFileNr(dir)
	if err != nil {
		t.Fatalf("readFileNr() failed: %v", err)
	}
	if used != 1024 || limit != 9223372036854775807 {
		t.Errorf("readFileNr() = %d, %d", used, limit)
	}
}

func TestParseMemInfo(t *testing.T) {
	content := "MemTotal:       16384 kB\nShmem:            100 kB\nSwapTotal:       1000 kB\nSwapFree:         400 kB\n"
	got := parseMemInfo(content)
	want := memInfo{shmem: 100 * 1024, swapTotal: 1000 * 1024, swapFree: 400 * 1024}
	if got != want {
		t.Errorf("parseMemInfo() = %+v, want %+v", got, want)
	}
}

func TestListPIDs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1", "42", "self", "sys"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "7"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	pids, err := listPIDs(dir)
	if err != nil {
		t.Fatalf("listPIDs() failed: %v", err)
	}
	slices.Sort(pids)
	if want := []uint32{1, 42}; !reflect.DeepEqual(pids, want) {
		t.Errorf("listPIDs() = %v, want %v", pids, want)
	}

	if _, err := listPIDs(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing process root")
	}
}
