package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

const testLuaConfig = `taskmon.config = {
    update_interval = 2,
    history_size = 30,
    passwd_path = "/srv/passwd",
    user_cache_ttl = 60,
    dead_limit = 10,
    log_format = "json",
}
`

const testYAMLConfig = `# same settings as testLuaConfig
update_interval: 2s
history_size: 30
passwd_path: /srv/passwd
user_cache_ttl: 60
dead_limit: 10
log_format: json
`

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser()
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLuaAndYAMLProduceSameConfig(t *testing.T) {
	p := newTestParser(t)

	fromLua, err := p.ParseFile(writeFile(t, "taskmon.lua", testLuaConfig))
	if err != nil {
		t.Fatalf("Lua: %v", err)
	}
	fromYAML, err := p.ParseFile(writeFile(t, "taskmon.yaml", testYAMLConfig))
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}

	if *fromLua != *fromYAML {
		t.Errorf("Lua config %+v != YAML config %+v", fromLua, fromYAML)
	}
	if fromLua.UpdateInterval != 2*time.Second || fromLua.UserCacheTTL != time.Minute {
		t.Errorf("durations = %v %v", fromLua.UpdateInterval, fromLua.UserCacheTTL)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Format
	}{
		{"lua assignment", testLuaConfig, FormatLua},
		{"indented assignment", "  taskmon.config = {}", FormatLua},
		{"yaml", testYAMLConfig, FormatYAML},
		{"comment mentioning lua", "# taskmon.config = {}\nhistory_size: 5", FormatYAML},
		{"empty", "", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat([]byte(tt.content)); got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"/etc/taskmon.lua":  FormatLua,
		"conf.YAML":         FormatYAML,
		"conf.yml":          FormatYAML,
		"taskmonrc":         FormatUnknown,
		"/etc/taskmon.conf": FormatUnknown,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestParseFileDetectsFormatWithoutExtension(t *testing.T) {
	p := newTestParser(t)

	cfg, err := p.ParseFile(writeFile(t, "taskmonrc", testLuaConfig))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if cfg.HistorySize != 30 {
		t.Errorf("HistorySize = %d, want 30", cfg.HistorySize)
	}
}

func TestParseFileMissing(t *testing.T) {
	p := newTestParser(t)
	_, err := p.ParseFile(filepath.Join(t.TempDir(), "missing.lua"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ParseFile(missing) = %v, want ErrNotExist", err)
	}
}

func TestParseFromFS(t *testing.T) {
	p := newTestParser(t)
	fsys := fstest.MapFS{
		"conf/taskmon.yml": {Data: []byte("history_size: 12\n")},
	}

	cfg, err := p.ParseFromFS(fsys, "conf/taskmon.yml")
	if err != nil {
		t.Fatalf("ParseFromFS failed: %v", err)
	}
	if cfg.HistorySize != 12 {
		t.Errorf("HistorySize = %d, want 12", cfg.HistorySize)
	}
	if _, err := p.ParseFromFS(fsys, "nope.yml"); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestParseReader(t *testing.T) {
	p := newTestParser(t)

	cfg, err := p.ParseReader(strings.NewReader("taskmon.config = { dead_limit = 4 }"), "lua")
	if err != nil {
		t.Fatalf("ParseReader(lua) failed: %v", err)
	}
	if cfg.DeadLimit != 4 {
		t.Errorf("DeadLimit = %d, want 4", cfg.DeadLimit)
	}

	if _, err := p.ParseReader(strings.NewReader(""), "ini"); err == nil {
		t.Error("expected error for an unknown format")
	}
}

func TestParseYAMLErrors(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed", "history_size: [1,", "YAML"},
		{"not a mapping", "- a\n- b\n", "YAML"},
		{"unknown option", "histroy_size: 5", "unknown option"},
		{"wrong type", "listen: 9273", "listen"},
		{"bad duration", "update_interval: fast", "update_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseFormat([]byte(tt.content), FormatYAML)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("TASKMON_TEST_ROOT", "/host")
	p := newTestParser(t)

	cfg, err := p.ParseFormat([]byte("proc_root: ${TASKMON_TEST_ROOT}/proc\nlisten: ${TASKMON_TEST_LISTEN:-:8080}\n"), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ProcRoot != "/host/proc" {
		t.Errorf("ProcRoot = %q", cfg.ProcRoot)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, "taskmon.yaml", testYAMLConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HistorySize != 30 {
		t.Errorf("HistorySize = %d", cfg.HistorySize)
	}

	_, err = Load(writeFile(t, "bad.yaml", "update_interval: 1ms\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load(invalid) = %v, want ErrInvalidConfig", err)
	}
}
