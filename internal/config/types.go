// Package config provides configuration data structures and parsers for
// go-taskmon. Configuration can be written as a Lua script or a YAML
// document; both produce the same Config.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the complete go-taskmon configuration.
type Config struct {
	// UpdateInterval is the delay between sampling cycles.
	UpdateInterval time.Duration
	// HistorySize is the number of samples kept in every series.
	HistorySize int
	// ProcRoot is the procfs mount point read on Linux.
	ProcRoot string
	// PasswdPath is the account database used to name Linux users.
	PasswdPath string
	// UserCacheTTL bounds how long a resolved user name is trusted.
	UserCacheTTL time.Duration
	// DeadLimit caps the number of dead processes kept. Zero keeps all.
	DeadLimit int
	// LogLevel is one of debug, info, warn or error.
	LogLevel string
	// LogFormat is text or json.
	LogFormat string
	// Listen is the address served by "taskmon serve".
	Listen string
}

// Format identifies a configuration file syntax.
type Format int

const (
	// FormatUnknown means the format has to be detected from the content.
	FormatUnknown Format = iota
	// FormatLua is a Lua script assigning the taskmon.config table.
	FormatLua
	// FormatYAML is a YAML document with the same keys.
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatLua:
		return "lua"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// ParseFormat converts a format name into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lua":
		return FormatLua, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format: %s (expected 'lua' or 'yaml')", s)
	}
}

// SlogLevel converts LogLevel into a slog level. Unknown names map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
