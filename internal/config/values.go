package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Both parsers reduce a document to a map of option names to plain Go
// values (string, bool, int64, float64) and apply it through this table.
var options = map[string]func(cfg *Config, v any) error{
	"update_interval": func(cfg *Config, v any) (err error) {
		cfg.UpdateInterval, err = durationValue(v)
		return err
	},
	"history_size": func(cfg *Config, v any) (err error) {
		cfg.HistorySize, err = intValue(v)
		return err
	},
	"proc_root": func(cfg *Config, v any) (err error) {
		cfg.ProcRoot, err = stringValue(v)
		return err
	},
	"passwd_path": func(cfg *Config, v any) (err error) {
		cfg.PasswdPath, err = stringValue(v)
		return err
	},
	"user_cache_ttl": func(cfg *Config, v any) (err error) {
		cfg.UserCacheTTL, err = durationValue(v)
		return err
	},
	"dead_limit": func(cfg *Config, v any) (err error) {
		cfg.DeadLimit, err = intValue(v)
		return err
	},
	"log_level": func(cfg *Config, v any) (err error) {
		cfg.LogLevel, err = stringValue(v)
		return err
	},
	"log_format": func(cfg *Config, v any) (err error) {
		cfg.LogFormat, err = stringValue(v)
		return err
	},
	"listen": func(cfg *Config, v any) (err error) {
		cfg.Listen, err = stringValue(v)
		return err
	},
}

// applyOptions starts from the defaults and applies raw in key order so
// that error messages are deterministic.
func applyOptions(raw map[string]any) (*Config, error) {
	cfg := DefaultConfig()

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		set, ok := options[strings.ToLower(key)]
		if !ok {
			return nil, fmt.Errorf("unknown option %q", key)
		}
		if err := set(&cfg, raw[key]); err != nil {
			return nil, fmt.Errorf("option %s: %w", key, err)
		}
	}
	return &cfg, nil
}

// durationValue accepts a number of seconds or a Go duration string.
func durationValue(v any) (time.Duration, error) {
	switch x := v.(type) {
	case int:
		return time.Duration(x) * time.Second, nil
	case int64:
		return time.Duration(x) * time.Second, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("invalid duration %v", x)
		}
		return time.Duration(x * float64(time.Second)), nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", x, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("expected seconds or a duration string, got %T", v)
	}
}

func intValue(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("expected an integer, got %v", x)
		}
		return int(x), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func stringValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("expected a string, got %T", v)
}
