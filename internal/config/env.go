package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${NAME}, ${NAME:-default} and $NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// ExpandEnv replaces environment references in s. ${NAME:-default} uses the
// default when NAME is unset or empty; unset names without a default expand
// to the empty string.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if groups[2] != "" {
			return os.Getenv(groups[2])
		}
		name, fallback, hasDefault := strings.Cut(groups[1], ":-")
		if v := os.Getenv(name); v != "" || !hasDefault {
			return v
		}
		return fallback
	})
}

// ExpandEnvConfig expands environment references in every string option.
func ExpandEnvConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	for _, field := range []*string{&cfg.ProcRoot, &cfg.PasswdPath, &cfg.LogLevel, &cfg.LogFormat, &cfg.Listen} {
		*field = ExpandEnv(*field)
	}
}
