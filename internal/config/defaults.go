package config

import "time"

// Default values for configuration options.
const (
	// DefaultUpdateInterval is the default time between samples (1 second).
	DefaultUpdateInterval = time.Second
	// DefaultHistorySize is the default number of samples per series.
	DefaultHistorySize = 60
	// DefaultProcRoot is the default procfs mount point.
	DefaultProcRoot = "/proc"
	// DefaultPasswdPath is the default account database.
	DefaultPasswdPath = "/etc/passwd"
	// DefaultUserCacheTTL is how long a user name stays cached.
	DefaultUserCacheTTL = 5 * time.Minute
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"
	// DefaultListen is the default address of the HTTP API.
	DefaultListen = ":9273"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: DefaultUpdateInterval,
		HistorySize:    DefaultHistorySize,
		ProcRoot:       DefaultProcRoot,
		PasswdPath:     DefaultPasswdPath,
		UserCacheTTL:   DefaultUserCacheTTL,
		DeadLimit:      0,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		Listen:         DefaultListen,
	}
}
