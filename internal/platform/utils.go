package platform

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// parseUint64 parses a string to uint64, returning 0 on error.
func parseUint64(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

// readStringFile reads a string value from a file.
// Returns the trimmed string and true if successful, empty string and false otherwise.
func readStringFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	return strings.TrimSpace(string(data)), true
}

// outageLog reports aggregate sources that fail to load. A source that stays
// broken is warned about once; later failures go to debug until it recovers.
type outageLog struct {
	logger *slog.Logger
	down   map[string]struct{}
}

func newOutageLog(logger *slog.Logger) *outageLog {
	return &outageLog{logger: logger, down: make(map[string]struct{})}
}

func (o *outageLog) failed(source string, err error) {
	if _, ok := o.down[source]; ok {
		o.logger.Debug("aggregate unavailable", "source", source, "error", err)
		return
	}
	o.down[source] = struct{}{}
	o.logger.Warn("aggregate unavailable, keeping previous value", "source", source, "error", err)
}

func (o *outageLog) recovered(source string) {
	if _, ok := o.down[source]; ok {
		delete(o.down, source)
		o.logger.Info("aggregate available again", "source", source)
	}
}
