package taskmon

import "time"

// Status is a point-in-time view of a Monitor's sampling loop.
//
// UpdateCount and StartTime reset on every Start; Cycle is the counter
// carried by the latest snapshot and restarts with the loader.
type Status struct {
	Running      bool
	StartTime    time.Time
	UpdateCount  uint64
	Cycle        uint64
	Loader       string        // "linux" or "windows"
	Interval     time.Duration // delay between two sampling cycles
	LastError    error         // latest loader, consumer or reload failure
	ConfigSource string        // file path, "embedded:<path>", "reader" or "config"
}

// ErrorHandler receives failed cycles and reloads. Handlers run on their own
// goroutine and must not call Stop synchronously.
type ErrorHandler func(err error)

// EventHandler receives lifecycle transitions of the sampling loop. Handlers
// run on their own goroutine.
type EventHandler func(event Event)

// Event is one lifecycle transition.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string
}

// EventType identifies a lifecycle transition.
type EventType int

const (
	// EventStarted follows the first published snapshot of a run.
	EventStarted EventType = iota
	// EventStopped fires once per run, whether Stop was called, the consumer
	// terminated or the loader failed.
	EventStopped
	EventRestarted
	// EventConfigReloaded fires after the new settings are in effect.
	EventConfigReloaded
	// EventError accompanies every call of the error handler.
	EventError
)

var eventNames = [...]string{
	EventStarted:        "started",
	EventStopped:        "stopped",
	EventRestarted:      "restarted",
	EventConfigReloaded: "config_reloaded",
	EventError:          "error",
}

func (e EventType) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

// MarshalText implements encoding.TextMarshaler so events encode by name.
func (e EventType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}
