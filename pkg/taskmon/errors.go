package taskmon

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the instance is running.
	ErrAlreadyRunning = errors.New("taskmon: instance already running")
	// ErrNotRunning is returned by operations that need a running instance.
	ErrNotRunning = errors.New("taskmon: instance not running")
)
