// Package lifecycle holds process-wide readiness and shutdown flags read by the health
// handler.
package lifecycle

import "sync/atomic"

// Health statuses derived from the flags.
const (
	StatusStarting     = "starting"
	StatusShuttingDown = "shutting-down"
	StatusRunning      = "running"
)

var (
	ready        atomic.Bool
	shuttingDown atomic.Bool
)

// SetReady marks the process ready to serve. Call after startup warming completes or the
// configured ready delay elapses.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports whether startup has completed.
func IsReady() bool {
	return ready.Load()
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Status folds both flags into one value. Shutdown wins over readiness.
func Status() string {
	switch {
	case IsShuttingDown():
		return StatusShuttingDown
	case !IsReady():
		return StatusStarting
	default:
		return StatusRunning
	}
}

// Reset clears both flags. Used by tests.
func Reset() {
	ready.Store(false)
	shuttingDown.Store(false)
}
