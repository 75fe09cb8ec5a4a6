// Package launcher starts a parsed deployment graph, gates dependent
// services on their declared conditions, probes health, and applies restart
// policies.
package launcher

import (
	"time"

	"github.com/go-go-golems/stackctl/pkg/compose"
)

// State is a service instance's lifecycle state.
type State string

const (
	// StatePending: declared but not yet started; waiting on dependencies.
	StatePending State = "pending"
	// StateStarting: dependencies satisfied, instance being launched.
	StateStarting State = "starting"
	// StateStarted: process running; no health verdict yet (or no healthcheck).
	StateStarted State = "started"
	// StateHealthy: probe succeeded the configured number of times in a row.
	StateHealthy State = "healthy"
	// StateUnhealthy: probe failed max_retries times in a row.
	StateUnhealthy State = "unhealthy"
	// StateExited: process completed with exit code 0.
	StateExited State = "exited"
	// StateCrashed: process exited non-zero or on a signal.
	StateCrashed State = "crashed"
	// StateStopped: stopped by the operator; never restarted.
	StateStopped State = "stopped"
	// StateFailed: build failure or dependency timeout; terminal for the run.
	StateFailed State = "failed"
)

// Event is one service state transition, published on the launcher bus.
type Event struct {
	Service  string    `json:"service"`
	State    State     `json:"state"`
	Reason   string    `json:"reason,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	At       time.Time `json:"at"`
}

// satisfies reports whether a dependency in state st meets cond.
func satisfies(cond compose.Condition, st State) bool {
	switch cond {
	case compose.ConditionStarted:
		// A cleanly completed one-shot has been started too.
		return st == StateStarted || st == StateHealthy || st == StateUnhealthy || st == StateExited
	case compose.ConditionHealthy:
		return st == StateHealthy
	case compose.ConditionCompletedSuccessfully:
		return st == StateExited
	}
	return false
}
