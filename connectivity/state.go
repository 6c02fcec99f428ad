// Package connectivity observes network reachability and publishes
// edge-triggered transitions between reachable and unreachable.
//
// A Monitor owns the current State. Readers query it synchronously with
// Current and learn about changes through OnChange listeners or Subscribe
// channels. State is fed either by a polling Probe (Run) or pushed by a
// platform bridge (Update).
package connectivity

import "time"

// State is the tri-state connectivity as observed by a Monitor.
type State int

const (
	// Disconnected means no usable network link is up.
	Disconnected State = iota
	// ConnectedNoInternet means a link is up but the internet cannot be reached.
	ConnectedNoInternet
	// Connected means the internet is reachable.
	Connected
)

// String returns the readable name of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedNoInternet:
		return "connected-without-internet"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Reachable reports whether requests can be expected to reach a server.
func (s State) Reachable() bool {
	return s == Connected
}

// Status is a point-in-time view of the monitor. It may be stale between checks.
type Status struct {
	State     State
	Reachable bool
	CheckedAt time.Time
}

// Transition is published whenever reachability flips.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Online reports whether the transition went from unreachable to reachable.
func (t Transition) Online() bool {
	return !t.From.Reachable() && t.To.Reachable()
}
