// Package lifecycle defines the states a startup task orchestrator moves through
// and the transitions allowed between them.
package lifecycle

import "fmt"

// State is a point in the orchestrator lifecycle.
type State int

const (
	// StateCreated is the initial state: tasks are registered but never started.
	StateCreated State = iota
	// StateStarting means a start pass is in progress.
	StateStarting
	// StateStarted means every task started successfully.
	StateStarted
	// StateStopping means a stop pass is in progress.
	StateStopping
	// StateStopped means the last stop pass finished, with or without failures.
	StateStopped
	// StateStartFailed is terminal: a task failed to start and the pass was aborted.
	StateStartFailed
)

var stateNames = [...]string{
	StateCreated:     "created",
	StateStarting:    "starting",
	StateStarted:     "started",
	StateStopping:    "stopping",
	StateStopped:     "stopped",
	StateStartFailed: "start_failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateStartFailed
}

// transitions lists, for every state, the states it may move to.
var transitions = map[State][]State{
	StateCreated:     {StateStarting},
	StateStarting:    {StateStarted, StateStartFailed},
	StateStarted:     {StateStopping},
	StateStopping:    {StateStopped},
	StateStopped:     {StateStarting},
	StateStartFailed: nil,
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
