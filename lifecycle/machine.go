package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition is returned when a transition is not in the transition table.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Transition records one accepted state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Machine holds the current State and enforces the transition table.
// Reads are safe from any goroutine; transitions are expected to be driven
// by a single orchestrating goroutine.
type Machine struct {
	mu      sync.RWMutex
	state   State
	history []Transition
	now     func() time.Time
}

// NewMachine returns a machine in StateCreated.
func NewMachine() *Machine {
	return &Machine{state: StateCreated, now: time.Now}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves the machine to the given state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.history = append(m.history, Transition{From: m.state, To: to, At: m.now()})
	m.state = to
	return nil
}

// History returns a copy of the accepted transitions in order.
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
