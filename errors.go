package features

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/busfeatures/lifecycle"
)

// ErrInvalidLifecycleTransition is returned when Start or Stop is called in a
// state that does not allow it, for example Stop before Start or Start twice.
var ErrInvalidLifecycleTransition = lifecycle.ErrInvalidTransition

// Configuration and usage errors
var (
	ErrDuplicateFeature  = errors.New("feature already registered")
	ErrUnknownFeature    = errors.New("unknown feature")
	ErrInvalidDescriptor = errors.New("invalid feature descriptor")
	ErrCyclicDependency  = errors.New("cyclic feature dependency detected")
	ErrAlreadyResolved   = errors.New("feature registry already resolved")
	ErrNilStartupTask    = errors.New("startup task is nil")
	ErrNilPlan           = errors.New("activation plan is nil")
	ErrNilObserver       = errors.New("observer is nil")

	// Settings errors
	ErrSettingNotFound = errors.New("setting not found")
	ErrSettingsFrozen  = errors.New("settings are frozen")
	ErrSettingType     = errors.New("setting has unexpected type")

	// Runtime failures
	ErrTaskPanicked = errors.New("startup task panicked")
)

// SetupError reports a feature setup callback that failed. The remaining
// setup callbacks were not run.
type SetupError struct {
	Feature string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup of feature '%s' failed: %v", e.Feature, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// StartFailure wraps the first startup task error of a start pass. Tasks
// registered after the failing one were not started and tasks before it were
// left running.
type StartFailure struct {
	Task    TaskID
	Feature string
	Name    string
	Err     error
}

func (e *StartFailure) Error() string {
	return fmt.Sprintf("startup task %d (%s) of feature '%s' failed to start: %v", e.Task, e.Name, e.Feature, e.Err)
}

func (e *StartFailure) Unwrap() error { return e.Err }

// StopPhase tells which step of shutting a task down failed.
type StopPhase string

const (
	PhaseStop    StopPhase = "stop"
	PhaseDispose StopPhase = "dispose"
)

// StopFailure wraps one error captured during a stop pass.
type StopFailure struct {
	Task    TaskID
	Feature string
	Name    string
	Phase   StopPhase
	Err     error
}

func (e *StopFailure) Error() string {
	return fmt.Sprintf("startup task %d (%s) of feature '%s' failed to %s: %v", e.Task, e.Name, e.Feature, e.Phase, e.Err)
}

func (e *StopFailure) Unwrap() error { return e.Err }

// AggregateStopFailure is returned when more than one failure was captured
// during a stop pass. Failures are in the order they occurred.
type AggregateStopFailure struct {
	Failures []*StopFailure
}

func (e *AggregateStopFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d startup tasks failed to stop cleanly", len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes every captured failure to errors.Is and errors.As.
func (e *AggregateStopFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// stopResult turns the captured failures of a stop pass into the error
// returned to the caller: nil, a single StopFailure, or an aggregate.
func stopResult(failures []*StopFailure) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	default:
		return &AggregateStopFailure{Failures: failures}
	}
}
