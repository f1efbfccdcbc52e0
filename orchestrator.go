package features

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/busfeatures/lifecycle"
)

// Orchestrator drives the startup tasks of a TaskList through the runtime
// lifecycle:
//
//	created -> starting -> started | start_failed
//	started -> stopping -> stopped -> starting ...
//
// Tasks are started and stopped one at a time, in registration order for
// both passes. A failed start aborts the pass and leaves already started
// tasks running; start_failed is terminal. A stop pass always visits every
// task, then disposes every task that registered a disposal function, and
// only then reports the failures it collected.
//
// The orchestrator adds no timeout or cancellation of its own: the context is
// passed to tasks as given and each call is awaited until it returns.
type Orchestrator struct {
	observers

	tasks   *TaskList
	machine *lifecycle.Machine
	logger  Logger
	metrics *Metrics
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(l Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
			o.observers.logger = l
		}
	}
}

// WithMetrics records task timings and failures in m.
func WithMetrics(m *Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an orchestrator in the created state. A nil task
// list behaves as an empty one.
func NewOrchestrator(tasks *TaskList, opts ...OrchestratorOption) *Orchestrator {
	if tasks == nil {
		tasks = &TaskList{}
	}
	o := &Orchestrator{
		tasks:   tasks,
		machine: lifecycle.NewMachine(),
		logger:  NopLogger(),
	}
	o.observers.logger = o.logger
	for _, opt := range opts {
		opt(o)
	}
	o.metrics.setState(o.machine.State())
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() lifecycle.State { return o.machine.State() }

// History returns the lifecycle transitions so far.
func (o *Orchestrator) History() []lifecycle.Transition { return o.machine.History() }

// Tasks describes the orchestrated tasks in registration order.
func (o *Orchestrator) Tasks() []TaskInfo { return o.tasks.Tasks() }

// Start starts every task in registration order. Each Start call returns
// before the next one is made. The first failure stops the pass: later tasks
// are not started, earlier ones are not stopped, the orchestrator becomes
// start_failed and the failure is returned as a *StartFailure wrapping the
// task's error.
func (o *Orchestrator) Start(ctx context.Context, session Session) error {
	if err := o.transition(lifecycle.StateStarting); err != nil {
		return err
	}
	o.logger.Info("Starting startup tasks", "count", o.tasks.Len())

	for _, e := range o.tasks.entries {
		o.logger.Debug("Starting startup task", "feature", e.feature, "task", e.name, "id", e.id)

		began := time.Now()
		err := invoke(func() error { return e.task.Start(ctx, session) })
		o.metrics.observeStart(e.feature, time.Since(began))

		if err != nil {
			failure := &StartFailure{Task: e.id, Feature: e.feature, Name: e.name, Err: err}
			o.metrics.recordFailure(e.feature, "start")
			o.logger.Error("Startup task failed to start, aborting start", "feature", e.feature, "task", e.name,
				"id", e.id, "error", err)
			o.emit(ctx, EventTypeTaskStartFailed, newTaskEventData(e, err))

			o.mustTransition(lifecycle.StateStartFailed)
			o.emit(ctx, EventTypeOrchestratorStartFailed, newTaskEventData(e, err))
			return failure
		}
		o.emit(ctx, EventTypeTaskStarted, newTaskEventData(e, nil))
	}

	o.mustTransition(lifecycle.StateStarted)
	o.logger.Info("Startup tasks started", "count", o.tasks.Len())
	o.emit(ctx, EventTypeOrchestratorStarted, map[string]any{"tasks": o.tasks.Len()})
	return nil
}

// Stop stops every task in registration order, the same order Start used.
// A failing Stop does not end the pass. Once every task has been stopped,
// each task registered with a disposal function is disposed exactly once,
// whatever its Stop returned. Failures are then returned: nil when there were
// none, a *StopFailure for exactly one, an *AggregateStopFailure otherwise.
func (o *Orchestrator) Stop(ctx context.Context, session Session) error {
	if err := o.transition(lifecycle.StateStopping); err != nil {
		return err
	}
	o.logger.Info("Stopping startup tasks", "count", o.tasks.Len())

	var failures []*StopFailure
	for _, e := range o.tasks.entries {
		o.logger.Debug("Stopping startup task", "feature", e.feature, "task", e.name, "id", e.id)

		began := time.Now()
		err := invoke(func() error { return e.task.Stop(ctx, session) })
		o.metrics.observeStop(e.feature, time.Since(began))

		if err != nil {
			failures = append(failures, o.stopFailed(ctx, e, PhaseStop, err))
			continue
		}
		o.emit(ctx, EventTypeTaskStopped, newTaskEventData(e, nil))
	}

	for _, e := range o.tasks.entries {
		if e.dispose == nil {
			continue
		}
		if err := invoke(e.dispose); err != nil {
			failures = append(failures, o.stopFailed(ctx, e, PhaseDispose, err))
			continue
		}
		o.logger.Debug("Disposed startup task", "feature", e.feature, "task", e.name, "id", e.id)
		o.emit(ctx, EventTypeTaskDisposed, newTaskEventData(e, nil))
	}

	o.mustTransition(lifecycle.StateStopped)
	result := stopResult(failures)
	if result != nil {
		o.logger.Warn("Startup tasks stopped with failures", "count", o.tasks.Len(), "failures", len(failures))
	} else {
		o.logger.Info("Startup tasks stopped", "count", o.tasks.Len())
	}
	o.emit(ctx, EventTypeOrchestratorStopped, map[string]any{"tasks": o.tasks.Len(), "failures": len(failures)})
	return result
}

func (o *Orchestrator) stopFailed(ctx context.Context, e *taskEntry, phase StopPhase, err error) *StopFailure {
	o.metrics.recordFailure(e.feature, string(phase))
	o.logger.Error("Startup task failed to "+string(phase)+", continuing", "feature", e.feature, "task", e.name,
		"id", e.id, "error", err)
	o.emit(ctx, EventTypeTaskStopFailed, newTaskEventData(e, err))
	return &StopFailure{Task: e.id, Feature: e.feature, Name: e.name, Phase: phase, Err: err}
}

func (o *Orchestrator) transition(to lifecycle.State) error {
	if err := o.machine.Transition(to); err != nil {
		o.logger.Error("Rejected lifecycle transition", "error", err)
		return err
	}
	o.metrics.setState(to)
	return nil
}

// mustTransition is used for transitions the orchestrator itself guarantees
// to be valid from the state it just entered.
func (o *Orchestrator) mustTransition(to lifecycle.State) {
	if err := o.transition(to); err != nil {
		panic(fmt.Sprintf("busfeatures: %v", err))
	}
}

// invoke calls fn, converting a panic into an error wrapping ErrTaskPanicked.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return fn()
}
