package features

import (
	"context"
	"fmt"
)

// StartupTask is the unit of work a feature registers to take part in the
// runtime lifecycle. Start and Stop may block; they receive the runtime
// session, which they may use but do not own. Errors are reported to the
// orchestrator, which decides what happens next.
type StartupTask interface {
	Start(ctx context.Context, session Session) error
	Stop(ctx context.Context, session Session) error
}

// StartupTaskFuncs adapts a pair of functions to StartupTask. A nil function
// is a no-op.
type StartupTaskFuncs struct {
	OnStart func(ctx context.Context, session Session) error
	OnStop  func(ctx context.Context, session Session) error
}

// Start calls OnStart.
func (f StartupTaskFuncs) Start(ctx context.Context, session Session) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx, session)
}

// Stop calls OnStop.
func (f StartupTaskFuncs) Stop(ctx context.Context, session Session) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx, session)
}

// TaskID is the position of a task in registration order.
type TaskID int

// TaskOption configures a task at registration time.
type TaskOption func(*taskEntry)

// WithDispose attaches the function that releases the resources a task owns.
// It is called exactly once after the task's Stop, whether Stop failed or not.
func WithDispose(dispose func() error) TaskOption {
	return func(e *taskEntry) {
		e.dispose = dispose
	}
}

// WithTaskName names the task in logs, events and errors. It defaults to
// the task's Go type.
func WithTaskName(name string) TaskOption {
	return func(e *taskEntry) {
		if name != "" {
			e.name = name
		}
	}
}

type taskEntry struct {
	id      TaskID
	feature string
	name    string
	task    StartupTask
	dispose func() error
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	ID         TaskID `json:"id"`
	Feature    string `json:"feature"`
	Name       string `json:"name"`
	Disposable bool   `json:"disposable"`
}

func (e *taskEntry) info() TaskInfo {
	return TaskInfo{ID: e.id, Feature: e.feature, Name: e.name, Disposable: e.dispose != nil}
}

// TaskList is the ordered, immutable result of a setup pass.
type TaskList struct {
	entries []*taskEntry
}

// Len returns the number of tasks.
func (l *TaskList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Tasks describes the tasks in registration order.
func (l *TaskList) Tasks() []TaskInfo {
	if l == nil {
		return nil
	}
	out := make([]TaskInfo, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.info()
	}
	return out
}

func defaultTaskName(task StartupTask) string {
	return fmt.Sprintf("%T", task)
}
