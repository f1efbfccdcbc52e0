package features

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

var (
	errStartFailed   = errors.New("start failed")
	errStopFailed    = errors.New("stop failed")
	errDisposeFailed = errors.New("dispose failed")
)

// callJournal records lifecycle calls across tasks in the order they happen.
type callJournal struct {
	mu    sync.Mutex
	calls []string
}

func (j *callJournal) add(call string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

func (j *callJournal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.calls))
	copy(out, j.calls)
	return out
}

// recordingTask is a startup task that writes to a journal and can be told
// to fail on start or stop.
type recordingTask struct {
	name        string
	journal     *callJournal
	failOnStart bool
	failOnStop  bool
	panicOnStop bool
	failDispose bool

	started    bool
	stopped    bool
	disposed   int
	sawSession Session
}

func newRecordingTask(name string, journal *callJournal) *recordingTask {
	return &recordingTask{name: name, journal: journal}
}

func (r *recordingTask) Start(ctx context.Context, session Session) error {
	r.journal.add(r.name + ".start")
	r.sawSession = session
	if r.failOnStart {
		return errStartFailed
	}
	r.started = true
	return nil
}

func (r *recordingTask) Stop(ctx context.Context, session Session) error {
	r.journal.add(r.name + ".stop")
	if r.panicOnStop {
		panic("stop exploded")
	}
	if r.failOnStop {
		return errStopFailed
	}
	r.stopped = true
	return nil
}

func (r *recordingTask) Dispose() error {
	r.journal.add(r.name + ".dispose")
	r.disposed++
	if r.failDispose {
		return errDisposeFailed
	}
	return nil
}

// taskListOf builds a task list as a setup pass would, one feature per task.
// Every task registers its Dispose method.
func taskListOf(tasks ...*recordingTask) *TaskList {
	list := &TaskList{}
	for i, task := range tasks {
		list.entries = append(list.entries, &taskEntry{
			id:      TaskID(i),
			feature: "feature-" + task.name,
			name:    task.name,
			task:    task,
			dispose: task.Dispose,
		})
	}
	return list
}

// nonDisposable strips the dispose function from every entry.
func nonDisposable(list *TaskList) *TaskList {
	for _, e := range list.entries {
		e.dispose = nil
	}
	return list
}

type fakeSession struct{}

func (fakeSession) Publish(string, ...*message.Message) error { return nil }
