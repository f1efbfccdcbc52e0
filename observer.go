package features

import (
	"context"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event types emitted while features are resolved and their startup tasks
// are driven through the lifecycle.
const (
	EventTypeFeatureActivated   = "com.busfeatures.feature.activated"
	EventTypeFeatureDeactivated = "com.busfeatures.feature.deactivated"

	EventTypeTaskStarted     = "com.busfeatures.task.started"
	EventTypeTaskStartFailed = "com.busfeatures.task.start_failed"
	EventTypeTaskStopped     = "com.busfeatures.task.stopped"
	EventTypeTaskStopFailed  = "com.busfeatures.task.stop_failed"
	EventTypeTaskDisposed    = "com.busfeatures.task.disposed"

	EventTypeOrchestratorStarted     = "com.busfeatures.orchestrator.started"
	EventTypeOrchestratorStartFailed = "com.busfeatures.orchestrator.start_failed"
	EventTypeOrchestratorStopped     = "com.busfeatures.orchestrator.stopped"
)

const eventSource = "busfeatures"

// Observer is notified of lifecycle events. Observers are called
// synchronously, in registration order, on the goroutine driving the
// lifecycle; they should return quickly. Their errors are logged and never
// change the lifecycle outcome.
type Observer interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// Subject is implemented by values that emit lifecycle events.
type Subject interface {
	// RegisterObserver subscribes observer to the given event types, or to
	// every event when none are given.
	RegisterObserver(observer Observer, eventTypes ...string) error
	// UnregisterObserver is idempotent.
	UnregisterObserver(observer Observer) error
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// FunctionalObserver adapts a function to Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer calling handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent calls the handler.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID returns the id given to NewFunctionalObserver.
func (f *FunctionalObserver) ObserverID() string { return f.id }

// NewCloudEvent builds an event with a time-ordered id.
func NewCloudEvent(eventType, source string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// observers is the Subject implementation shared by Orchestrator and Activator.
type observers struct {
	mu     sync.RWMutex
	list   []*observerRegistration
	logger Logger
}

func (o *observers) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrNilObserver
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	reg := &observerRegistration{observer: observer, eventTypes: types, registeredAt: time.Now()}

	if i := o.index(observer.ObserverID()); i >= 0 {
		o.list[i] = reg
	} else {
		o.list = append(o.list, reg)
	}
	o.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

func (o *observers) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrNilObserver
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if i := o.index(observer.ObserverID()); i >= 0 {
		o.list = slices.Delete(o.list, i, i+1)
		o.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

func (o *observers) GetObservers() []ObserverInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(o.list))
	for _, reg := range o.list {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		slices.Sort(types)
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return info
}

func (o *observers) index(id string) int {
	return slices.IndexFunc(o.list, func(reg *observerRegistration) bool {
		return reg.observer.ObserverID() == id
	})
}

// emit builds an event and notifies every interested observer.
func (o *observers) emit(ctx context.Context, eventType string, data any) {
	o.mu.RLock()
	empty := len(o.list) == 0
	o.mu.RUnlock()
	if empty {
		return
	}
	o.dispatch(ctx, NewCloudEvent(eventType, eventSource, data))
}

// dispatch delivers an existing event to every interested observer.
func (o *observers) dispatch(ctx context.Context, event cloudevents.Event) {
	o.mu.RLock()
	targets := slices.Clone(o.list)
	o.mu.RUnlock()

	for _, reg := range targets {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		o.notify(ctx, reg.observer, event)
	}
}

func (o *observers) notify(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()
	if err := observer.OnEvent(ctx, event); err != nil {
		o.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// taskEventData is the payload of task events.
type taskEventData struct {
	Task    TaskID `json:"task"`
	Feature string `json:"feature"`
	Name    string `json:"name"`
	Error   string `json:"error,omitempty"`
}

func newTaskEventData(e *taskEntry, err error) taskEventData {
	data := taskEventData{Task: e.id, Feature: e.feature, Name: e.name}
	if err != nil {
		data.Error = err.Error()
	}
	return data
}
