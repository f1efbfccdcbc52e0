package features

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/busfeatures/lifecycle"
	"github.com/GoCodeAlone/busfeatures/registry"
)

// ActivatorConfig holds the collaborators of an Activator. Zero values are
// replaced with defaults.
type ActivatorConfig struct {
	Logger   Logger
	Settings *Settings
	Services *registry.Registry
	Metrics  *Metrics
}

// Activator runs the whole feature pipeline for a host: it owns the feature
// registry, resolves and sets up features, and drives their startup tasks.
// Lifecycle events from the orchestrator are forwarded to the activator's
// observers, together with feature activation events.
type Activator struct {
	observers

	registry *Registry
	settings *Settings
	services *registry.Registry
	logger   Logger
	metrics  *Metrics

	plan         *ActivationPlan
	tasks        *TaskList
	orchestrator *Orchestrator
}

// NewActivator creates an activator with an empty feature registry.
func NewActivator(cfg ActivatorConfig) *Activator {
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	if cfg.Settings == nil {
		cfg.Settings = NewSettings()
	}
	if cfg.Services == nil {
		cfg.Services = registry.New()
	}

	a := &Activator{
		settings: cfg.Settings,
		services: cfg.Services,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		registry: NewRegistry(WithLogger(cfg.Logger), WithSettings(cfg.Settings)),
	}
	a.observers.logger = cfg.Logger
	return a
}

// Add registers a feature.
func (a *Activator) Add(d Descriptor) error { return a.registry.Register(d) }

// SetActivation explicitly enables or disables a registered feature.
func (a *Activator) SetActivation(name string, enabled bool) error {
	return a.registry.SetActivation(name, enabled)
}

// Registry returns the feature registry.
func (a *Activator) Registry() *Registry { return a.registry }

// Settings returns the settings shared by setup callbacks.
func (a *Activator) Settings() *Settings { return a.settings }

// Services returns the construction service handed to setup callbacks.
func (a *Activator) Services() *registry.Registry { return a.services }

// Plan returns the activation plan, or nil before SetupFeatures.
func (a *Activator) Plan() *ActivationPlan { return a.plan }

// Tasks returns the startup tasks, or nil before SetupFeatures succeeds.
func (a *Activator) Tasks() *TaskList { return a.tasks }

// State returns the orchestrator state; created until SetupFeatures succeeds.
func (a *Activator) State() lifecycle.State {
	if a.orchestrator == nil {
		return lifecycle.StateCreated
	}
	return a.orchestrator.State()
}

// SetupFeatures resolves the registry and runs the setup of every active
// feature. Settings are frozen once setup completes.
func (a *Activator) SetupFeatures(ctx context.Context) error {
	plan, err := a.registry.Resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve features: %w", err)
	}
	a.plan = plan
	a.metrics.setActiveFeatures(plan.Len())

	for _, diag := range plan.Diagnostics() {
		eventType := EventTypeFeatureDeactivated
		if diag.Active {
			eventType = EventTypeFeatureActivated
		}
		a.emit(ctx, eventType, diag)
	}

	cc := NewConfigurationContext(a.settings, a.services, a.logger)
	tasks, err := RunSetup(ctx, plan, cc)
	if err != nil {
		return err
	}
	a.settings.Freeze()

	a.tasks = tasks
	a.orchestrator = NewOrchestrator(tasks, WithOrchestratorLogger(a.logger), WithMetrics(a.metrics))
	forward := NewFunctionalObserver("activator", func(ctx context.Context, event cloudevents.Event) error {
		a.dispatch(ctx, event)
		return nil
	})
	return a.orchestrator.RegisterObserver(forward)
}

// StartFeatures starts the startup tasks. See Orchestrator.Start.
func (a *Activator) StartFeatures(ctx context.Context, session Session) error {
	if a.orchestrator == nil {
		return fmt.Errorf("%w: features have not been set up", ErrInvalidLifecycleTransition)
	}
	return a.orchestrator.Start(ctx, session)
}

// StopFeatures stops and disposes the startup tasks. See Orchestrator.Stop.
func (a *Activator) StopFeatures(ctx context.Context, session Session) error {
	if a.orchestrator == nil {
		return fmt.Errorf("%w: features have not been set up", ErrInvalidLifecycleTransition)
	}
	return a.orchestrator.Stop(ctx, session)
}
