package features

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/busfeatures/registry"
)

// ConfigurationContext is handed to feature setup callbacks. It exposes the
// shared settings and services, answers activation queries, and collects
// startup task registrations.
type ConfigurationContext struct {
	ctx      context.Context
	settings *Settings
	services *registry.Registry
	logger   Logger

	// set for the duration of one setup callback
	feature string
	plan    *ActivationPlan
	tasks   *[]*taskEntry
	err     error
}

// NewConfigurationContext creates the context shared by every setup callback
// of one setup pass. Nil arguments are replaced with empty values.
func NewConfigurationContext(settings *Settings, services *registry.Registry, logger Logger) *ConfigurationContext {
	if settings == nil {
		settings = NewSettings()
	}
	if services == nil {
		services = registry.New()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &ConfigurationContext{
		ctx:      context.Background(),
		settings: settings,
		services: services,
		logger:   logger,
	}
}

// Context returns the context the setup pass runs under.
func (cc *ConfigurationContext) Context() context.Context { return cc.ctx }

// Feature returns the name of the feature being set up.
func (cc *ConfigurationContext) Feature() string { return cc.feature }

// Settings returns the settings shared across setup callbacks.
func (cc *ConfigurationContext) Settings() *Settings { return cc.settings }

// Services returns the construction service.
func (cc *ConfigurationContext) Services() *registry.Registry { return cc.services }

// Logger returns the logger of the setup pass.
func (cc *ConfigurationContext) Logger() Logger { return cc.logger }

// IsFeatureActive reports whether the named feature is in the activation plan.
func (cc *ConfigurationContext) IsFeatureActive(name string) bool {
	return cc.plan != nil && cc.plan.IsActive(name)
}

// RegisterStartupTask adds a task for the feature being set up. Tasks are
// started and stopped in the order they are registered across all features.
// Registering outside a setup callback is a no-op that is logged as an error.
func (cc *ConfigurationContext) RegisterStartupTask(task StartupTask, opts ...TaskOption) {
	if cc.tasks == nil {
		cc.logger.Error("Startup task registered outside of feature setup, ignoring", "task", fmt.Sprintf("%T", task))
		return
	}
	if task == nil {
		if cc.err == nil {
			cc.err = ErrNilStartupTask
		}
		return
	}

	entry := &taskEntry{
		id:      TaskID(len(*cc.tasks)),
		feature: cc.feature,
		name:    defaultTaskName(task),
		task:    task,
	}
	for _, opt := range opts {
		opt(entry)
	}
	*cc.tasks = append(*cc.tasks, entry)
	cc.logger.Debug("Registered startup task", "feature", cc.feature, "task", entry.name, "id", entry.id)
}

// RunSetup calls the setup callback of every feature in the plan, strictly in
// plan order, and returns the startup tasks they registered in registration
// order. The first failing callback aborts the pass with a *SetupError.
func RunSetup(ctx context.Context, plan *ActivationPlan, cc *ConfigurationContext) (*TaskList, error) {
	if plan == nil {
		return nil, ErrNilPlan
	}
	if cc == nil {
		cc = NewConfigurationContext(nil, nil, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var entries []*taskEntry
	cc.ctx = ctx
	cc.plan = plan
	cc.tasks = &entries
	defer func() {
		cc.feature = ""
		cc.tasks = nil
		cc.err = nil
	}()

	for _, d := range plan.features {
		if d.Setup == nil {
			cc.logger.Debug("Feature has no setup, skipping", "feature", d.Name)
			continue
		}

		cc.feature = d.Name
		cc.logger.Debug("Setting up feature", "feature", d.Name)
		err := d.Setup(cc)
		if err == nil {
			err = cc.err
		}
		if err != nil {
			cc.logger.Error("Feature setup failed", "feature", d.Name, "error", err)
			return nil, &SetupError{Feature: d.Name, Err: err}
		}
	}

	cc.logger.Info("Feature setup completed", "features", plan.Len(), "tasks", len(entries))
	return &TaskList{entries: entries}, nil
}
