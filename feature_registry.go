package features

import (
	"fmt"
	"slices"
	"strings"
)

type registration struct {
	descriptor Descriptor
	state      ActivationState
	index      int
}

// Registry collects feature descriptors and their activation settings during
// the configuration phase. It is not safe for concurrent use; configuration is
// expected to happen on a single goroutine. Resolve freezes it.
type Registry struct {
	features map[string]*registration
	order    []string
	settings *Settings
	logger   Logger
	resolved bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used by the registry.
func WithLogger(l Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSettings sets the settings conditions are evaluated against.
func WithSettings(s *Settings) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.settings = s
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		features: make(map[string]*registration),
		settings: NewSettings(),
		logger:   NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a descriptor. Names are unique.
func (r *Registry) Register(d Descriptor) error {
	if r.resolved {
		return fmt.Errorf("%w: cannot register feature '%s'", ErrAlreadyResolved, d.Name)
	}
	if err := d.validate(); err != nil {
		return err
	}
	if _, exists := r.features[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFeature, d.Name)
	}

	r.features[d.Name] = &registration{
		descriptor: d.clone(),
		state:      ActivationUnset,
		index:      len(r.order),
	}
	r.order = append(r.order, d.Name)
	r.logger.Debug("Registered feature", "feature", d.Name, "enabledByDefault", d.EnabledByDefault,
		"prerequisites", d.Prerequisites)
	return nil
}

// SetActivation explicitly enables or disables a registered feature.
func (r *Registry) SetActivation(name string, enabled bool) error {
	if r.resolved {
		return fmt.Errorf("%w: cannot change activation of '%s'", ErrAlreadyResolved, name)
	}
	reg, ok := r.features[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	if enabled {
		reg.state = ActivationEnabled
	} else {
		reg.state = ActivationDisabled
	}
	return nil
}

// State returns the explicit activation state of a feature.
func (r *Registry) State(name string) (ActivationState, error) {
	reg, ok := r.features[name]
	if !ok {
		return ActivationUnset, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return reg.state, nil
}

// Names returns the registered feature names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len returns the number of registered features.
func (r *Registry) Len() int { return len(r.order) }

// Resolved reports whether Resolve has been called.
func (r *Registry) Resolved() bool { return r.resolved }

// Resolve freezes the registry and computes the activation plan. It may be
// called once; later calls fail with ErrAlreadyResolved.
//
// A feature is active when it is enabled (explicitly, or by default when
// unset), all its prerequisites are active and all its conditions hold. A
// feature whose prerequisites are inactive or unregistered is left out of the
// plan without an error. The prerequisite graph must be acyclic.
func (r *Registry) Resolve() (*ActivationPlan, error) {
	if r.resolved {
		return nil, ErrAlreadyResolved
	}
	r.resolved = true

	if err := r.detectCycles(); err != nil {
		r.logger.Error("Feature dependency cycle", "error", err)
		return nil, err
	}

	diagnostics := make(map[string]*FeatureDiagnostic, len(r.order))
	var evaluate func(name string) bool
	evaluate = func(name string) bool {
		if d, done := diagnostics[name]; done {
			return d.Active
		}
		reg := r.features[name]
		diag := &FeatureDiagnostic{
			Name:             name,
			State:            reg.state,
			EnabledByDefault: reg.descriptor.EnabledByDefault,
			Prerequisites:    slices.Clone(reg.descriptor.Prerequisites),
		}
		diagnostics[name] = diag

		if !reg.state.requested(reg.descriptor) {
			if reg.state == ActivationDisabled {
				diag.Reason = "explicitly disabled"
			} else {
				diag.Reason = "not enabled by default"
			}
			return false
		}

		var missing []string
		for _, dep := range reg.descriptor.Prerequisites {
			if _, ok := r.features[dep]; !ok {
				missing = append(missing, dep+" (not registered)")
				continue
			}
			if !evaluate(dep) {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			diag.Reason = "inactive prerequisites: " + strings.Join(missing, ", ")
			return false
		}

		for _, c := range reg.descriptor.Conditions {
			if !c.Check(r.settings) {
				diag.FailedConditions = append(diag.FailedConditions, c.Description)
			}
		}
		if len(diag.FailedConditions) > 0 {
			diag.Reason = "conditions not met: " + strings.Join(diag.FailedConditions, ", ")
			return false
		}

		diag.Active = true
		diag.Reason = "active"
		return true
	}

	for _, name := range r.order {
		evaluate(name)
	}

	plan := &ActivationPlan{
		features:    r.orderActive(diagnostics),
		diagnostics: make([]FeatureDiagnostic, 0, len(r.order)),
		active:      make(map[string]bool),
	}
	for _, d := range plan.features {
		plan.active[d.Name] = true
	}
	for _, name := range r.order {
		diag := diagnostics[name]
		plan.diagnostics = append(plan.diagnostics, *diag)
		if !diag.Active {
			r.logger.Info("Feature not activated", "feature", name, "reason", diag.Reason)
		}
	}

	r.logger.Info("Resolved feature activation plan", "active", plan.Names(), "registered", len(r.order))
	return plan, nil
}

// detectCycles walks every registered feature depth-first in registration
// order and reports the first cycle found.
func (r *Registry) detectCycles() error {
	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(r.order))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visiting:
			start := slices.Index(path, name)
			cycle := append(slices.Clone(path[start:]), name)
			return fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(cycle, " -> "))
		case visited:
			return nil
		}

		marks[name] = visiting
		path = append(path, name)
		for _, dep := range r.features[name].descriptor.Prerequisites {
			if _, ok := r.features[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		marks[name] = visited
		return nil
	}

	for _, name := range r.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// orderActive sorts the active features topologically. Among features whose
// prerequisites are already placed, the earliest registered goes first.
func (r *Registry) orderActive(diagnostics map[string]*FeatureDiagnostic) []Descriptor {
	var pending []*registration
	for _, name := range r.order {
		if diagnostics[name].Active {
			pending = append(pending, r.features[name])
		}
	}

	placed := make(map[string]bool, len(pending))
	ordered := make([]Descriptor, 0, len(pending))
	for len(pending) > 0 {
		// pending stays in registration order, so the first ready entry wins
		next := slices.IndexFunc(pending, func(reg *registration) bool {
			for _, dep := range reg.descriptor.Prerequisites {
				if !placed[dep] {
					return false
				}
			}
			return true
		})
		reg := pending[next]
		placed[reg.descriptor.Name] = true
		ordered = append(ordered, reg.descriptor.clone())
		pending = slices.Delete(pending, next, next+1)
	}
	return ordered
}
