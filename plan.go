package features

import "slices"

// FeatureDiagnostic explains the activation outcome of one registered feature.
type FeatureDiagnostic struct {
	Name             string          `json:"name"`
	State            ActivationState `json:"state"`
	EnabledByDefault bool            `json:"enabledByDefault"`
	Prerequisites    []string        `json:"prerequisites,omitempty"`
	FailedConditions []string        `json:"failedConditions,omitempty"`
	Active           bool            `json:"active"`
	Reason           string          `json:"reason"`
}

// ActivationPlan is the immutable, ordered set of features judged active by
// Registry.Resolve. A feature never appears before any of its prerequisites.
type ActivationPlan struct {
	features    []Descriptor
	diagnostics []FeatureDiagnostic
	active      map[string]bool
}

// Features returns the active descriptors in activation order.
func (p *ActivationPlan) Features() []Descriptor {
	out := make([]Descriptor, len(p.features))
	for i, d := range p.features {
		out[i] = d.clone()
	}
	return out
}

// Names returns the active feature names in activation order.
func (p *ActivationPlan) Names() []string {
	names := make([]string, len(p.features))
	for i, d := range p.features {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of active features.
func (p *ActivationPlan) Len() int { return len(p.features) }

// IsActive reports whether the named feature is in the plan.
func (p *ActivationPlan) IsActive(name string) bool { return p.active[name] }

// Diagnostics returns one entry per registered feature, in registration order.
func (p *ActivationPlan) Diagnostics() []FeatureDiagnostic {
	out := make([]FeatureDiagnostic, len(p.diagnostics))
	for i, d := range p.diagnostics {
		d.Prerequisites = slices.Clone(d.Prerequisites)
		d.FailedConditions = slices.Clone(d.FailedConditions)
		out[i] = d
	}
	return out
}
