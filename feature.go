package features

import (
	"fmt"
	"slices"
)

// SetupFunc configures a feature and registers its startup tasks.
type SetupFunc func(cc *ConfigurationContext) error

// Condition is a prerequisite that is not another feature, for example a
// capability of the configured transport. A feature is only active when all
// its conditions hold.
type Condition struct {
	// Description explains the requirement in diagnostics.
	Description string
	// Check inspects the settings written during configuration. It must not
	// modify them.
	Check func(s *Settings) bool
}

// Descriptor is the static identity of a feature.
type Descriptor struct {
	// Name must be unique within a Registry.
	Name string
	// EnabledByDefault activates the feature when nothing was set explicitly.
	EnabledByDefault bool
	// Prerequisites are names of features that must be active for this one
	// to be active. They also come before this feature in the activation
	// plan.
	Prerequisites []string
	// Conditions must all hold for the feature to be active.
	Conditions []Condition
	// Setup is called once, in plan order, when the feature is active. It
	// may be nil for features that only gate others.
	Setup SetupFunc
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDescriptor)
	}
	for i, c := range d.Conditions {
		if c.Check == nil {
			return fmt.Errorf("%w: feature '%s' condition %d has no check", ErrInvalidDescriptor, d.Name, i)
		}
	}
	return nil
}

// clone returns a copy whose slices are not shared with the caller.
func (d Descriptor) clone() Descriptor {
	d.Prerequisites = slices.Clone(d.Prerequisites)
	d.Conditions = slices.Clone(d.Conditions)
	return d
}

// ActivationState is the explicit activation setting of a feature.
type ActivationState int

const (
	// ActivationUnset defers to Descriptor.EnabledByDefault.
	ActivationUnset ActivationState = iota
	// ActivationEnabled was requested explicitly.
	ActivationEnabled
	// ActivationDisabled was requested explicitly.
	ActivationDisabled
)

func (s ActivationState) String() string {
	switch s {
	case ActivationUnset:
		return "unset"
	case ActivationEnabled:
		return "enabled"
	case ActivationDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("activation(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s ActivationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state written by MarshalText.
func (s *ActivationState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unset", "":
		*s = ActivationUnset
	case "enabled":
		*s = ActivationEnabled
	case "disabled":
		*s = ActivationDisabled
	default:
		return fmt.Errorf("unknown activation state %q", text)
	}
	return nil
}

// requested reports whether the feature asks to be active before
// prerequisites are considered.
func (s ActivationState) requested(d Descriptor) bool {
	switch s {
	case ActivationEnabled:
		return true
	case ActivationDisabled:
		return false
	default:
		return d.EnabledByDefault
	}
}
