package features

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(name string, enabled bool, prerequisites ...string) Descriptor {
	return Descriptor{Name: name, EnabledByDefault: enabled, Prerequisites: prerequisites}
}

func mustRegister(t *testing.T, r *Registry, descriptors ...Descriptor) {
	t.Helper()
	for _, d := range descriptors {
		require.NoError(t, r.Register(d))
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("duplicate name", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(feature("outbox", true)))

		err := r.Register(feature("outbox", false))
		require.ErrorIs(t, err, ErrDuplicateFeature)
		assert.Contains(t, err.Error(), "outbox")
		assert.Equal(t, 1, r.Len())
	})

	t.Run("empty name", func(t *testing.T) {
		r := NewRegistry()
		assert.ErrorIs(t, r.Register(Descriptor{}), ErrInvalidDescriptor)
	})

	t.Run("condition without check", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(Descriptor{Name: "timeouts", Conditions: []Condition{{Description: "broken"}}})
		assert.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("descriptor is copied", func(t *testing.T) {
		r := NewRegistry()
		prereqs := []string{"a"}
		mustRegister(t, r, feature("a", true), Descriptor{Name: "b", EnabledByDefault: true, Prerequisites: prereqs})
		prereqs[0] = "missing"

		plan, err := r.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, plan.Names())
	})

	t.Run("after resolve", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Resolve()
		require.NoError(t, err)
		assert.ErrorIs(t, r.Register(feature("late", true)), ErrAlreadyResolved)
	})
}

func TestRegistry_SetActivation(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, feature("retries", true), feature("audit", false))

	assert.ErrorIs(t, r.SetActivation("unknown", true), ErrUnknownFeature)

	state, err := r.State("retries")
	require.NoError(t, err)
	assert.Equal(t, ActivationUnset, state)

	require.NoError(t, r.SetActivation("retries", false))
	require.NoError(t, r.SetActivation("audit", true))

	state, _ = r.State("retries")
	assert.Equal(t, ActivationDisabled, state)
	_, err = r.State("unknown")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	plan, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, []string{"audit"}, plan.Names())

	assert.ErrorIs(t, r.SetActivation("retries", true), ErrAlreadyResolved)
}

func TestRegistry_ResolveTwice(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, feature("a", true))

	_, err := r.Resolve()
	require.NoError(t, err)
	assert.True(t, r.Resolved())

	plan, err := r.Resolve()
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestRegistry_ResolveAfterFailedResolveIsRejected(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, feature("a", true, "b"), feature("b", true, "a"))

	_, err := r.Resolve()
	require.ErrorIs(t, err, ErrCyclicDependency)

	_, err = r.Resolve()
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestRegistry_ResolveActivation(t *testing.T) {
	tests := []struct {
		name     string
		features []Descriptor
		enable   map[string]bool
		want     []string
	}{
		{
			name:     "default enabled",
			features: []Descriptor{feature("a", true), feature("b", false)},
			want:     []string{"a"},
		},
		{
			name:     "explicit overrides default",
			features: []Descriptor{feature("a", true), feature("b", false)},
			enable:   map[string]bool{"a": false, "b": true},
			want:     []string{"b"},
		},
		{
			name:     "inactive prerequisite deactivates dependent",
			features: []Descriptor{feature("storage", false), feature("outbox", true, "storage")},
			want:     []string{},
		},
		{
			name:     "explicitly enabled dependent still needs prerequisite",
			features: []Descriptor{feature("storage", true), feature("outbox", false, "storage")},
			enable:   map[string]bool{"storage": false, "outbox": true},
			want:     []string{},
		},
		{
			name:     "deactivation is transitive",
			features: []Descriptor{feature("a", false), feature("b", true, "a"), feature("c", true, "b"), feature("d", true)},
			want:     []string{"d"},
		},
		{
			name:     "unregistered prerequisite deactivates dependent",
			features: []Descriptor{feature("sagas", true, "persistence")},
			want:     []string{},
		},
		{
			name:     "prerequisite enabled explicitly",
			features: []Descriptor{feature("storage", false), feature("outbox", true, "storage")},
			enable:   map[string]bool{"storage": true},
			want:     []string{"storage", "outbox"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(WithLogger(&logger{t}))
			mustRegister(t, r, tt.features...)
			for name, enabled := range tt.enable {
				require.NoError(t, r.SetActivation(name, enabled))
			}

			plan, err := r.Resolve()
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Names())
			for _, name := range tt.want {
				assert.True(t, plan.IsActive(name))
			}
		})
	}
}

func TestRegistry_ResolveOrder(t *testing.T) {
	t.Run("prerequisites first", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r,
			feature("outbox", true, "storage", "transactions"),
			feature("transactions", true, "storage"),
			feature("storage", true),
		)

		plan, err := r.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"storage", "transactions", "outbox"}, plan.Names())
	})

	t.Run("independent features keep registration order", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, feature("c", true), feature("a", true), feature("b", true))

		plan, err := r.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, plan.Names())
	})

	t.Run("ties break by registration order", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r,
			feature("x", true, "base"),
			feature("y", true),
			feature("base", true),
			feature("z", true, "base"),
		)

		plan, err := r.Resolve()
		require.NoError(t, err)
		// y is ready immediately and registered before base; x waits for base
		assert.Equal(t, []string{"y", "base", "x", "z"}, plan.Names())
	})
}

func TestRegistry_ResolveCycles(t *testing.T) {
	tests := []struct {
		name     string
		features []Descriptor
		path     string
	}{
		{"self", []Descriptor{feature("a", true, "a")}, "a -> a"},
		{"pair", []Descriptor{feature("a", true, "b"), feature("b", true, "a")}, "a -> b -> a"},
		{
			"through disabled features",
			[]Descriptor{feature("root", true), feature("a", false, "c"), feature("b", false, "a"), feature("c", false, "b")},
			"a -> c -> b -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			mustRegister(t, r, tt.features...)

			plan, err := r.Resolve()
			assert.Nil(t, plan)
			require.ErrorIs(t, err, ErrCyclicDependency)
			assert.Contains(t, err.Error(), tt.path)
		})
	}
}

func TestRegistry_ResolveConditions(t *testing.T) {
	settings := NewSettings()
	require.NoError(t, settings.Set("transport.supportsDelayedDelivery", false))

	r := NewRegistry(WithSettings(settings))
	mustRegister(t, r,
		Descriptor{
			Name:             "timeouts",
			EnabledByDefault: true,
			Conditions: []Condition{{
				Description: "transport lacks native delayed delivery",
				Check: func(s *Settings) bool {
					return !GetSettingOrDefault(s, "transport.supportsDelayedDelivery", false)
				},
			}},
		},
		Descriptor{
			Name:             "native-deferral",
			EnabledByDefault: true,
			Conditions: []Condition{{
				Description: "transport supports delayed delivery",
				Check: func(s *Settings) bool {
					return GetSettingOrDefault(s, "transport.supportsDelayedDelivery", false)
				},
			}},
		},
	)

	plan, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, []string{"timeouts"}, plan.Names())

	diags := plan.Diagnostics()
	require.Len(t, diags, 2)
	assert.False(t, diags[1].Active)
	assert.Equal(t, []string{"transport supports delayed delivery"}, diags[1].FailedConditions)
	assert.Contains(t, diags[1].Reason, "conditions not met")
}

func TestActivationPlan_Diagnostics(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r,
		feature("storage", false),
		feature("outbox", true, "storage"),
		feature("sagas", true, "persistence"),
		feature("retries", true),
		feature("audit", true),
	)
	require.NoError(t, r.SetActivation("audit", false))

	plan, err := r.Resolve()
	require.NoError(t, err)

	reasons := map[string]string{}
	for _, d := range plan.Diagnostics() {
		reasons[d.Name] = d.Reason
	}
	assert.Equal(t, map[string]string{
		"storage": "not enabled by default",
		"outbox":  "inactive prerequisites: storage",
		"sagas":   "inactive prerequisites: persistence (not registered)",
		"retries": "active",
		"audit":   "explicitly disabled",
	}, reasons)

	// callers cannot alter the plan through returned slices
	features := plan.Features()
	features[0].Name = "changed"
	assert.Equal(t, []string{"retries"}, plan.Names())
	assert.Equal(t, 1, plan.Len())
}

// TestRegistry_ResolveRandomGraphs checks on random acyclic graphs that no
// feature precedes one of its prerequisites and that every active feature has
// only active prerequisites.
func TestRegistry_ResolveRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(12)
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("f%d", i)
		}
		// edges only point to lower indices, so the graph is acyclic;
		// registration order is shuffled independently
		descriptors := make([]Descriptor, n)
		for i := range descriptors {
			var prereqs []string
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					prereqs = append(prereqs, names[j])
				}
			}
			descriptors[i] = feature(names[i], rng.Intn(5) != 0, prereqs...)
		}
		rng.Shuffle(n, func(i, j int) { descriptors[i], descriptors[j] = descriptors[j], descriptors[i] })

		r := NewRegistry()
		mustRegister(t, r, descriptors...)
		plan, err := r.Resolve()
		require.NoError(t, err, "round %d", round)

		position := map[string]int{}
		for i, name := range plan.Names() {
			position[name] = i
		}
		for _, d := range plan.Features() {
			for _, dep := range d.Prerequisites {
				depPos, ok := position[dep]
				require.True(t, ok, "round %d: %s active without prerequisite %s", round, d.Name, dep)
				require.Less(t, depPos, position[d.Name], "round %d: %s before prerequisite %s", round, d.Name, dep)
			}
		}
		for _, d := range descriptors {
			_, active := position[d.Name]
			if !active {
				continue
			}
			require.True(t, d.EnabledByDefault, "round %d: %s active although disabled", round, d.Name)
		}
	}
}
