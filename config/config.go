// Package config loads feature activation and settings files and applies
// environment overrides before features are resolved.
//
// A file has two sections:
//
//	features:
//	  statusapi: true
//	settings:
//	  heartbeat:
//	    schedule: "@every 10s"
//
// Nested settings are flattened to dotted keys ("heartbeat.schedule").
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"

	features "github.com/GoCodeAlone/busfeatures"
)

// Static errors for the config package
var (
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	ErrInvalidEnvValue   = errors.New("invalid environment override")
)

// File is the decoded content of an activation file.
type File struct {
	// Features maps feature names to an explicit activation state.
	Features map[string]bool `yaml:"features" toml:"features" json:"features"`
	// Settings are written to the feature settings before setup.
	Settings map[string]any `yaml:"settings" toml:"settings" json:"settings"`
}

// ActivationTarget receives explicit activation states.
// *features.Registry and *features.Activator implement it.
type ActivationTarget interface {
	SetActivation(name string, enabled bool) error
}

// New returns an empty file.
func New() *File {
	return &File{Features: map[string]bool{}, Settings: map[string]any{}}
}

// Load reads path, choosing the decoder by extension: .yaml, .yml, .toml or
// .json.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data in the format named by ext.
func Parse(data []byte, ext string) (*File, error) {
	var raw File
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f := New()
	for name, enabled := range raw.Features {
		f.Features[name] = enabled
	}
	flatten("", raw.Settings, f.Settings)
	return f, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch nested := v.(type) {
		case map[string]any:
			flatten(key, nested, out)
		case map[any]any:
			converted := make(map[string]any, len(nested))
			for nk, nv := range nested {
				converted[fmt.Sprint(nk)] = nv
			}
			flatten(key, converted, out)
		default:
			out[key] = v
		}
	}
}

// EnvName returns the variable overriding name: the prefix, the section
// ("FEATURE" or "SETTING") and name upper-cased with every character other
// than a letter or digit replaced by an underscore.
func EnvName(prefix, section, name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	parts := []string{section, b.String()}
	if prefix != "" {
		parts = append([]string{strings.ToUpper(prefix)}, parts...)
	}
	return strings.Join(parts, "_")
}

// ApplyEnv overrides f from the environment. For every name in featureNames
// and every feature already in f, <PREFIX>_FEATURE_<NAME> holds a boolean
// activation state. For every key in f.Settings, <PREFIX>_SETTING_<KEY>
// replaces the value, converted to the type of the value it replaces.
func ApplyEnv(f *File, prefix string, featureNames ...string) error {
	names := slices.Clone(featureNames)
	for name := range f.Features {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	for _, name := range names {
		env := EnvName(prefix, "FEATURE", name)
		value, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		enabled, err := cast.FromType(strings.TrimSpace(value), reflect.TypeFor[bool]())
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnvValue, env, value, err)
		}
		f.Features[name] = enabled.(bool)
	}

	for key, current := range f.Settings {
		env := EnvName(prefix, "SETTING", key)
		value, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		if current == nil {
			f.Settings[key] = value
			continue
		}
		if _, isString := current.(string); isString {
			f.Settings[key] = value
			continue
		}
		converted, err := cast.FromType(value, reflect.TypeOf(current))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnvValue, env, value, err)
		}
		f.Settings[key] = converted
	}
	return nil
}

// Apply writes the activation states to target and the settings to settings,
// in key order. Features that target does not know are reported.
func (f *File) Apply(target ActivationTarget, settings *features.Settings) error {
	var errs []error
	for _, name := range sortedKeys(f.Features) {
		if err := target.SetActivation(name, f.Features[name]); err != nil {
			errs = append(errs, err)
		}
	}
	if settings != nil {
		for _, key := range sortedKeys(f.Settings) {
			if err := settings.Set(key, f.Settings[key]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
