package features

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/golobby/cast"
)

// Settings is the typed key/value store shared by feature setup callbacks.
// Values written by one setup callback are visible to every later one.
// Once frozen, writes fail with ErrSettingsFrozen.
type Settings struct {
	mu       sync.RWMutex
	values   map[string]any
	defaults map[string]any
	frozen   bool
}

// NewSettings creates an empty, writable settings store.
func NewSettings() *Settings {
	return &Settings{
		values:   make(map[string]any),
		defaults: make(map[string]any),
	}
}

// Set stores an explicit value for key.
func (s *Settings) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return fmt.Errorf("%w: cannot set '%s'", ErrSettingsFrozen, key)
	}
	s.values[key] = value
	return nil
}

// SetDefault stores a fallback used when key has no explicit value.
func (s *Settings) SetDefault(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return fmt.Errorf("%w: cannot set default for '%s'", ErrSettingsFrozen, key)
	}
	s.defaults[key] = value
	return nil
}

// TryGet returns the explicit value for key, or its default.
func (s *Settings) TryGet(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[key]; ok {
		return v, true
	}
	v, ok := s.defaults[key]
	return v, ok
}

// Get is TryGet returning ErrSettingNotFound for missing keys.
func (s *Settings) Get(key string) (any, error) {
	v, ok := s.TryGet(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSettingNotFound, key)
	}
	return v, nil
}

// HasExplicitValue reports whether key was Set, ignoring defaults.
func (s *Settings) HasExplicitValue(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Keys returns every key with a value or a default, sorted.
func (s *Settings) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values)+len(s.defaults))
	for k := range s.values {
		keys = append(keys, k)
	}
	for k := range s.defaults {
		if _, dup := s.values[k]; !dup {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Freeze makes the store read-only.
func (s *Settings) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (s *Settings) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// GetSetting returns the value for key as T. String values are converted
// with golobby/cast so settings fed from files or the environment can be read
// as bool, numbers or durations. Numbers convert across numeric kinds only
// when the value fits the target exactly. A time.Duration must be stored as
// a duration or a duration string such as "5s".
func GetSetting[T any](s *Settings, key string) (T, error) {
	var zero T
	raw, err := s.Get(key)
	if err != nil {
		return zero, err
	}
	return convertSetting[T](key, raw)
}

// GetSettingOrDefault is GetSetting returning def when key is missing or
// cannot be converted.
func GetSettingOrDefault[T any](s *Settings, key string, def T) T {
	v, err := GetSetting[T](s, key)
	if err != nil {
		return def
	}
	return v
}

var durationType = reflect.TypeFor[time.Duration]()

func convertSetting[T any](key string, raw any) (T, error) {
	var zero T
	if v, ok := raw.(T); ok {
		return v, nil
	}

	target := reflect.TypeFor[T]()
	switch value := raw.(type) {
	case string:
		if target == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return zero, fmt.Errorf("%w: '%s': %w", ErrSettingType, key, err)
			}
			return any(d).(T), nil
		}
		converted, err := cast.FromType(value, target)
		if err != nil {
			return zero, fmt.Errorf("%w: '%s' cannot be read as %s: %w", ErrSettingType, key, target, err)
		}
		rv := reflect.ValueOf(converted)
		if rv.Type() != target && rv.Type().ConvertibleTo(target) {
			rv = rv.Convert(target)
		}
		if v, ok := rv.Interface().(T); ok {
			return v, nil
		}
	default:
		rv := reflect.ValueOf(raw)
		if raw != nil && target != durationType && isNumericKind(rv.Kind()) && isNumericKind(target.Kind()) {
			if !fitsNumeric(rv, target) {
				return zero, fmt.Errorf("%w: '%s' value %v does not fit %s", ErrSettingType, key, raw, target)
			}
			return rv.Convert(target).Interface().(T), nil
		}
	}
	return zero, fmt.Errorf("%w: '%s' is %T, not %s", ErrSettingType, key, raw, target)
}

// fitsNumeric reports whether v converts to target without wrapping,
// truncation or overflow. Durations are excluded by the caller: a bare
// number carries no unit.
func fitsNumeric(v reflect.Value, target reflect.Type) bool {
	dst := reflect.New(target).Elem()
	switch {
	case isIntKind(target.Kind()):
		switch {
		case isIntKind(v.Kind()):
			return !dst.OverflowInt(v.Int())
		case isUintKind(v.Kind()):
			u := v.Uint()
			return u <= math.MaxInt64 && !dst.OverflowInt(int64(u))
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return false
			}
			return !dst.OverflowInt(int64(f))
		}
	case isUintKind(target.Kind()):
		switch {
		case isIntKind(v.Kind()):
			n := v.Int()
			return n >= 0 && !dst.OverflowUint(uint64(n))
		case isUintKind(v.Kind()):
			return !dst.OverflowUint(v.Uint())
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return false
			}
			return !dst.OverflowUint(uint64(f))
		}
	default:
		if isIntKind(v.Kind()) || isUintKind(v.Kind()) {
			return true
		}
		return !dst.OverflowFloat(v.Float())
	}
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func isUintKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
