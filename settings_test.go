package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_SetGet(t *testing.T) {
	s := NewSettings()
	require.NoError(t, s.SetDefault("endpoint.name", "default"))

	v, err := s.Get("endpoint.name")
	require.NoError(t, err)
	assert.Equal(t, "default", v)
	assert.False(t, s.HasExplicitValue("endpoint.name"))

	require.NoError(t, s.Set("endpoint.name", "sales"))
	v, ok := s.TryGet("endpoint.name")
	assert.True(t, ok)
	assert.Equal(t, "sales", v)
	assert.True(t, s.HasExplicitValue("endpoint.name"))

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	require.NoError(t, s.SetDefault("b", 1))
	require.NoError(t, s.Set("a", 1))
	assert.Equal(t, []string{"a", "b", "endpoint.name"}, s.Keys())
}

func TestSettings_Freeze(t *testing.T) {
	s := NewSettings()
	require.NoError(t, s.Set("a", 1))
	s.Freeze()

	assert.True(t, s.Frozen())
	assert.ErrorIs(t, s.Set("a", 2), ErrSettingsFrozen)
	assert.ErrorIs(t, s.SetDefault("b", 2), ErrSettingsFrozen)

	v, err := GetSetting[int](s, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestGetSetting_Conversions(t *testing.T) {
	s := NewSettings()
	require.NoError(t, s.Set("flag", "true"))
	require.NoError(t, s.Set("count", "42"))
	require.NoError(t, s.Set("ratio", "0.5"))
	require.NoError(t, s.Set("interval", "1m30s"))
	require.NoError(t, s.Set("native", 7))
	require.NoError(t, s.Set("yamlInt", int64(3)))
	require.NoError(t, s.Set("jsonNumber", float64(12)))
	require.NoError(t, s.Set("timeout", 5*time.Second))

	flag, err := GetSetting[bool](s, "flag")
	require.NoError(t, err)
	assert.True(t, flag)

	count, err := GetSetting[int](s, "count")
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	ratio, err := GetSetting[float64](s, "ratio")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	interval, err := GetSetting[time.Duration](s, "interval")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, interval)

	native, err := GetSetting[int](s, "native")
	require.NoError(t, err)
	assert.Equal(t, 7, native)

	fromYAML, err := GetSetting[int](s, "yamlInt")
	require.NoError(t, err)
	assert.Equal(t, 3, fromYAML)

	fromJSON, err := GetSetting[int](s, "jsonNumber")
	require.NoError(t, err)
	assert.Equal(t, 12, fromJSON)

	timeout, err := GetSetting[time.Duration](s, "timeout")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
}

func TestGetSetting_Errors(t *testing.T) {
	s := NewSettings()
	require.NoError(t, s.Set("flag", "not-a-bool"))
	require.NoError(t, s.Set("interval", "soon"))
	require.NoError(t, s.Set("list", []string{"a"}))
	require.NoError(t, s.Set("retries", -3))

	_, err := GetSetting[bool](s, "flag")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[uint32](s, "retries")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[time.Duration](s, "interval")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[string](s, "list")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[string](s, "missing")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	assert.True(t, GetSettingOrDefault(s, "flag", true))
	assert.Equal(t, "fallback", GetSettingOrDefault(s, "missing", "fallback"))
}

func TestGetSetting_LossyNumbersRejected(t *testing.T) {
	s := NewSettings()
	require.NoError(t, s.Set("negative", -1))
	require.NoError(t, s.Set("fraction", 1.9))
	require.NoError(t, s.Set("large", int64(300)))
	require.NoError(t, s.Set("huge", float64(1e20)))
	require.NoError(t, s.Set("bareTimeout", 5))
	require.NoError(t, s.Set("tomlTimeout", int64(5)))

	_, err := GetSetting[uint](s, "negative")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[int](s, "fraction")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[int8](s, "large")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[int64](s, "huge")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[time.Duration](s, "bareTimeout")
	assert.ErrorIs(t, err, ErrSettingType)

	_, err = GetSetting[time.Duration](s, "tomlTimeout")
	assert.ErrorIs(t, err, ErrSettingType)

	// exact conversions still work
	n, err := GetSetting[int16](s, "large")
	require.NoError(t, err)
	assert.Equal(t, int16(300), n)

	f, err := GetSetting[float64](s, "fraction")
	require.NoError(t, err)
	assert.InDelta(t, 1.9, f, 1e-9)

	u, err := GetSetting[uint](s, "large")
	require.NoError(t, err)
	assert.Equal(t, uint(300), u)
}
