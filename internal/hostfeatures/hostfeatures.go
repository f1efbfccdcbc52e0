// Package hostfeatures holds the features the featurehost command ships with.
package hostfeatures

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	features "github.com/GoCodeAlone/busfeatures"
)

// Service names used to share collaborators between feature setups.
const (
	// StatusSourceService is registered by the host before setup.
	StatusSourceService = "status.source"
	// GathererService optionally overrides the Prometheus gatherer.
	GathererService = "metrics.gatherer"
	// HeartbeatService is registered by the heartbeat feature setup.
	HeartbeatService = "heartbeat"
)

var (
	ErrInvalidSchedule = errors.New("invalid heartbeat schedule")
	ErrNoStatusSource  = errors.New("no status source registered")
	ErrNoSession       = errors.New("no session to publish through")
)

// Descriptors returns every host feature.
func Descriptors() []features.Descriptor {
	return []features.Descriptor{Heartbeat(), StatusAPI()}
}

// Register adds every host feature to the activator.
func Register(a *features.Activator) error {
	for _, d := range Descriptors() {
		if err := a.Add(d); err != nil {
			return fmt.Errorf("failed to register host feature %s: %w", d.Name, err)
		}
	}
	return nil
}

// cronLogger routes robfig/cron logging through a features.Logger.
type cronLogger struct {
	logger features.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// settingOrDefault returns def when key is unset. A value of the wrong
// type is an error.
func settingOrDefault[T any](s *features.Settings, key string, def T) (T, error) {
	v, err := features.GetSetting[T](s, key)
	if errors.Is(err, features.ErrSettingNotFound) {
		return def, nil
	}
	return v, err
}
