package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	features "github.com/GoCodeAlone/busfeatures"
	"github.com/GoCodeAlone/busfeatures/config"
	"github.com/GoCodeAlone/busfeatures/internal/hostfeatures"
)

// ErrInvalidLogLevel is returned for an unknown --log-level.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Options are the command line options shared by every subcommand.
type Options struct {
	ConfigPath string
	EnvPrefix  string
	Listen     string
	LogLevel   string
	Enable     []string
	Disable    []string
}

func newLogger(level string, out io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidLogLevel, level)
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), nil
}

// host is an activator with the built-in features registered and every
// activation source applied.
type host struct {
	activator *features.Activator
	gatherer  *prometheus.Registry
	logger    features.Logger
}

func newHost(opts *Options, logOut io.Writer) (*host, error) {
	sl, err := newLogger(opts.LogLevel, logOut)
	if err != nil {
		return nil, err
	}
	logger := features.NewSlogLogger(sl)

	gatherer := prometheus.NewRegistry()
	gatherer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := features.NewMetrics(gatherer)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a := features.NewActivator(features.ActivatorConfig{Logger: logger, Metrics: metrics})
	if err := hostfeatures.Register(a); err != nil {
		return nil, err
	}
	if err := a.Services().Register(hostfeatures.StatusSourceService, a); err != nil {
		return nil, err
	}
	if err := a.Services().Register(hostfeatures.GathererService, prometheus.Gatherer(gatherer)); err != nil {
		return nil, err
	}

	file := config.New()
	if opts.ConfigPath != "" {
		if file, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(file, opts.EnvPrefix, a.Registry().Names()...); err != nil {
		return nil, err
	}
	if opts.Listen != "" {
		file.Features[hostfeatures.StatusAPIFeature] = true
		file.Settings[hostfeatures.StatusAPIListenSetting] = opts.Listen
	}
	for _, name := range opts.Enable {
		file.Features[strings.TrimSpace(name)] = true
	}
	for _, name := range opts.Disable {
		file.Features[strings.TrimSpace(name)] = false
	}
	if err := file.Apply(a, a.Settings()); err != nil {
		return nil, fmt.Errorf("failed to apply activation: %w", err)
	}

	return &host{activator: a, gatherer: gatherer, logger: logger}, nil
}

func (h *host) setup(ctx context.Context) error {
	if err := h.activator.SetupFeatures(ctx); err != nil {
		return fmt.Errorf("feature setup failed: %w", err)
	}
	return nil
}
