package features

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoCodeAlone/busfeatures/lifecycle"
)

const metricsNamespace = "busfeatures"

// Metrics exposes feature and startup task lifecycle statistics to Prometheus.
// A nil *Metrics records nothing.
type Metrics struct {
	mu sync.Mutex

	taskStartSeconds *prometheus.HistogramVec
	taskStopSeconds  *prometheus.HistogramVec
	taskFailures     *prometheus.CounterVec
	activeFeatures   prometheus.Gauge
	orchestrator     *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

var taskDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30}

// NewMetrics creates the collectors. They are registered with registerer
// (prometheus.DefaultRegisterer when nil) by Register.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer: registerer,
		taskStartSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "task",
			Name:      "start_seconds",
			Help:      "Time spent in startup task Start calls",
			Buckets:   taskDurationBuckets,
		}, []string{"feature"}),
		taskStopSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "task",
			Name:      "stop_seconds",
			Help:      "Time spent in startup task Stop calls",
			Buckets:   taskDurationBuckets,
		}, []string{"feature"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "task",
			Name:      "failures_total",
			Help:      "Startup task failures by lifecycle phase",
		}, []string{"feature", "phase"}),
		activeFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_features",
			Help:      "Number of features in the activation plan",
		}),
		orchestrator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "orchestrator",
			Name:      "state",
			Help:      "Current orchestrator state (1 for the current state, 0 otherwise)",
		}, []string{"state"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.taskStartSeconds,
		m.taskStopSeconds,
		m.taskFailures,
		m.activeFeatures,
		m.orchestrator,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) observeStart(feature string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskStartSeconds.WithLabelValues(feature).Observe(d.Seconds())
}

func (m *Metrics) observeStop(feature string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskStopSeconds.WithLabelValues(feature).Observe(d.Seconds())
}

func (m *Metrics) recordFailure(feature, phase string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(feature, phase).Inc()
}

func (m *Metrics) setActiveFeatures(n int) {
	if m == nil {
		return
	}
	m.activeFeatures.Set(float64(n))
}

var allStates = []lifecycle.State{
	lifecycle.StateCreated,
	lifecycle.StateStarting,
	lifecycle.StateStarted,
	lifecycle.StateStopping,
	lifecycle.StateStopped,
	lifecycle.StateStartFailed,
}

func (m *Metrics) setState(current lifecycle.State) {
	if m == nil {
		return
	}
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.orchestrator.WithLabelValues(s.String()).Set(v)
	}
}
