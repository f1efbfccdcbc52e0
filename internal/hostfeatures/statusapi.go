package hostfeatures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	features "github.com/GoCodeAlone/busfeatures"
	"github.com/GoCodeAlone/busfeatures/lifecycle"
	"github.com/GoCodeAlone/busfeatures/registry"
)

// Status API feature constants.
const (
	StatusAPIFeature = "statusapi"

	StatusAPIListenSetting          = "statusapi.listen"
	StatusAPIShutdownTimeoutSetting = "statusapi.shutdownTimeout"

	DefaultStatusAPIListen          = ":8081"
	DefaultStatusAPIShutdownTimeout = 5 * time.Second
)

// StatusSource is what the status API reports on. *features.Activator
// implements it.
type StatusSource interface {
	Plan() *features.ActivationPlan
	Tasks() *features.TaskList
	State() lifecycle.State
}

// HeartbeatStatus reports heartbeat progress.
type HeartbeatStatus interface {
	Sent() uint64
	LastSent() time.Time
}

// StatusAPI returns the descriptor of the status API feature. It is off by
// default and needs the heartbeat feature, whose progress it reports.
func StatusAPI() features.Descriptor {
	return features.Descriptor{
		Name:          StatusAPIFeature,
		Prerequisites: []string{HeartbeatFeature},
		Setup:         setupStatusAPI,
	}
}

func setupStatusAPI(cc *features.ConfigurationContext) error {
	source, err := registry.Resolve[StatusSource](cc.Services(), StatusSourceService)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoStatusSource, err)
	}
	beat, err := registry.Resolve[HeartbeatStatus](cc.Services(), HeartbeatService)
	if err != nil {
		return err
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cc.Services().Has(GathererService) {
		if gatherer, err = registry.Resolve[prometheus.Gatherer](cc.Services(), GathererService); err != nil {
			return err
		}
	}

	listen, err := settingOrDefault(cc.Settings(), StatusAPIListenSetting, DefaultStatusAPIListen)
	if err != nil {
		return err
	}
	timeout, err := settingOrDefault(cc.Settings(), StatusAPIShutdownTimeoutSetting, DefaultStatusAPIShutdownTimeout)
	if err != nil {
		return err
	}

	server := NewStatusServer(listen, timeout, NewRouter(source, beat, gatherer), cc.Logger())
	cc.RegisterStartupTask(server, features.WithTaskName("status-api"), features.WithDispose(server.Close))
	return nil
}

// NewRouter builds the status API routes:
//
//	GET /features   activation diagnostics
//	GET /tasks      registered startup tasks
//	GET /state      lifecycle state and heartbeat progress
//	GET /metrics    Prometheus exposition
func NewRouter(source StatusSource, beat HeartbeatStatus, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/features", func(w http.ResponseWriter, _ *http.Request) {
		plan := source.Plan()
		if plan == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "features not resolved"})
			return
		}
		writeJSON(w, http.StatusOK, plan.Diagnostics())
	})
	r.Get("/tasks", func(w http.ResponseWriter, _ *http.Request) {
		tasks := source.Tasks().Tasks()
		if tasks == nil {
			tasks = []features.TaskInfo{}
		}
		writeJSON(w, http.StatusOK, tasks)
	})
	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"state": source.State().String()}
		if beat != nil {
			body["heartbeats"] = beat.Sent()
			if last := beat.LastSent(); !last.IsZero() {
				body["lastHeartbeat"] = last
			}
		}
		writeJSON(w, http.StatusOK, body)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StatusServer serves a handler between Start and Stop.
type StatusServer struct {
	listen  string
	timeout time.Duration
	handler http.Handler
	logger  features.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	done   chan struct{}
}

// NewStatusServer creates a server for handler on listen.
func NewStatusServer(listen string, shutdownTimeout time.Duration, handler http.Handler, logger features.Logger) *StatusServer {
	if logger == nil {
		logger = features.NopLogger()
	}
	return &StatusServer{listen: listen, timeout: shutdownTimeout, handler: handler, logger: logger}
}

// Start binds the listen address and serves in the background. A bind
// failure is returned.
func (s *StatusServer) Start(ctx context.Context, _ features.Session) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.listen)
	if err != nil {
		return fmt.Errorf("status api cannot listen on %s: %w", s.listen, err)
	}

	server := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan struct{})

	s.mu.Lock()
	s.server = server
	s.addr = ln.Addr()
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status API stopped serving", "error", err)
		}
	}()
	s.logger.Info("Status API listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down gracefully within the shutdown timeout.
func (s *StatusServer) Stop(ctx context.Context, _ features.Session) error {
	s.mu.Lock()
	server, done := s.server, s.done
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down status api: %w", err)
	}
	<-done
	s.logger.Info("Status API stopped")
	return nil
}

// Close releases the listener and any open connections.
func (s *StatusServer) Close() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.addr = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address while serving, or nil.
func (s *StatusServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
