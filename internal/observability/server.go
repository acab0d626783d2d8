// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves the host's metrics, health probes and a
// status snapshot over HTTP.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Metrics contains the host's own Prometheus metrics.
type Metrics struct {
	ModLoads *prometheus.CounterVec
	VMFaults prometheus.Counter
}

// NewMetrics creates and registers the host metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qmm_mod_load_attempts_total",
				Help: "Mod load cascade attempts by module kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		VMFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qmm_vm_faults_total",
			Help: "Runtime faults raised by QVM bytecode",
		}),
	}

	reg.MustRegister(m.ModLoads, m.VMFaults)
	return m
}

// PluginStatus describes one attached plugin.
type PluginStatus struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// Status is a snapshot of what the host has loaded. A zero Mod means no
// mod is loaded.
type Status struct {
	Game    string         `json:"game"`
	Mod     string         `json:"mod,omitempty"`
	VM      bool           `json:"vm"`
	Plugins []PluginStatus `json:"plugins"`
}

// Server serves /metrics, /healthz/liveness, /healthz/readiness and
// /status. The host publishes snapshots with SetStatus from the engine
// thread; handlers only read the latest one.
type Server struct {
	addr       string
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	status     atomic.Pointer[Status]
	running    atomic.Bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server for addr, in "host:port" form. Port 0 picks
// a free port; Addr reports it once started.
func NewServer(addr string, opts ...ServerOption) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:     addr,
		logger:   slog.Default(),
		registry: registry,
		metrics:  NewMetrics(registry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the host metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registry returns the registry served on /metrics, for other components
// to register their collectors with.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// SetStatus publishes a snapshot. Nil clears it.
func (s *Server) SetStatus(st *Status) {
	s.status.Store(st)
}

// Ready reports whether the latest snapshot has a mod loaded.
func (s *Server) Ready() bool {
	st := s.status.Load()
	return st != nil && st.Mod != ""
}

// Start listens and serves in the background. The returned channel
// receives a serve failure, and is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)
	mux.HandleFunc("/status", s.handleStatus)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("OBSERVABILITY_STOP_FAILED").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	//nolint:errcheck // client may disconnect
	w.Write([]byte(body + "\n"))
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// handleReadiness returns 503 until a mod is loaded.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.Ready() {
		writeText(w, http.StatusOK, "ok")
		return
	}
	writeText(w, http.StatusServiceUnavailable, "not ready")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.status.Load()
	if st == nil {
		st = &Status{}
	}
	if st.Plugins == nil {
		cp := *st
		cp.Plugins = []PluginStatus{}
		st = &cp
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}
