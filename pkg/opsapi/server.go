/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package opsapi serves the operator endpoints: liveness, readiness,
// counters, Prometheus metrics and device last-seen lookups.
package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/stats"
)

const (
	readyCheckTimeout = 2 * time.Second
	readHeaderTimeout = 5 * time.Second
)

var errServerRunning = errors.New("ops server already running")

// Check returns nil when the dependency it covers is usable.
type Check func(ctx context.Context) error

// LastSeenReader looks up device heartbeats. A nil record means the device
// never reported.
type LastSeenReader interface {
	LastSeen(ctx context.Context, tenantID, deviceID string) (*models.LastSeenRecord, error)
}

// Config wires a Server.
type Config struct {
	ListenAddr string
	Stats      *stats.Collector
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	// Checks are all run by /ready, keyed by the name reported on failure.
	Checks   map[string]Check
	LastSeen LastSeenReader
	Logger   logger.Logger
}

// Server is the ops HTTP server.
type Server struct {
	cfg     Config
	logger  logger.Logger
	handler http.Handler

	mu  sync.Mutex
	srv *http.Server
}

func NewServer(cfg *Config) *Server {
	s := &Server{cfg: *cfg, logger: cfg.Logger}
	if s.logger == nil {
		s.logger = logger.NewTestLogger()
	}

	s.handler = s.routes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/stats", s.handleStats)

	if s.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	if s.cfg.LastSeen != nil {
		r.Get("/devices/{tenantID}/{deviceID}/last-seen", s.handleLastSeen)
	}

	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errServerRunning
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("ops api listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	srv := s.srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Ops API server failed")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Ops API listening")

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Ready    bool              `json:"ready"`
	Failures map[string]string `json:"failures,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.cfg.Checks))
	for name := range s.cfg.Checks {
		names = append(names, name)
	}

	sort.Strings(names)

	resp := readyResponse{Ready: true}

	for _, name := range names {
		if err := s.cfg.Checks[name](ctx); err != nil {
			if resp.Failures == nil {
				resp.Failures = make(map[string]string)
			}

			resp.Ready = false
			resp.Failures[name] = err.Error()
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Stats == nil {
		writeJSON(w, http.StatusOK, stats.Snapshot{})
		return
	}

	writeJSON(w, http.StatusOK, s.cfg.Stats.Snapshot())
}

func (s *Server) handleLastSeen(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	deviceID := chi.URLParam(r, "deviceID")

	rec, err := s.cfg.LastSeen.LastSeen(r.Context(), tenantID, deviceID)

	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Str("device_id", deviceID).Msg("Last-seen lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	case rec == nil:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "device has not reported"})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
