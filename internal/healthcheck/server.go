// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package healthcheck serves liveness, readiness and component status for
// the long-running airharvest commands.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultPort = 8090

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

type Config struct {
	Port  int  `mapstructure:"port"`
	Pprof bool `mapstructure:"pprof"`
}

// Response is the body of /healthz, /readyz and /livez.
type Response struct {
	Healthy bool `json:"healthy"`
}

// StatusReport is the body of /statusz.
type StatusReport struct {
	Status     string          `json:"status"`
	Ready      bool            `json:"ready"`
	Conditions map[string]bool `json:"conditions"`
	Components map[string]any  `json:"components,omitempty"`
}

// Server is safe for concurrent use. Components update it while it serves.
type Server struct {
	port       int
	pprof      bool
	status     atomic.Int32
	mu         sync.Mutex
	conditions map[string]bool
	reporters  map[string]func() any
	server     *http.Server
	logger     *slog.Logger
}

func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	return &Server{
		port:       config.Port,
		pprof:      config.Pprof,
		conditions: make(map[string]bool),
		reporters:  make(map[string]func() any),
		logger:     slog.Default().With(slog.String("component", "healthcheck")),
	}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	s.logger.Debug("Health status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// SetReadyCondition records a named readiness gate. Every gate must be true
// and the status healthy for IsReady to report true.
func (s *Server) SetReadyCondition(name string, ready bool) {
	s.mu.Lock()
	s.conditions[name] = ready
	s.mu.Unlock()
	s.logger.Debug("Ready condition updated", slog.String("condition", name), slog.Bool("ready", ready))
}

// Report registers fn to be rendered under name in /statusz.
func (s *Server) Report(name string, fn func() any) {
	s.mu.Lock()
	s.reporters[name] = fn
	s.mu.Unlock()
}

func (s *Server) IsReady() bool {
	if s.GetStatus() != StatusHealthy {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ok := range s.conditions {
		if !ok {
			return false
		}
	}
	return true
}

func (s *Server) snapshot() StatusReport {
	s.mu.Lock()
	conditions := make(map[string]bool, len(s.conditions))
	for k, v := range s.conditions {
		conditions[k] = v
	}
	names := make([]string, 0, len(s.reporters))
	for name := range s.reporters {
		names = append(names, name)
	}
	reporters := make(map[string]func() any, len(s.reporters))
	for k, v := range s.reporters {
		reporters[k] = v
	}
	s.mu.Unlock()

	report := StatusReport{
		Status:     s.GetStatus().String(),
		Ready:      s.IsReady(),
		Conditions: conditions,
	}
	sort.Strings(names)
	for _, name := range names {
		if report.Components == nil {
			report.Components = make(map[string]any, len(names))
		}
		report.Components[name] = reporters[name]()
	}
	return report
}

// Handler exposes the endpoints without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeProbe(w, s.GetStatus() == StatusHealthy)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeProbe(w, s.IsReady())
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		s.writeProbe(w, s.GetStatus() != StatusUnhealthy)
	})
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, s.snapshot())
	})
	if s.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (s *Server) writeProbe(w http.ResponseWriter, ok bool) {
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, Response{Healthy: ok})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode health check response", slog.Any("error", err))
	}
}

// Start binds the port and serves until ctx ends. A bind failure is returned
// immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health check listen: %w", err)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("Starting health check server", slog.Int("port", s.port), slog.Bool("pprof", s.pprof))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Stopping health check server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
