// Package health serves the liveness and readiness endpoints of the bot.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Check reports whether one dependency is usable. It must return quickly.
type Check func(ctx context.Context) error

// Server provides the health endpoints:
//   - /live: the process is up (always 200)
//   - /ready: startup finished and every check passes (200, else 503)
//   - /health: per-check status, 200 when all checks pass
//
// Example usage:
//
//	srv := health.NewServer(":9091", logger)
//	srv.AddCheck("database", func(ctx context.Context) error { return db.PingContext(ctx) })
//	go func() { _ = srv.Start(ctx) }()
//	srv.SetReady(true)
type Server struct {
	addr    string
	logger  *slog.Logger
	isReady atomic.Bool
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Check
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewServer creates a server that is not ready yet.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		logger:  logger,
		timeout: 2 * time.Second,
		checks:  make(map[string]Check),
	}
}

// AddCheck registers a named dependency check.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// SetReady marks startup as finished, or the server as draining.
func (s *Server) SetReady(ready bool) {
	s.isReady.Store(ready)
	s.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleLiveness)
	mux.HandleFunc("/ready", s.handleReadiness)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start serves until ctx is cancelled, then shuts down within 5 seconds.
// It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("health server starting", slog.String("addr", s.addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("health server shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed

	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// runChecks returns the failing check messages keyed by name.
func (s *Server) runChecks(ctx context.Context) map[string]string {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(map[string]string, len(names))
	for i, name := range names {
		if err := checks[i](ctx); err != nil {
			results[name] = err.Error()
		} else {
			results[name] = "ok"
		}
	}
	return results
}

func healthy(results map[string]string) bool {
	for _, r := range results {
		if r != "ok" {
			return false
		}
	}
	return true
}

func (s *Server) write(w http.ResponseWriter, code int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, response{Status: "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		s.write(w, http.StatusServiceUnavailable, response{Status: "not ready"})
		return
	}
	results := s.runChecks(r.Context())
	if !healthy(results) {
		s.write(w, http.StatusServiceUnavailable, response{Status: "not ready", Checks: results})
		return
	}
	s.write(w, http.StatusOK, response{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := s.runChecks(r.Context())
	if !healthy(results) {
		s.write(w, http.StatusServiceUnavailable, response{Status: "degraded", Checks: results})
		return
	}
	s.write(w, http.StatusOK, response{Status: "ok", Checks: results})
}
