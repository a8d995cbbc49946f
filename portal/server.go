// Package portal is the HTTP side of the captive portal.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultAddr is where the portal listens when no address is configured.
const DefaultAddr = ":80"

const shutdownTimeout = 5 * time.Second

// Server is a restartable HTTP listener. Routes survive Stop, so a portal
// that is closed and reopened keeps answering the same endpoints.
type Server struct {
	addr   string
	logger *slog.Logger

	mux    *http.ServeMux
	routes map[string]struct{}

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	done chan struct{}
}

func New(addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		logger: logger,
		mux:    http.NewServeMux(),
		routes: map[string]struct{}{},
	}
}

// Handle registers h for requests matching method and path. Path uses
// http.ServeMux pattern syntax.
func (s *Server) Handle(method, path string, h http.HandlerFunc) error {
	pattern := method + " " + path
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[pattern]; ok {
		return fmt.Errorf("%s: %w", pattern, ErrAlreadyRegistered)
	}
	s.mux.HandleFunc(pattern, h)
	s.routes[pattern] = struct{}{}
	s.logger.Debug("registered route", "pattern", pattern)
	return nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.logRequests(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("portal stopped serving", "error", err)
		}
	}()

	s.srv, s.ln, s.done = srv, ln, done
	s.logger.Info("portal listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.ln, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return ErrNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-done
	if err != nil {
		return fmt.Errorf("shutdown portal: %w", err)
	}
	s.logger.Info("portal stopped")
	return nil
}

// Running reports whether the listener is up.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Addr returns the bound address while running, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("portal request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
