package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

// Server is the HTTP listener with an optional cap on concurrent
// connections.
type Server struct {
	http           *http.Server
	maxConnections int
	logger         *slog.Logger
	listener       net.Listener
	ready          chan struct{}
}

// New creates a Server on addr serving handler.
func New(addr string, handler http.Handler, maxConnections int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		maxConnections: maxConnections,
		logger:         logger,
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Valid after Ready.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.http.Addr
	}
	return s.listener.Addr().String()
}

// Run listens and serves until ctx ends, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	if s.maxConnections > 0 {
		ln = netutil.LimitListener(ln, s.maxConnections)
	}
	s.listener = ln
	close(s.ready)

	s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "max_connections", s.maxConnections)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
