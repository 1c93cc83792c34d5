package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/metrics"
)

// Controller is what the bridge drives. *rotel.Client implements it.
type Controller interface {
	SendNamed(ctx context.Context, name string) error
	SetSource(ctx context.Context, fn string) error
	SetRecord(ctx context.Context, fn string) error
	SetLabel(ctx context.Context, fn, label string) error
	ValidCommands() []string
	BasicSources() []string
	Display() *display.State
}

// Config holds the server configuration
type Config struct {
	Addr      string
	RateLimit float64 // Command requests per second, 0 disables limiting
	Burst     int

	// CommandTimeout bounds a single API call. Label programming sends many
	// paced commands, so this is generous.
	CommandTimeout time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithMetrics exposes reg on /metrics and records HTTP and websocket metrics
// in m
func WithMetrics(reg *prometheus.Registry, m *metrics.Metrics) Option {
	return func(s *Server) {
		s.registry = reg
		s.metrics = m
	}
}

// Server is the HTTP and websocket bridge to one receiver
type Server struct {
	config   Config
	ctrl     Controller
	engine   *gin.Engine
	srv      *http.Server
	hub      *Hub
	limiter  *RateLimiter
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	unsub    func()
}

// New creates a Server and subscribes its websocket hub to the controller's
// display state
func New(config Config, ctrl Controller, opts ...Option) *Server {
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 30 * time.Second
	}

	s := &Server{
		config: config,
		ctrl:   ctrl,
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.RateLimit > 0 {
		s.limiter = NewRateLimiter(config.RateLimit, config.Burst)
	}
	s.hub = NewHub(ctrl.Display().Snapshot, s.metrics)
	s.unsub = ctrl.Display().Subscribe(s.hub)
	s.engine = s.routes()
	s.srv = &http.Server{
		Addr:              config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Listen binds the configured address. It is split from Serve so callers can
// learn the bound port (for mDNS) before serving.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	logging.Info("Server listening for connections", zap.String("addr", ln.Addr().String()))
	return ln, nil
}

// Serve serves on ln until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	if s.unsub != nil {
		s.unsub()
	}
	s.hub.Close()

	if err := s.srv.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		return s.srv.Close()
	}
	logging.Info("All connections closed gracefully")
	return nil
}

// Port returns the TCP port of a listener address, or 0
func Port(addr net.Addr) int {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}
