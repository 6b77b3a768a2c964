// Package stub serves a stand-in for the reference service: GET /hello
// answers "Hello <name>", with status and Prometheus metrics routes.
package stub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultName is greeted when the request carries no name.
const DefaultName = "world"

const shutdownTimeout = 10 * time.Second

// Config configures the stub.
type Config struct {
	// Addr is the listen address of the public routes
	Addr string `envconfig:"STUB_ADDR" default:":8080"`

	// InternalAddr serves /internal/status and /metrics separately when set;
	// otherwise they share Addr
	InternalAddr string `envconfig:"STUB_INTERNAL_ADDR"`

	// Latency delays every /hello response
	Latency time.Duration `envconfig:"STUB_LATENCY" default:"0s"`
}

// Server is the stub reference service.
type Server struct {
	config   Config
	logger   *zap.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// New creates a stub server with its own metrics registry.
func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hello_requests_total",
		Help: "Number of /hello requests served.",
	}, []string{"status"})
	registry.MustRegister(requests)

	return &Server{
		config:   cfg,
		logger:   logger,
		registry: registry,
		requests: requests,
	}
}

// Registry returns the registry backing /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Router returns the public routes, plus the internal ones when no
// separate internal address is configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/hello", s.handleHello)
	if s.config.InternalAddr == "" {
		s.mountInternal(r)
	}
	return r
}

// InternalRouter returns the status and metrics routes.
func (s *Server) InternalRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.mountInternal(r)
	return r
}

func (s *Server) mountInternal(r chi.Router) {
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/internal/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	if s.config.Latency > 0 {
		timer := time.NewTimer(s.config.Latency)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			s.requests.WithLabelValues("canceled").Inc()
			return
		}
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = DefaultName
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Hello %s", name)
	s.requests.WithLabelValues("200").Inc()
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	var internalLn net.Listener
	if s.config.InternalAddr != "" {
		internalLn, err = net.Listen("tcp", s.config.InternalAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.config.InternalAddr, err)
		}
	}

	return s.Serve(ctx, ln, internalLn)
}

// Serve serves on the given listeners until ctx is cancelled.
// internalLn may be nil.
func (s *Server) Serve(ctx context.Context, ln, internalLn net.Listener) error {
	servers := []*http.Server{{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}}
	listeners := []net.Listener{ln}
	if internalLn != nil {
		servers = append(servers, &http.Server{Handler: s.InternalRouter(), ReadHeaderTimeout: 10 * time.Second})
		listeners = append(listeners, internalLn)
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		s.logger.Info("stub server starting",
			zap.String("addr", listeners[i].Addr().String()),
			zap.Duration("latency", s.config.Latency),
		)
		go func(srv *http.Server, l net.Listener) {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv, listeners[i])
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("stub server shutdown", zap.Error(err))
		}
	}
	s.logger.Info("stub server stopped")

	if serveErr != nil {
		return fmt.Errorf("stub server failed: %w", serveErr)
	}
	return nil
}
