// Package server exposes the image pipeline over HTTP.
//
// Routes:
//
//	GET /og/{name}            latest renderable version; {name} may end in ".png"
//	GET /og/{name}/{version}  one version; {version} may end in ".png"
//	GET /healthz              200 once the server is ready
//	GET /metrics              Prometheus metrics (optional)
//
// Images are served as image/png with a strong ETag derived from the render
// key. Errors carry only the status text; internal messages stay in the log.
package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/pipeline"
)

// Defaults for [Options].
const (
	DefaultAddr   = "127.0.0.1:8080"
	DefaultMaxAge = time.Hour

	shutdownTimeout = 10 * time.Second
)

// Renderer is the part of the pipeline the server needs.
type Renderer interface {
	Resolve(ctx context.Context, name string, sel crate.Selector) (*pipeline.Job, error)
	Run(ctx context.Context, job *pipeline.Job) (*pipeline.Result, error)
}

// Options configures a [Server].
type Options struct {
	Renderer Renderer
	Logger   *log.Logger
	// Metrics mounts GET /metrics.
	Metrics bool
	// MaxAge is sent in Cache-Control. Defaults to one hour.
	MaxAge time.Duration
}

// Server serves Open Graph images.
type Server struct {
	renderer Renderer
	logger   *log.Logger
	maxAge   time.Duration
	ready    atomic.Bool
	router   chi.Router
}

// New builds the router. The server reports ready immediately; call
// SetReady(false) first when it should start unready.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s := &Server{
		renderer: opts.Renderer,
		logger:   logger,
		maxAge:   maxAge,
	}
	s.ready.Store(true)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(recordMetrics)
	r.Use(middleware.GetHead)

	r.Get("/og/{name}", s.handleImage)
	r.Get("/og/{name}/{version}", s.handleImage)
	r.Get("/healthz", s.handleHealth)
	r.NotFound(statusHandler(http.StatusNotFound))
	r.MethodNotAllowed(statusHandler(http.StatusMethodNotAllowed))
	if opts.Metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}
	s.router = r
	return s
}

// SetReady changes what /healthz reports.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully, letting in-flight requests finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
