// Package server exposes generation, cache maintenance and generated files
// over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/budget"
	"github.com/pario-ai/gherkit/pkg/cache"
	"github.com/pario-ai/gherkit/pkg/metrics"
	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/scenario"
	"github.com/pario-ai/gherkit/pkg/tracker"
)

// Name and Version identify the service in the index response.
const (
	Name    = "gherkit"
	Version = "1.0.0"
)

// Generator runs one generation request.
type Generator interface {
	Run(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
}

// Options configures a Server.
type Options struct {
	Listen           string
	APIKeyConfigured bool
	ReadTimeout      time.Duration
	ShutdownTimeout  time.Duration
	MaxUploadBytes   int64
	// SweepInterval enables background removal of expired cache entries.
	SweepInterval time.Duration
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Server is the gherkit HTTP API. Cache, Tracker and Budget may be nil.
type Server struct {
	opts    Options
	gen     Generator
	cache   *cache.Cache
	writer  *scenario.Writer
	tracker tracker.Tracker
	budget  *budget.Enforcer
	logger  *zap.Logger
	metrics *metrics.Metrics
	handler http.Handler
}

// New creates a Server wired with its dependencies.
func New(gen Generator, c *cache.Cache, w *scenario.Writer, t tracker.Tracker, b *budget.Enforcer, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 1 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:    opts,
		gen:     gen,
		cache:   c,
		writer:  w,
		tracker: t,
		budget:  b,
		logger:  logger.With(zap.String("component", "server")),
		metrics: opts.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/generate/auto", s.handleGenerateAuto)
	mux.HandleFunc("POST /api/generate/custom", s.handleGenerateCustom)
	mux.HandleFunc("POST /api/generate/custom/file", s.handleGenerateCustomFile)
	mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /api/cache/clear", s.handleCacheClear)
	mux.HandleFunc("GET /api/files", s.handleFiles)
	mux.HandleFunc("GET /api/download/{filename}", s.handleDownload)
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.handler = chain(mux, recovery(s.logger), requestID(), accessLog(s.logger, s.metrics))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Expired cache entries are swept in the background while it runs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.opts.ReadTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.cache.Sweep(sweepCtx, s.opts.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gherkit api listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
