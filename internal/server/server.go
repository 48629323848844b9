// Package server exposes the provider router over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/llmgate/internal/metrics"
	"github.com/allaspectsdev/llmgate/internal/router"
	"github.com/allaspectsdev/llmgate/internal/store"
	"github.com/allaspectsdev/llmgate/internal/tracing"
)

// Router is the subset of *router.Router the API serves.
type Router interface {
	Complete(ctx context.Context, req router.Request) (*router.Result, error)
	TestAllProviders(ctx context.Context) []router.TestReport
	SetCredential(id, secret string) error
	Enable(id string) error
	Disable(id string) error
	Snapshot() router.Snapshot
	Provider(id string) (router.ProviderStatus, error)
}

// AttemptLog is the read side of the attempt store.
type AttemptLog interface {
	ListAttempts(ctx context.Context, provider string, limit, offset int) ([]*store.Attempt, error)
	ProviderTotals(ctx context.Context, since time.Time) ([]store.ProviderTotals, error)
}

// Options configures a Server. Zero-value timeouts leave the corresponding
// http.Server field at its default (no timeout).
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64

	// AuthToken enables bearer authentication on /v1 when non-empty.
	AuthToken string
	// Tracing adds the OpenTelemetry HTTP middleware.
	Tracing bool

	// Attempts and Metrics are optional.
	Attempts AttemptLog
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Server is the llmgate HTTP API. It binds the chi router to the configured
// address and provides graceful shutdown support.
type Server struct {
	router  chi.Router
	api     *API
	httpSrv *http.Server
}

// NewServer builds the route table for r.
func NewServer(r Router, opts Options) *Server {
	api := &API{
		router:      r,
		attempts:    opts.Attempts,
		logger:      opts.Logger.With().Str("component", "server").Logger(),
		maxBodySize: opts.MaxBodySize,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	if opts.Tracing {
		mux.Use(tracing.HTTPMiddleware)
	}

	mux.Get("/health", api.HandleHealth)
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Route("/v1", func(v1 chi.Router) {
		if opts.AuthToken != "" {
			v1.Use(AuthMiddleware(opts.AuthToken))
		}
		v1.Post("/complete", api.HandleComplete)
		v1.Get("/providers", api.HandleProviders)
		v1.Post("/providers/test", api.HandleTestProviders)
		v1.Get("/providers/{id}", api.HandleProvider)
		v1.Put("/providers/{id}/credential", api.HandleSetCredential)
		v1.Post("/providers/{id}/enable", api.HandleEnable)
		v1.Post("/providers/{id}/disable", api.HandleDisable)
		v1.Get("/usage", api.HandleUsage)
		v1.Get("/attempts", api.HandleAttempts)
	})

	return &Server{
		router: mux,
		api:    api,
		httpSrv: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Handler returns the root handler, useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections on the configured address.
// It blocks until the server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
