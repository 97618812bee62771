package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the catalog HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler, for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and settings needed to build a Server.
type Config struct {
	Broker   BrokerService
	Registry RegistryService
	Index    HealthChecker
	Policy   PolicyHealthChecker
	Logger   *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string

	// ExtraMiddlewares wrap the root handler outermost, before requestID
	// assignment, in registration order (first-registered is outermost).
	// Lets embedders (see the root catalog.App) add cross-cutting behavior
	// without forking this package.
	ExtraMiddlewares []func(http.Handler) http.Handler
}

// New builds a Server with every route and middleware wired.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Broker:              cfg.Broker,
		Registry:            cfg.Registry,
		Index:               cfg.Index,
		Policy:              cfg.Policy,
		Logger:              cfg.Logger,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("POST /v1/sources", http.HandlerFunc(h.HandleRegisterSource))
	mux.Handle("POST /v1/query", http.HandlerFunc(h.HandleQuery))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Middleware chain (outermost executes first): requestID → security
	// headers → CORS → tracing → logging → recovery → mux. Grounded on the
	// teacher's internal/server/server.go chain, minus JWT auth and rate
	// limiting (spec.md Non-goals exclude caller authentication; no rate
	// limiter is part of this spec's scope).
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.ExtraMiddlewares) - 1; i >= 0; i-- {
		handler = cfg.ExtraMiddlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
