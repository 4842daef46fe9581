// Package server assembles the HTTP surface: routes, middleware chain,
// graceful shutdown with draining, and hot configuration reload.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"helios-hq/relay/pkg/config"
	"helios-hq/relay/pkg/dispatch"
	"helios-hq/relay/pkg/idempotency"
	"helios-hq/relay/pkg/limits/ratelimit"
	"helios-hq/relay/pkg/providerfactory"
	"helios-hq/relay/pkg/providers"
	"helios-hq/relay/pkg/proxy/handlers"
	"helios-hq/relay/pkg/proxy/middleware"
	"helios-hq/relay/pkg/routing"
	"helios-hq/relay/pkg/routing/strategies"
	"helios-hq/relay/pkg/telemetry/metrics"
	"helios-hq/relay/pkg/telemetry/tracing"
)

// Server is the assembled gateway.
type Server struct {
	cfg      *config.Config
	registry *providers.Registry
	runtime  *dispatch.Runtime
	limiter  *ratelimit.Limiter
	pipeline *dispatch.Pipeline
	idem     idempotency.Store
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer
	http     *http.Server
}

// New assembles every component from the configuration. tracer may be nil
// to skip span creation entirely.
func New(cfg *config.Config, tracer *tracing.Tracer) (*Server, error) {
	snap, err := providerfactory.BuildSnapshot(cfg.Descriptors(), cfg.ModelAliases)
	if err != nil {
		return nil, err
	}

	registry := providers.NewRegistry(snap)
	runtime := dispatch.NewRuntime()
	runtime.SyncProviders(snap)

	limiter := ratelimit.NewLimiter(cfg.RateLimits())

	engine, err := routing.NewEngine(cfg.RoutingConfig(), strategies.Registry())
	if err != nil {
		snap.Close()
		return nil, err
	}

	m := metrics.New(metrics.Config{Namespace: cfg.Telemetry.Metrics.Namespace})

	var idem idempotency.Store
	switch cfg.Idempotency.Backend {
	case "sqlite":
		idem, err = idempotency.NewSQLiteStore(cfg.Idempotency.Path)
		if err != nil {
			snap.Close()
			return nil, err
		}
	default:
		idem = idempotency.NewMemoryStore()
	}

	pipeline := dispatch.NewPipeline(registry, engine, limiter, runtime, m.Dispatch)

	s := &Server{
		cfg:      cfg,
		registry: registry,
		runtime:  runtime,
		limiter:  limiter,
		pipeline: pipeline,
		idem:     idem,
		metrics:  m,
		tracer:   tracer,
	}

	s.http = &http.Server{
		Addr:           cfg.Server.ListenAddress,
		Handler:        s.buildRoutes(),
		ReadTimeout:    cfg.Server.ReadTimeout.Std(),
		WriteTimeout:   cfg.Server.WriteTimeout.Std(),
		IdleTimeout:    cfg.Server.IdleTimeout.Std(),
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return s, nil
}

// buildRoutes wires the endpoint handlers behind the middleware chain.
func (s *Server) buildRoutes() http.Handler {
	auth := middleware.NewAuth(s.cfg.Auth.Credentials)

	chat := handlers.NewChatHandler(s.pipeline, s.limiter, s.idem)
	models := handlers.NewModelsHandler(s.registry)
	ready := handlers.NewReadinessHandler(s.registry, s.runtime)

	mux := http.NewServeMux()
	mux.Handle("/v1/chat/completions", auth.Middleware(
		middleware.Timeout(s.cfg.Server.RequestTimeout.Std())(chat)))
	mux.Handle("/v1/models", auth.Middleware(models))
	mux.Handle("/health/live", handlers.LivenessHandler{})
	mux.Handle("/health/ready", ready)
	mux.Handle("/metrics", s.metrics.Handler())

	// Outermost first: recovery wraps everything, then request id, then
	// the access log.
	var handler http.Handler = mux
	handler = middleware.Logging(s.metrics.Request)(handler)
	if s.tracer != nil {
		handler = s.tracer.Middleware(handler)
	}
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}

// Pipeline exposes the dispatch pipeline (used by maintenance wiring).
func (s *Server) Pipeline() *dispatch.Pipeline {
	return s.pipeline
}

// Registry exposes the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Runtime exposes the dispatch runtime.
func (s *Server) Runtime() *dispatch.Runtime {
	return s.runtime
}

// Limiter exposes the rate limiter.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// IdempotencyStore exposes the replay store.
func (s *Server) IdempotencyStore() idempotency.Store {
	return s.idem
}

// ApplyConfig builds a new provider snapshot from cfg and swaps it in.
// Breakers and health state survive for providers that keep their name;
// the old snapshot's connections close after a grace period so in-flight
// requests finish on their generation.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	snap, err := providerfactory.BuildSnapshot(cfg.Descriptors(), cfg.ModelAliases)
	if err != nil {
		return err
	}

	s.runtime.SyncProviders(snap)
	old := s.registry.Swap(snap)

	go func() {
		// In-flight requests hold the old snapshot pointer; give the
		// longest-lived of them time to finish before closing its pools.
		time.Sleep(2 * time.Minute)
		if err := old.Close(); err != nil {
			slog.Warn("closing previous provider generation", "error", err)
		}
	}()

	slog.Info("provider registry swapped", "providers", len(snap.Names()))
	return nil
}

// ListenAndServe runs the HTTP listener until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("relay listening", "address", s.cfg.Server.ListenAddress)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains and stops the server: new requests are rejected with a
// draining error, in-flight requests get ShutdownTimeout to finish, then
// the listener closes and stragglers are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.runtime.StartDraining()
	slog.Info("draining", "active_requests", s.runtime.ActiveRequests())

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	remaining := s.runtime.Drain(drainCtx)
	if remaining > 0 {
		slog.Warn("forcing shutdown with requests in flight", "active", remaining)
	}

	err := s.http.Shutdown(drainCtx)

	s.registry.Current().Close()
	if s.idem != nil {
		s.idem.Close()
	}
	return err
}
