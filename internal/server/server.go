// Package server wires the extraction pipeline behind an HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/krittin/tallyscan/internal/api"
	"github.com/krittin/tallyscan/internal/config"
	"github.com/krittin/tallyscan/internal/extract"
	"github.com/krittin/tallyscan/internal/feedback"
	"github.com/krittin/tallyscan/internal/gateway"
	"github.com/krittin/tallyscan/internal/schema"
	"github.com/krittin/tallyscan/internal/server/endpoints"
	"github.com/krittin/tallyscan/internal/svcctx"
	"github.com/krittin/tallyscan/internal/telemetry"
	"github.com/krittin/tallyscan/internal/validate"
)

// Server is the main tallyscan HTTP server. It owns the extraction
// orchestrator, the feedback correlator and the telemetry sink, and keeps
// orchestrator defaults in sync with the hot-reloaded configuration.
type Server struct {
	httpServer   *http.Server
	orchestrator *extract.Orchestrator
	correlator   *feedback.Correlator
	schemas      *schema.Registry
	sink         telemetry.Sink
	configMgr    *config.Manager
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Gateway overrides the model client (tests). When nil one is built
	// from the provider configuration.
	Gateway gateway.Client
	// Sink overrides the telemetry sink (tests).
	Sink telemetry.Sink
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	appCfg := cfg.ConfigManager.Get()

	schemas, err := schema.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load report schemas: %w", err)
	}

	sink := cfg.Sink
	if sink == nil {
		sink = buildSink(appCfg)
	}

	gw := cfg.Gateway
	if gw == nil {
		gw = gateway.NewOpenAIClient(gateway.OpenAIConfig{
			APIKey:  appCfg.Provider.ResolvedAPIKey(),
			BaseURL: appCfg.Provider.BaseURL,
			Timeout: appCfg.Provider.Timeout,
			Sink:    sink,
			Logger:  cfg.Logger,
		})
	}

	validator := validate.New(sink, cfg.Logger)
	orchestrator := extract.New(extract.Config{
		Gateway:   gw,
		Schemas:   schemas,
		Validator: validator,
		Defaults:  defaultsFrom(appCfg),
		Logger:    cfg.Logger,
	})
	correlator := feedback.New(sink, cfg.Logger)

	// Hot-reload updates generation defaults only. Provider and sink
	// credentials need a restart.
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		orchestrator.SetDefaults(defaultsFrom(c))
		cfg.Logger.Info("extraction defaults reloaded from config",
			"model", c.Defaults.Model,
			"schema_version", c.Defaults.SchemaVersion)
	})

	s := &Server{
		orchestrator: orchestrator,
		correlator:   correlator,
		schemas:      schemas,
		sink:         sink,
		configMgr:    cfg.ConfigManager,
		logger:       cfg.Logger,
	}

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// buildSink picks the telemetry sink for the configuration. Without a sink
// URL events stay in process, which keeps extraction usable offline.
func buildSink(cfg *config.Config) telemetry.Sink {
	if cfg.Telemetry.URL == "" {
		return telemetry.NewMemorySink()
	}
	return telemetry.NewHTTPSink(telemetry.HTTPSinkConfig{
		BaseURL: cfg.Telemetry.URL,
		APIKey:  cfg.Telemetry.ResolvedAPIKey(),
		Project: cfg.Telemetry.Project,
	})
}

func defaultsFrom(cfg *config.Config) extract.Defaults {
	return extract.Defaults{
		Model:         cfg.Defaults.Model,
		Temperature:   cfg.Defaults.Temperature,
		MaxTokens:     cfg.Defaults.MaxTokens,
		SchemaVersion: cfg.Defaults.SchemaVersion,
	}
}

// Start starts the server. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.services = &svcctx.Services{
		Orchestrator: s.orchestrator,
		Correlator:   s.correlator,
		Schemas:      s.schemas,
		Sink:         s.sink,
		ConfigMgr:    s.configMgr,
		Logger:       s.logger,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Orchestrator returns the extraction orchestrator.
func (s *Server) Orchestrator() *extract.Orchestrator {
	return s.orchestrator
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		ready := s.services != nil
		s.mu.RUnlock()
		if !ready {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
