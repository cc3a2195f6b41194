package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/api/handlers"
	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/server"
	"github.com/BaSui01/voiceflow/internal/telemetry"
	"github.com/BaSui01/voiceflow/internal/tlsutil"
)

// publicPaths skip authentication.
var publicPaths = []string{"/health", "/ready", "/version"}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 是 VoiceFlow 的主服务器：管理 API、metrics 端口与编排核心
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	core      *core
	telemetry *telemetry.Providers
	metrics   *metrics.Collector
	registry  *prometheus.Registry
	watcher   *config.FileWatcher
	transport *handlers.TransportHandler

	apiServer     *server.Manager
	metricsServer *server.Manager

	cancel context.CancelFunc
	done   chan struct{}
}

// Serve runs the server until SIGINT or SIGTERM, then shuts down.
func Serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		s.Shutdown()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-s.apiServer.Errors():
	case runErr = <-s.metricsServer.Errors():
	}
	s.Shutdown()
	return runErr
}

// NewServer assembles the orchestration core and HTTP handlers.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger, done: make(chan struct{})}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.NewCollector("voiceflow", s.registry, logger)

	s.core, err = newCore(ctx, cfg, logger, coreDeps{
		metrics: s.metrics,
		tracer:  providers.TracerProvider(),
		meter:   providers.MeterProvider(),
	})
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	if cfg.Agents.WatchScenario {
		s.watcher, err = config.NewFileWatcher([]string{cfg.Agents.ScenarioFile},
			config.WithPollInterval(cfg.Agents.WatchInterval),
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to watch scenario: %w", err)
		}
		s.watcher.OnChange(s.onScenarioChange)
	}
	return s, nil
}

func (s *Server) onScenarioChange(e config.FileEvent) {
	if e.Op == config.FileOpRemove {
		s.logger.Warn("scenario file removed, keeping current scenario", zap.String("path", e.Path))
		return
	}
	if err := s.core.scenario.Reload(); err != nil {
		return
	}
	for _, cerr := range s.core.scenario.Current().Check(s.core.base.Has) {
		s.logger.Warn("scenario references unknown agent", zap.Error(cerr))
	}
}

// Routes builds the API mux.
func (s *Server) Routes() *http.ServeMux {
	c := s.core
	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewPingCheck("session_store", c.store.Ping))

	agents := handlers.NewAgentHandler(c.base, s.logger)
	sessions := handlers.NewSessionHandler(c.manager, s.logger, handlers.WithAdminRole(s.cfg.Auth.AdminRole))
	handoffs := handlers.NewHandoffHandler(c.manager, c.resolver, s.logger)
	advisories := handlers.NewAdvisoryHandler(c.manager, c.supervisor, s.cfg.Supervisor.Advisors, s.cfg.Supervisor.Timeout, s.logger)
	s.transport = handlers.NewTransportHandler(c.manager, c.resolver, c.supervisor, nil, handlers.TransportConfig{
		Mode:            s.cfg.Agents.Mode,
		Advisors:        s.cfg.Supervisor.Advisors,
		AdvisoryTimeout: s.cfg.Supervisor.Timeout,
		OriginPatterns:  s.cfg.Server.WebSocketOrigins,
	}, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	mux.HandleFunc("GET /api/v1/agents", agents.HandleList)
	mux.HandleFunc("GET /api/v1/agents/{name}", agents.HandleGet)

	mux.HandleFunc("POST /api/v1/sessions", sessions.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sessions.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.HandleEnd)
	mux.HandleFunc("GET /api/v1/sessions/{id}/agents/{name}", sessions.HandleGetAgent)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}/agents/{name}", sessions.HandlePatchAgent)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/agents/{name}/overrides", sessions.HandleResetAgent)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/overrides", sessions.HandleResetAll)
	mux.HandleFunc("POST /api/v1/sessions/{id}/custom-agents", sessions.HandleCreateCustomAgent)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/custom-agents/{name}", sessions.HandleDeleteCustomAgent)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/experiment", sessions.HandleSetExperiment)
	mux.HandleFunc("POST /api/v1/sessions/{id}/checkpoint", sessions.HandleCheckpoint)

	mux.HandleFunc("POST /api/v1/sessions/{id}/start", handoffs.HandleStart)
	mux.HandleFunc("POST /api/v1/sessions/{id}/handoff", handoffs.HandleHandoff)
	mux.HandleFunc("POST /api/v1/sessions/{id}/advisories", advisories.HandleAdvise)
	mux.HandleFunc("GET /api/v1/sessions/{id}/transport", s.transport.HandleConnect)
	return mux
}

// Handler wraps Routes in the middleware chain.
func (s *Server) Handler(ctx context.Context) http.Handler {
	return Chain(s.Routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(s.telemetry.TracerProvider()),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Authenticate(s.cfg.Auth, publicPaths, s.logger),
		MetricsMiddleware(s.metrics),
	)
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start launches the background loops and both HTTP servers.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	go func() {
		defer close(s.done)
		if s.watcher != nil {
			go func() {
				if err := s.watcher.Run(runCtx); err != nil {
					s.logger.Error("scenario watcher stopped", zap.Error(err))
				}
			}()
		}
		s.core.manager.Run(runCtx)
	}()

	var tlsConfig *tls.Config
	if s.cfg.Server.TLSCertFile != "" {
		var err error
		tlsConfig, err = tlsutil.ServerTLSConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			return err
		}
	}

	s.apiServer = server.NewManager(s.Handler(runCtx), server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLS:             tlsConfig,
	}, s.logger)
	if err := s.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	s.metricsServer = server.NewManager(metricsMux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("api_addr", s.apiServer.Addr()),
		zap.String("metrics_addr", s.metricsServer.Addr()),
		zap.Bool("tls", tlsConfig != nil),
		zap.Bool("scenario_watch", s.watcher != nil),
	)
	return nil
}

// Shutdown stops accepting requests, checkpoints live sessions and flushes
// telemetry. It is bounded by server.shutdown_timeout.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = shutdownGrace
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Hijacked transport connections are not tracked by http.Server.
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Error("transport close error", zap.Error(err))
		}
	}
	for _, m := range []*server.Manager{s.apiServer, s.metricsServer} {
		if m == nil {
			continue
		}
		if err := m.Shutdown(ctx); err != nil {
			s.logger.Error("server shutdown error", zap.Error(err))
		}
	}

	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	if err := s.core.close(ctx); err != nil {
		s.logger.Error("session checkpoint on shutdown failed", zap.Error(err))
	}
	if err := s.telemetry.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
	s.logger.Info("Graceful shutdown completed")
}

// shutdownGrace is used when the configured timeout is zero.
const shutdownGrace = 15 * time.Second
