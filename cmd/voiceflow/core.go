package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/greeting"
	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/persistence"
	"github.com/BaSui01/voiceflow/agent/render"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/agent/supervisor"
	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/pool"
)

// =============================================================================
// 🧩 编排核心装配
// =============================================================================

// core holds the orchestration components shared by serve and simulate.
type core struct {
	base       *definition.Registry
	scenario   *handoff.ReloadableScenario
	resolver   *handoff.Resolver
	supervisor *supervisor.Supervisor
	manager    *session.Manager
	store      persistence.Store

	writePool   *pool.Pool
	advisorPool *pool.Pool
	logger      *zap.Logger
}

type coreDeps struct {
	metrics *metrics.Collector
	tracer  trace.TracerProvider
	meter   metric.MeterProvider
	// store overrides cfg.Persistence when set.
	store persistence.Store
}

func newCore(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps coreDeps) (*core, error) {
	c := &core{logger: logger}

	base, err := definition.Load(ctx, definition.NewYAMLLoader(cfg.Agents.Dir), logger)
	if err != nil {
		return nil, err
	}
	c.base = base

	var scenario handoff.ScenarioProvider
	if cfg.Agents.ScenarioFile != "" {
		c.scenario, err = handoff.NewReloadableScenario(cfg.Agents.ScenarioFile, logger)
		if err != nil {
			return nil, err
		}
		for _, e := range c.scenario.Current().Check(base.Has) {
			logger.Warn("scenario references unknown agent", zap.Error(e))
		}
		scenario = c.scenario
	}

	c.store = deps.store
	if c.store == nil {
		c.store, err = persistence.NewStore(ctx, cfg.Persistence, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
	}

	c.writePool = pool.New(pool.Config{
		Workers:     cfg.Persistence.AsyncWorkers,
		QueueSize:   cfg.Persistence.AsyncQueueSize,
		TaskTimeout: cfg.Persistence.WriteTimeout,
	})
	writer := persistence.NewWriter(c.store, persistence.WriterOptions{
		Pool:      c.writePool,
		Timeout:   cfg.Persistence.WriteTimeout,
		KeyPrefix: cfg.Session.KeyPrefix,
		Metrics:   deps.metrics,
		Logger:    logger,
	})
	c.manager = session.NewManager(base, writer, session.ManagerConfig{
		TTL:                   cfg.Session.TTL,
		IdleTimeout:           cfg.Session.IdleTimeout,
		SweepInterval:         cfg.Session.SweepInterval,
		EagerRecords:          cfg.Session.EagerRecords,
		CheckpointConcurrency: cfg.Session.CheckpointConcurrency,
	}, logger, deps.metrics)

	greeter := greeting.NewSelector(render.NewTextRenderer(), logger)
	resolverOpts := []handoff.Option{
		handoff.WithBaselineKeys(cfg.Handoff.BaselineKeys...),
		handoff.WithLogger(logger),
		handoff.WithMetrics(deps.metrics),
	}
	if deps.tracer != nil {
		resolverOpts = append(resolverOpts, handoff.WithTracerProvider(deps.tracer))
	}
	c.resolver = handoff.NewResolver(scenario, greeter, resolverOpts...)

	c.advisorPool = pool.New(pool.Config{
		Workers:   cfg.Supervisor.Workers,
		QueueSize: cfg.Supervisor.QueueSize,
	})
	supOpts := []supervisor.Option{
		supervisor.WithPool(c.advisorPool),
		supervisor.WithDefaultTimeout(cfg.Supervisor.Timeout),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(deps.metrics),
	}
	if deps.tracer != nil {
		supOpts = append(supOpts, supervisor.WithTracerProvider(deps.tracer))
	}
	if deps.meter != nil {
		supOpts = append(supOpts, supervisor.WithMeterProvider(deps.meter))
	}
	c.supervisor = supervisor.New(supOpts...)

	return c, nil
}

// close checkpoints live sessions, drains the pools and closes the store.
func (c *core) close(ctx context.Context) error {
	err := c.manager.Close(ctx)
	c.writePool.Close()
	c.advisorPool.Close()
	if cerr := c.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
