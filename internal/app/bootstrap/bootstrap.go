package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	governanceengine "agora/contexts/dao-governance/governance-engine"
	"agora/contexts/dao-governance/governance-engine/adapters/memory"
	postgresadapter "agora/contexts/dao-governance/governance-engine/adapters/postgres"
	"agora/contexts/dao-governance/governance-engine/adapters/webhook"
	workerapp "agora/contexts/dao-governance/governance-engine/application/workers"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	"agora/contexts/dao-governance/governance-engine/ports"
	"agora/internal/platform/config"
	"agora/internal/platform/db"
	"agora/internal/platform/httpserver"
	"agora/internal/platform/messaging"
	"agora/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	powerSupply  workerapp.PowerSnapshotConsumer
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, cfg.DefaultEligiblePower, logger)
	module := governanceengine.NewModule(governanceengine.Dependencies{
		Proposals:   repo,
		Ledger:      repo,
		Oracle:      repo,
		Executor:    buildExecutor(cfg, logger),
		Outbox:      repo,
		Clock:       postgresadapter.SystemClock{},
		IDGen:       postgresadapter.UUIDGenerator{},
		Defaults:    defaultParams(cfg),
		ExecTimeout: cfg.ExecutionTimeout,
		Logger:      logger,
	})

	server := httpserver.New(module, metrics.New(), logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, cfg.DefaultEligiblePower, logger)
	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		powerSupply: workerapp.PowerSnapshotConsumer{
			Subscriber:    kafka,
			Dedup:         repo,
			Snapshots:     repo,
			Clock:         postgresadapter.SystemClock{},
			ConsumerGroup: cfg.PowerSupplyConsumerGroup,
			DedupTTL:      cfg.PowerSupplyDedupRetention,
			Disabled:      !cfg.EnablePowerSupplyConsumer,
			Logger:        logger,
		},
		pollInterval: cfg.OutboxRelayInterval,
		logger:       logger,
	}, nil
}

func buildExecutor(cfg config.Config, logger *slog.Logger) ports.DecisionExecutor {
	if cfg.ExecutionWebhookURL != "" {
		return webhook.NewExecutor(cfg.ExecutionWebhookURL, nil, logger)
	}
	return memory.NewStubExecutor()
}

func defaultParams(cfg config.Config) entities.GovernanceParams {
	return entities.GovernanceParams{
		QuorumThresholdPct:   cfg.QuorumThresholdPct,
		ApprovalThresholdPct: cfg.ApprovalThresholdPct,
		VotingPeriod:         cfg.VotingPeriod,
	}
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return w.powerSupply.Start(groupCtx)
	})

	group.Go(func() error {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			if err := w.outboxRelay.RunOnce(groupCtx); err != nil {
				return err
			}
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return group.Wait()
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
