package governanceengine

import (
	"log/slog"
	"time"

	httpadapter "agora/contexts/dao-governance/governance-engine/adapters/http"
	"agora/contexts/dao-governance/governance-engine/adapters/memory"
	"agora/contexts/dao-governance/governance-engine/application/commands"
	"agora/contexts/dao-governance/governance-engine/application/queries"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	"agora/contexts/dao-governance/governance-engine/ports"
)

type Module struct {
	Handler    httpadapter.Handler
	Governance commands.GovernanceUseCase
	Monitor    queries.MonitorUseCase
	Store      *memory.Store
}

type Dependencies struct {
	Proposals   ports.ProposalRepository
	Ledger      ports.VoteLedger
	Oracle      ports.PowerOracle
	Executor    ports.DecisionExecutor
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Defaults    entities.GovernanceParams
	ExecTimeout time.Duration
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	governanceUseCase := commands.GovernanceUseCase{
		Proposals:   deps.Proposals,
		Ledger:      deps.Ledger,
		Oracle:      deps.Oracle,
		Executor:    deps.Executor,
		Outbox:      deps.Outbox,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Defaults:    deps.Defaults,
		ExecTimeout: deps.ExecTimeout,
		ExecGuard:   commands.NewExecGuard(),
		Logger:      deps.Logger,
	}
	monitorUseCase := queries.MonitorUseCase{
		Proposals: deps.Proposals,
		Ledger:    deps.Ledger,
		Oracle:    deps.Oracle,
		Clock:     deps.Clock,
	}
	return Module{
		Handler: httpadapter.Handler{
			Governance: governanceUseCase,
			Monitor:    monitorUseCase,
			Logger:     deps.Logger,
		},
		Governance: governanceUseCase,
		Monitor:    monitorUseCase,
	}
}

func NewInMemoryModule(defaults entities.GovernanceParams, defaultEligiblePower float64, logger *slog.Logger) Module {
	store := memory.NewStore(defaultEligiblePower)
	module := NewModule(Dependencies{
		Proposals:   store,
		Ledger:      store,
		Oracle:      store,
		Executor:    memory.NewStubExecutor(),
		Outbox:      store,
		Clock:       store,
		IDGen:       store,
		Defaults:    defaults,
		ExecTimeout: 30 * time.Second,
		Logger:      logger,
	})
	module.Store = store
	return module
}
