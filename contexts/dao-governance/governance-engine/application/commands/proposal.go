package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "agora/contexts/dao-governance/governance-engine/application"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	domainerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
	"agora/contexts/dao-governance/governance-engine/ports"
)

// CreateProposalCommand is the write-model input for proposal creation.
// Zero-valued override fields fall back to the engine defaults.
type CreateProposalCommand struct {
	Title                string
	Description          string
	Proposer             string
	Category             string
	ExecutionSpec        *entities.ExecutionSpec
	QuorumThresholdPct   float64
	ApprovalThresholdPct float64
	VotingPeriod         time.Duration
}

// GovernanceUseCase orchestrates proposal lifecycle commands: create, vote,
// execute. It enforces the engine invariants — vote uniqueness, deadline
// correctness, validation before mutation, and single-flight execution.
type GovernanceUseCase struct {
	Proposals   ports.ProposalRepository
	Ledger      ports.VoteLedger
	Oracle      ports.PowerOracle
	Executor    ports.DecisionExecutor
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Defaults    entities.GovernanceParams
	ExecTimeout time.Duration
	ExecGuard   *ExecGuard
	Logger      *slog.Logger
}

// CreateProposal validates the request, assigns an id and voting window, and
// records the proposal as active. All validation happens before any mutation.
func (uc GovernanceUseCase) CreateProposal(ctx context.Context, cmd CreateProposalCommand) (entities.Proposal, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("proposal create processing started",
		"event", "governance_proposal_create_started",
		"module", "dao-governance/governance-engine",
		"layer", "application",
		"proposer", strings.TrimSpace(cmd.Proposer),
		"category", strings.TrimSpace(cmd.Category),
	)

	if strings.TrimSpace(cmd.Title) == "" ||
		strings.TrimSpace(cmd.Description) == "" ||
		strings.TrimSpace(cmd.Proposer) == "" {
		logger.Warn("proposal create validation failed",
			"event", "governance_proposal_create_validation_failed",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposer", strings.TrimSpace(cmd.Proposer),
		)
		return entities.Proposal{}, domainerrors.ErrInvalidParams
	}

	params, err := uc.resolveParams(cmd)
	if err != nil {
		logger.Warn("proposal create params out of range",
			"event", "governance_proposal_create_params_invalid",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposer", strings.TrimSpace(cmd.Proposer),
			"quorum_pct", cmd.QuorumThresholdPct,
			"approval_pct", cmd.ApprovalThresholdPct,
		)
		return entities.Proposal{}, err
	}

	now := uc.now()
	proposalID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Proposal{}, err
	}

	proposal := entities.Proposal{
		ProposalID:   proposalID,
		Title:        strings.TrimSpace(cmd.Title),
		Description:  strings.TrimSpace(cmd.Description),
		Proposer:     strings.TrimSpace(cmd.Proposer),
		Category:     strings.TrimSpace(cmd.Category),
		Params:       params,
		Status:       entities.ProposalStatusActive,
		CreatedAt:    now,
		VotingEndsAt: now.Add(params.VotingPeriod),
		UpdatedAt:    now,
	}
	if cmd.ExecutionSpec != nil {
		spec := entities.ExecutionSpec{
			TargetRef:    strings.TrimSpace(cmd.ExecutionSpec.TargetRef),
			FunctionName: strings.TrimSpace(cmd.ExecutionSpec.FunctionName),
			Args:         append([]string(nil), cmd.ExecutionSpec.Args...),
		}
		proposal.ExecutionSpec = &spec
	}

	if err := uc.Proposals.CreateProposal(ctx, proposal); err != nil {
		logger.Error("proposal create persistence failed",
			"event", "governance_proposal_create_persist_failed",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"error", err.Error(),
		)
		return entities.Proposal{}, err
	}
	if err := uc.appendProposalEvent(ctx, "governance.proposal_created", proposal, now, map[string]any{
		"voting_ends_at": proposal.VotingEndsAt.Format(time.RFC3339),
	}); err != nil {
		return entities.Proposal{}, err
	}

	logger.Info("proposal created",
		"event", "governance_proposal_created",
		"module", "dao-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"proposer", proposal.Proposer,
		"voting_ends_at", proposal.VotingEndsAt.Format(time.RFC3339),
		"quorum_pct", params.QuorumThresholdPct,
		"approval_pct", params.ApprovalThresholdPct,
	)
	return proposal, nil
}

func (uc GovernanceUseCase) resolveParams(cmd CreateProposalCommand) (entities.GovernanceParams, error) {
	params := uc.Defaults
	if cmd.QuorumThresholdPct != 0 {
		params.QuorumThresholdPct = cmd.QuorumThresholdPct
	}
	if cmd.ApprovalThresholdPct != 0 {
		params.ApprovalThresholdPct = cmd.ApprovalThresholdPct
	}
	if cmd.VotingPeriod != 0 {
		params.VotingPeriod = cmd.VotingPeriod
	}
	if !params.Valid() {
		return entities.GovernanceParams{}, domainerrors.ErrInvalidParams
	}
	return params, nil
}

func (uc GovernanceUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
