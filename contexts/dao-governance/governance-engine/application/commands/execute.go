package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	application "agora/contexts/dao-governance/governance-engine/application"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	domainerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
	"agora/contexts/dao-governance/governance-engine/domain/services"
	"agora/contexts/dao-governance/governance-engine/ports"
)

// ExecGuard serializes executeDecision per proposal id. Concurrent callers
// for the same proposal take the same mutex, so exactly one invokes the
// decision executor; losers re-read state and observe the terminal status.
type ExecGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewExecGuard() *ExecGuard {
	return &ExecGuard{locks: make(map[string]*sync.Mutex)}
}

func (g *ExecGuard) lock(proposalID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[proposalID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[proposalID] = lock
	}
	return lock
}

// ExecuteDecisionCommand finalizes a proposal. Force overrides the open
// voting window for a passing verdict and finalizes a failing verdict to the
// terminal failed status.
type ExecuteDecisionCommand struct {
	ProposalID string
	Executor   string
	Force      bool
}

// ExecuteDecisionResult reports the terminal outcome of a finalization call.
// Status is "executed" when the decision ran, "rejected" when a failing
// verdict was force-finalized.
type ExecuteDecisionResult struct {
	Status         string
	Proposal       entities.Proposal
	Evaluation     services.Evaluation
	ExecutorOutput string
}

// ExecuteDecision computes the final verdict and finalizes the proposal at
// most once.
//
// Outcome matrix, resolved deliberately where the behavior was unspecified:
//   - verdict passed: invoke the executor (bounded by ExecTimeout); on success
//     transition to executed; on failure or timeout leave the proposal active
//     and return ErrExecutionFailed so the caller may retry.
//   - verdict failed, force off: return ErrProposalRejected with the reason;
//     the proposal stays active until someone finalizes with force.
//   - verdict failed, force on: transition to failed with the result recorded;
//     the executor is never invoked for a rejected decision.
//
// A second call after a terminal transition fails fast with
// ErrAlreadyExecuted and never re-invokes the executor.
func (uc GovernanceUseCase) ExecuteDecision(ctx context.Context, cmd ExecuteDecisionCommand) (ExecuteDecisionResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	logger.Info("decision execution started",
		"event", "governance_execute_started",
		"module", "dao-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"executor", strings.TrimSpace(cmd.Executor),
		"force", cmd.Force,
	)
	if proposalID == "" {
		return ExecuteDecisionResult{}, domainerrors.ErrInvalidParams
	}

	// Existence check before taking the per-proposal lock.
	if _, err := uc.Proposals.GetProposal(ctx, proposalID); err != nil {
		return ExecuteDecisionResult{}, err
	}

	if uc.ExecGuard != nil {
		lock := uc.ExecGuard.lock(proposalID)
		lock.Lock()
		defer lock.Unlock()
	}

	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return ExecuteDecisionResult{}, err
	}
	if proposal.Status.IsTerminal() {
		logger.Info("decision execution skipped: already finalized",
			"event", "governance_execute_already_finalized",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"status", string(proposal.Status),
		)
		return ExecuteDecisionResult{}, domainerrors.ErrAlreadyExecuted
	}

	now := uc.now()
	if !now.After(proposal.VotingEndsAt) && !cmd.Force {
		return ExecuteDecisionResult{}, domainerrors.ErrVotingStillActive
	}

	totalPower, err := uc.Oracle.TotalEligiblePower(ctx, proposalID)
	if err != nil {
		logger.Error("voting power oracle lookup failed",
			"event", "governance_execute_oracle_failed",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"error", err.Error(),
		)
		return ExecuteDecisionResult{}, fmt.Errorf("%w: %s", domainerrors.ErrOracleUnavailable, err.Error())
	}

	eval := services.Evaluate(proposal.Tally, proposal.Params, totalPower)

	if !eval.Passed {
		if !cmd.Force {
			logger.Info("decision execution rejected by verdict",
				"event", "governance_execute_rejected",
				"module", "dao-governance/governance-engine",
				"layer", "application",
				"proposal_id", proposalID,
				"reason", eval.Reason,
			)
			return ExecuteDecisionResult{}, fmt.Errorf("%w: %s", domainerrors.ErrProposalRejected, eval.Reason)
		}
		return uc.finalizeRejected(ctx, proposal, eval, cmd, now)
	}

	outcome, err := uc.invokeExecutor(ctx, proposal)
	if err != nil {
		logger.Error("decision executor failed; proposal left active",
			"event", "governance_execute_executor_failed",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"error", err.Error(),
		)
		return ExecuteDecisionResult{}, fmt.Errorf("%w: %s", domainerrors.ErrExecutionFailed, err.Error())
	}
	if !outcome.Success {
		logger.Error("decision executor reported failure; proposal left active",
			"event", "governance_execute_executor_rejected",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"executor_output", outcome.Output,
		)
		return ExecuteDecisionResult{}, fmt.Errorf("%w: %s", domainerrors.ErrExecutionFailed, outcome.Output)
	}

	result := entities.ExecutionResult{
		Passed:            true,
		Forced:            cmd.Force,
		Reason:            eval.Reason,
		ParticipationRate: eval.ParticipationRate,
		ApprovalRate:      eval.ApprovalRate,
		ExternalReference: outcome.ExternalReference,
		Output:            outcome.Output,
		ExecutedAt:        now,
	}
	if err := uc.Proposals.TransitionProposal(ctx, proposalID, entities.ProposalStatusExecuted, result, now); err != nil {
		return ExecuteDecisionResult{}, err
	}
	proposal.Status = entities.ProposalStatusExecuted
	proposal.ExecutionResult = &result
	proposal.UpdatedAt = now

	if err := uc.appendProposalEvent(ctx, "governance.proposal_executed", proposal, now, map[string]any{
		"participation_rate": eval.ParticipationRate,
		"approval_rate":      eval.ApprovalRate,
		"external_reference": outcome.ExternalReference,
		"executed_by":        strings.TrimSpace(cmd.Executor),
		"forced":             cmd.Force,
	}); err != nil {
		return ExecuteDecisionResult{}, err
	}

	logger.Info("decision executed",
		"event", "governance_executed",
		"module", "dao-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"executed_by", strings.TrimSpace(cmd.Executor),
		"participation_rate", eval.ParticipationRate,
		"approval_rate", eval.ApprovalRate,
		"external_reference", outcome.ExternalReference,
	)
	return ExecuteDecisionResult{
		Status:         "executed",
		Proposal:       proposal,
		Evaluation:     eval,
		ExecutorOutput: outcome.Output,
	}, nil
}

func (uc GovernanceUseCase) finalizeRejected(
	ctx context.Context,
	proposal entities.Proposal,
	eval services.Evaluation,
	cmd ExecuteDecisionCommand,
	now time.Time,
) (ExecuteDecisionResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	result := entities.ExecutionResult{
		Passed:            false,
		Forced:            true,
		Reason:            eval.Reason,
		ParticipationRate: eval.ParticipationRate,
		ApprovalRate:      eval.ApprovalRate,
		ExecutedAt:        now,
	}
	if err := uc.Proposals.TransitionProposal(ctx, proposal.ProposalID, entities.ProposalStatusFailed, result, now); err != nil {
		return ExecuteDecisionResult{}, err
	}
	proposal.Status = entities.ProposalStatusFailed
	proposal.ExecutionResult = &result
	proposal.UpdatedAt = now

	if err := uc.appendProposalEvent(ctx, "governance.proposal_failed", proposal, now, map[string]any{
		"reason":             eval.Reason,
		"participation_rate": eval.ParticipationRate,
		"approval_rate":      eval.ApprovalRate,
		"finalized_by":       strings.TrimSpace(cmd.Executor),
	}); err != nil {
		return ExecuteDecisionResult{}, err
	}

	logger.Info("proposal finalized as failed",
		"event", "governance_finalized_failed",
		"module", "dao-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"reason", eval.Reason,
		"finalized_by", strings.TrimSpace(cmd.Executor),
	)
	return ExecuteDecisionResult{
		Status:     "rejected",
		Proposal:   proposal,
		Evaluation: eval,
	}, nil
}

func (uc GovernanceUseCase) invokeExecutor(ctx context.Context, proposal entities.Proposal) (ports.ExecutionOutcome, error) {
	spec := entities.ExecutionSpec{}
	if proposal.ExecutionSpec != nil {
		spec = *proposal.ExecutionSpec
	}
	timeout := uc.ExecTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return uc.Executor.Execute(execCtx, spec)
}
