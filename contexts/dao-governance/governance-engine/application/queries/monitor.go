package queries

import (
	"context"
	"sort"
	"strings"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
	"agora/contexts/dao-governance/governance-engine/domain/services"
	"agora/contexts/dao-governance/governance-engine/ports"
)

const defaultHistoryLimit = 50

// MonitorQuery scopes a monitoring read. An empty ProposalID degrades to all
// active proposals.
type MonitorQuery struct {
	ProposalID     string
	IncludeHistory bool
	Limit          int
}

// ProposalTally pairs a proposal's denormalized tally with its live
// evaluation against the current oracle reading.
type ProposalTally struct {
	Proposal   entities.Proposal
	Evaluation services.Evaluation
}

// MonitorResult is a pure read snapshot; producing it mutates nothing.
type MonitorResult struct {
	ActiveProposals []entities.Proposal
	Tallies         map[string]ProposalTally
	RecentVotes     []entities.VoteRecord
	Metrics         entities.GovernanceMetrics
}

// MonitorUseCase serves the read side of the engine: proposal detail, vote
// history, and aggregate governance metrics.
type MonitorUseCase struct {
	Proposals ports.ProposalRepository
	Ledger    ports.VoteLedger
	Oracle    ports.PowerOracle
	Clock     ports.Clock
}

// Monitor returns active proposals, per-proposal tallies with live verdicts,
// optional most-recent-first vote history, and aggregate metrics.
func (uc MonitorUseCase) Monitor(ctx context.Context, query MonitorQuery) (MonitorResult, error) {
	now := uc.now()

	scoped, all, err := uc.scopeProposals(ctx, strings.TrimSpace(query.ProposalID))
	if err != nil {
		return MonitorResult{}, err
	}

	result := MonitorResult{
		Tallies: make(map[string]ProposalTally, len(scoped)),
	}
	for _, proposal := range scoped {
		if services.IsActive(proposal, now) {
			result.ActiveProposals = append(result.ActiveProposals, proposal)
		}
		totalPower, err := uc.Oracle.TotalEligiblePower(ctx, proposal.ProposalID)
		if err != nil {
			return MonitorResult{}, err
		}
		result.Tallies[proposal.ProposalID] = ProposalTally{
			Proposal:   proposal,
			Evaluation: services.Evaluate(proposal.Tally, proposal.Params, totalPower),
		}
	}
	sort.Slice(result.ActiveProposals, func(i, j int) bool {
		return result.ActiveProposals[i].CreatedAt.Before(result.ActiveProposals[j].CreatedAt)
	})

	if query.IncludeHistory {
		votes, err := uc.scopedVotes(ctx, strings.TrimSpace(query.ProposalID))
		if err != nil {
			return MonitorResult{}, err
		}
		result.RecentVotes = orderHistory(votes, query.Limit)
	}

	result.Metrics = uc.aggregateMetrics(all)
	return result, nil
}

// ProposalDetail returns a single proposal with its live evaluation.
func (uc MonitorUseCase) ProposalDetail(ctx context.Context, proposalID string) (ProposalTally, error) {
	proposal, err := uc.Proposals.GetProposal(ctx, strings.TrimSpace(proposalID))
	if err != nil {
		return ProposalTally{}, err
	}
	totalPower, err := uc.Oracle.TotalEligiblePower(ctx, proposal.ProposalID)
	if err != nil {
		return ProposalTally{}, err
	}
	return ProposalTally{
		Proposal:   proposal,
		Evaluation: services.Evaluate(proposal.Tally, proposal.Params, totalPower),
	}, nil
}

// VoteHistory returns the audit trail for one proposal, oldest first.
func (uc MonitorUseCase) VoteHistory(ctx context.Context, proposalID string) ([]entities.VoteRecord, error) {
	if _, err := uc.Proposals.GetProposal(ctx, strings.TrimSpace(proposalID)); err != nil {
		return nil, err
	}
	return uc.Ledger.ListVotesByProposal(ctx, strings.TrimSpace(proposalID))
}

func (uc MonitorUseCase) scopeProposals(ctx context.Context, proposalID string) ([]entities.Proposal, []entities.Proposal, error) {
	all, err := uc.Proposals.ListProposals(ctx)
	if err != nil {
		return nil, nil, err
	}
	if proposalID == "" {
		return all, all, nil
	}
	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	return []entities.Proposal{proposal}, all, nil
}

func (uc MonitorUseCase) scopedVotes(ctx context.Context, proposalID string) ([]entities.VoteRecord, error) {
	if proposalID == "" {
		return uc.Ledger.ListVotes(ctx)
	}
	return uc.Ledger.ListVotesByProposal(ctx, proposalID)
}

func (uc MonitorUseCase) aggregateMetrics(all []entities.Proposal) entities.GovernanceMetrics {
	metrics := entities.GovernanceMetrics{TotalProposals: len(all)}
	participationSum := 0.0
	participationCount := 0
	for _, proposal := range all {
		switch proposal.Status {
		case entities.ProposalStatusActive:
			metrics.ActiveProposals++
		case entities.ProposalStatusExecuted:
			metrics.ExecutedProposals++
		case entities.ProposalStatusFailed:
			metrics.FailedProposals++
		}
		if proposal.ExecutionResult != nil {
			participationSum += proposal.ExecutionResult.ParticipationRate
			participationCount++
		}
	}
	if metrics.TotalProposals > 0 {
		metrics.ExecutionRate = float64(metrics.ExecutedProposals) / float64(metrics.TotalProposals) * 100
	}
	if participationCount > 0 {
		metrics.AverageParticipation = participationSum / float64(participationCount)
	}
	return metrics
}

// orderHistory sorts most-recent-first with vote id as a deterministic
// tie-break for equal timestamps, then applies the limit.
func orderHistory(votes []entities.VoteRecord, limit int) []entities.VoteRecord {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	ordered := append([]entities.VoteRecord(nil), votes...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CastAt.Equal(ordered[j].CastAt) {
			return ordered[i].VoteID < ordered[j].VoteID
		}
		return ordered[i].CastAt.After(ordered[j].CastAt)
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}

func (uc MonitorUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
