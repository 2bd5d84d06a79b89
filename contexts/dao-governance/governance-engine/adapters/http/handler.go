package httpadapter

import (
	"context"
	"log/slog"
	"sort"
	"time"

	application "agora/contexts/dao-governance/governance-engine/application"
	"agora/contexts/dao-governance/governance-engine/application/commands"
	"agora/contexts/dao-governance/governance-engine/application/queries"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	httptransport "agora/contexts/dao-governance/governance-engine/transport/http"
)

type Handler struct {
	Governance commands.GovernanceUseCase
	Monitor    queries.MonitorUseCase
	Logger     *slog.Logger
}

// CreateProposalHandler godoc
// @Summary Create a governance proposal
// @Description Opens a timed voting window with quorum and approval thresholds.
// @Tags governance-engine
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Proposer id"
// @Param request body httptransport.CreateProposalRequest true "Proposal payload"
// @Success 201 {object} httptransport.ProposalResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /governance/v1/proposals [post]
func (h Handler) CreateProposalHandler(
	ctx context.Context,
	proposer string,
	req httptransport.CreateProposalRequest,
) (httptransport.ProposalResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("create proposal request received",
		"event", "http_create_proposal_received",
		"module", "dao-governance/governance-engine",
		"layer", "transport",
		"proposer", proposer,
	)

	cmd := commands.CreateProposalCommand{
		Title:       req.Title,
		Description: req.Description,
		Proposer:    proposer,
		Category:    req.Category,
	}
	if req.Params != nil {
		cmd.QuorumThresholdPct = req.Params.QuorumThresholdPct
		cmd.ApprovalThresholdPct = req.Params.ApprovalThresholdPct
		cmd.VotingPeriod = time.Duration(req.Params.VotingPeriodSeconds) * time.Second
	}
	if req.ExecutionSpec != nil {
		cmd.ExecutionSpec = &entities.ExecutionSpec{
			TargetRef:    req.ExecutionSpec.TargetRef,
			FunctionName: req.ExecutionSpec.FunctionName,
			Args:         req.ExecutionSpec.Args,
		}
	}

	proposal, err := h.Governance.CreateProposal(ctx, cmd)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(proposal), nil
}

// SubmitVoteHandler godoc
// @Summary Submit a weighted vote
// @Description Records one ballot per voter per proposal while voting is open.
// @Tags governance-engine
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Voter id"
// @Param proposal_id path string true "Proposal id"
// @Param request body httptransport.SubmitVoteRequest true "Vote payload"
// @Success 201 {object} httptransport.SubmitVoteResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /governance/v1/proposals/{proposal_id}/votes [post]
func (h Handler) SubmitVoteHandler(
	ctx context.Context,
	proposalID string,
	voter string,
	req httptransport.SubmitVoteRequest,
) (httptransport.SubmitVoteResponse, error) {
	result, err := h.Governance.SubmitVote(ctx, commands.SubmitVoteCommand{
		ProposalID:  proposalID,
		Voter:       voter,
		Choice:      entities.VoteChoice(req.Choice),
		VotingPower: req.VotingPower,
		Reason:      req.Reason,
	})
	if err != nil {
		return httptransport.SubmitVoteResponse{}, err
	}
	return httptransport.SubmitVoteResponse{
		Vote:  mapVote(result.Record),
		Tally: mapTally(result.Tally),
	}, nil
}

// ExecuteProposalHandler godoc
// @Summary Execute a proposal decision
// @Description Finalizes a proposal after its voting window: runs the executor on a passing verdict, or force-finalizes a failing one.
// @Tags governance-engine
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Executor id"
// @Param proposal_id path string true "Proposal id"
// @Param request body httptransport.ExecuteProposalRequest false "Execution options"
// @Success 200 {object} httptransport.ExecuteProposalResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 502 {object} httptransport.ErrorResponse
// @Router /governance/v1/proposals/{proposal_id}/execute [post]
func (h Handler) ExecuteProposalHandler(
	ctx context.Context,
	proposalID string,
	executor string,
	req httptransport.ExecuteProposalRequest,
) (httptransport.ExecuteProposalResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("execute proposal request received",
		"event", "http_execute_proposal_received",
		"module", "dao-governance/governance-engine",
		"layer", "transport",
		"proposal_id", proposalID,
		"force", req.Force,
	)

	result, err := h.Governance.ExecuteDecision(ctx, commands.ExecuteDecisionCommand{
		ProposalID: proposalID,
		Executor:   executor,
		Force:      req.Force,
	})
	if err != nil {
		return httptransport.ExecuteProposalResponse{}, err
	}

	resp := httptransport.ExecuteProposalResponse{
		ProposalID:        result.Proposal.ProposalID,
		Status:            result.Status,
		Passed:            result.Evaluation.Passed,
		Reason:            result.Evaluation.Reason,
		ParticipationRate: result.Evaluation.ParticipationRate,
		ApprovalRate:      result.Evaluation.ApprovalRate,
		QuorumMet:         result.Evaluation.QuorumMet,
		ApprovalMet:       result.Evaluation.ApprovalMet,
		Output:            result.ExecutorOutput,
	}
	if result.Proposal.ExecutionResult != nil {
		resp.Forced = result.Proposal.ExecutionResult.Forced
		resp.ExternalReference = result.Proposal.ExecutionResult.ExternalReference
	}
	return resp, nil
}

// MonitorHandler godoc
// @Summary Monitor governance state
// @Description Returns active proposals with live verdicts, optional vote history, and aggregate metrics.
// @Tags governance-engine
// @Produce json
// @Param proposal_id query string false "Scope to one proposal"
// @Param include_history query bool false "Include recent votes"
// @Param limit query int false "History page size (default 50)"
// @Success 200 {object} httptransport.MonitorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /governance/v1/monitor [get]
func (h Handler) MonitorHandler(ctx context.Context, query queries.MonitorQuery) (httptransport.MonitorResponse, error) {
	result, err := h.Monitor.Monitor(ctx, query)
	if err != nil {
		return httptransport.MonitorResponse{}, err
	}

	now := time.Now().UTC()
	resp := httptransport.MonitorResponse{
		Proposals: make([]httptransport.ProposalStatusItem, 0, len(result.Tallies)),
		Metrics: &httptransport.GovernanceMetricsResponse{
			TotalProposals:       result.Metrics.TotalProposals,
			ActiveProposals:      result.Metrics.ActiveProposals,
			ExecutedProposals:    result.Metrics.ExecutedProposals,
			FailedProposals:      result.Metrics.FailedProposals,
			ExecutionRate:        result.Metrics.ExecutionRate,
			AverageParticipation: result.Metrics.AverageParticipation,
		},
	}
	listed := make(map[string]bool, len(result.ActiveProposals))
	for _, proposal := range result.ActiveProposals {
		tally, ok := result.Tallies[proposal.ProposalID]
		if !ok {
			continue
		}
		listed[proposal.ProposalID] = true
		resp.Proposals = append(resp.Proposals, mapStatusItem(tally, now))
	}
	rest := make([]httptransport.ProposalStatusItem, 0, len(result.Tallies))
	for _, tally := range result.Tallies {
		if listed[tally.Proposal.ProposalID] {
			continue
		}
		rest = append(rest, mapStatusItem(tally, now))
	}
	sort.Slice(rest, func(i, j int) bool {
		return rest[i].ProposalID < rest[j].ProposalID
	})
	resp.Proposals = append(resp.Proposals, rest...)
	for _, vote := range result.RecentVotes {
		resp.History = append(resp.History, mapVote(vote))
	}
	return resp, nil
}

// ProposalDetailHandler godoc
// @Summary Get proposal details
// @Description Returns one proposal with its full vote audit trail.
// @Tags governance-engine
// @Produce json
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} httptransport.ProposalDetailResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /governance/v1/proposals/{proposal_id} [get]
func (h Handler) ProposalDetailHandler(ctx context.Context, proposalID string) (httptransport.ProposalDetailResponse, error) {
	detail, err := h.Monitor.ProposalDetail(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalDetailResponse{}, err
	}
	votes, err := h.Monitor.VoteHistory(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalDetailResponse{}, err
	}
	resp := httptransport.ProposalDetailResponse{
		Proposal: mapProposal(detail.Proposal),
		Votes:    make([]httptransport.VoteResponse, 0, len(votes)),
	}
	for _, vote := range votes {
		resp.Votes = append(resp.Votes, mapVote(vote))
	}
	return resp, nil
}

// VoteHistoryHandler godoc
// @Summary List votes for a proposal
// @Description Returns the proposal's ballots in cast order.
// @Tags governance-engine
// @Produce json
// @Param proposal_id path string true "Proposal id"
// @Success 200 {object} httptransport.VoteHistoryResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /governance/v1/proposals/{proposal_id}/votes [get]
func (h Handler) VoteHistoryHandler(ctx context.Context, proposalID string) (httptransport.VoteHistoryResponse, error) {
	votes, err := h.Monitor.VoteHistory(ctx, proposalID)
	if err != nil {
		return httptransport.VoteHistoryResponse{}, err
	}
	resp := httptransport.VoteHistoryResponse{
		ProposalID: proposalID,
		Items:      make([]httptransport.VoteResponse, 0, len(votes)),
	}
	for _, vote := range votes {
		resp.Items = append(resp.Items, mapVote(vote))
	}
	return resp, nil
}

func mapProposal(proposal entities.Proposal) httptransport.ProposalResponse {
	resp := httptransport.ProposalResponse{
		ProposalID:           proposal.ProposalID,
		Title:                proposal.Title,
		Description:          proposal.Description,
		Proposer:             proposal.Proposer,
		Category:             proposal.Category,
		QuorumThresholdPct:   proposal.Params.QuorumThresholdPct,
		ApprovalThresholdPct: proposal.Params.ApprovalThresholdPct,
		VotingPeriodSeconds:  int64(proposal.Params.VotingPeriod / time.Second),
		Status:               string(proposal.Status),
		Tally:                mapTally(proposal.Tally),
		CreatedAt:            proposal.CreatedAt.UTC().Format(time.RFC3339),
		VotingEndsAt:         proposal.VotingEndsAt.UTC().Format(time.RFC3339),
		UpdatedAt:            proposal.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if proposal.ExecutionSpec != nil {
		resp.ExecutionSpec = &httptransport.ExecutionSpecRequest{
			TargetRef:    proposal.ExecutionSpec.TargetRef,
			FunctionName: proposal.ExecutionSpec.FunctionName,
			Args:         proposal.ExecutionSpec.Args,
		}
	}
	if proposal.ExecutionResult != nil {
		resp.ExecutionResult = &httptransport.ExecutionResultResponse{
			Passed:            proposal.ExecutionResult.Passed,
			Forced:            proposal.ExecutionResult.Forced,
			Reason:            proposal.ExecutionResult.Reason,
			ParticipationRate: proposal.ExecutionResult.ParticipationRate,
			ApprovalRate:      proposal.ExecutionResult.ApprovalRate,
			ExternalReference: proposal.ExecutionResult.ExternalReference,
			Output:            proposal.ExecutionResult.Output,
			ExecutedAt:        proposal.ExecutionResult.ExecutedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

func mapVote(record entities.VoteRecord) httptransport.VoteResponse {
	return httptransport.VoteResponse{
		VoteID:      record.VoteID,
		ProposalID:  record.ProposalID,
		Voter:       record.Voter,
		Choice:      string(record.Choice),
		VotingPower: record.VotingPower,
		Reason:      record.Reason,
		CastAt:      record.CastAt.UTC().Format(time.RFC3339),
	}
}

func mapTally(tally entities.Tally) httptransport.TallyResponse {
	return httptransport.TallyResponse{
		TotalVotes:   tally.TotalVotes,
		VotesFor:     tally.VotesFor,
		VotesAgainst: tally.VotesAgainst,
		VotesAbstain: tally.VotesAbstain,
		PowerFor:     tally.PowerFor,
		PowerAgainst: tally.PowerAgainst,
		PowerAbstain: tally.PowerAbstain,
	}
}

func mapStatusItem(tally queries.ProposalTally, now time.Time) httptransport.ProposalStatusItem {
	verdict := "failing"
	if tally.Evaluation.Passed {
		verdict = "passing"
	}
	remaining := int64(0)
	if tally.Proposal.Status == entities.ProposalStatusActive {
		if secs := int64(tally.Proposal.VotingEndsAt.Sub(now) / time.Second); secs > 0 {
			remaining = secs
		}
	}
	return httptransport.ProposalStatusItem{
		ProposalID:        tally.Proposal.ProposalID,
		Title:             tally.Proposal.Title,
		Status:            string(tally.Proposal.Status),
		Tally:             mapTally(tally.Proposal.Tally),
		ParticipationRate: tally.Evaluation.ParticipationRate,
		ApprovalRate:      tally.Evaluation.ApprovalRate,
		QuorumMet:         tally.Evaluation.QuorumMet,
		ApprovalMet:       tally.Evaluation.ApprovalMet,
		CurrentVerdict:    verdict,
		VotingEndsAt:      tally.Proposal.VotingEndsAt.UTC().Format(time.RFC3339),
		SecondsRemaining:  remaining,
	}
}
