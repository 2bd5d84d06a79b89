package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	application "agora/contexts/dao-governance/governance-engine/application"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	domainerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
)

// SubmitVoteCommand is the write-model input for casting a ballot.
type SubmitVoteCommand struct {
	ProposalID  string
	Voter       string
	Choice      entities.VoteChoice
	VotingPower float64
	Reason      string
}

// SubmitVoteResult carries the persisted record plus the updated tally the
// transport layer returns to the caller.
type SubmitVoteResult struct {
	Record entities.VoteRecord
	Tally  entities.Tally
}

// SubmitVote validates the ballot, enforces the one-vote-per-voter invariant
// through the ledger's atomic insert, and applies the tally increments. All
// validation errors are returned before any state mutation.
func (uc GovernanceUseCase) SubmitVote(ctx context.Context, cmd SubmitVoteCommand) (SubmitVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("vote submit processing started",
		"event", "governance_vote_submit_started",
		"module", "dao-governance/governance-engine",
		"layer", "application",
		"proposal_id", strings.TrimSpace(cmd.ProposalID),
		"voter", strings.TrimSpace(cmd.Voter),
		"choice", string(cmd.Choice),
	)

	if strings.TrimSpace(cmd.ProposalID) == "" || strings.TrimSpace(cmd.Voter) == "" {
		return SubmitVoteResult{}, domainerrors.ErrInvalidParams
	}
	if !cmd.Choice.Valid() {
		logger.Warn("vote submit invalid choice",
			"event", "governance_vote_submit_invalid_choice",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposal_id", strings.TrimSpace(cmd.ProposalID),
			"voter", strings.TrimSpace(cmd.Voter),
			"choice", string(cmd.Choice),
		)
		return SubmitVoteResult{}, domainerrors.ErrInvalidChoice
	}
	if cmd.VotingPower <= 0 {
		return SubmitVoteResult{}, domainerrors.ErrInvalidPower
	}

	proposal, err := uc.Proposals.GetProposal(ctx, strings.TrimSpace(cmd.ProposalID))
	if err != nil {
		return SubmitVoteResult{}, err
	}

	now := uc.now()
	if !proposal.VotingOpen(now) {
		logger.Warn("vote submit rejected: voting closed",
			"event", "governance_vote_submit_closed",
			"module", "dao-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"voter", strings.TrimSpace(cmd.Voter),
			"status", string(proposal.Status),
			"voting_ends_at", proposal.VotingEndsAt.Format(time.RFC3339),
		)
		return SubmitVoteResult{}, domainerrors.ErrVotingClosed
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return SubmitVoteResult{}, err
	}
	record := entities.VoteRecord{
		VoteID:      voteID,
		ProposalID:  proposal.ProposalID,
		Voter:       strings.TrimSpace(cmd.Voter),
		Choice:      cmd.Choice,
		VotingPower: cmd.VotingPower,
		Reason:      strings.TrimSpace(cmd.Reason),
		CastAt:      now,
	}

	// The ledger insert is the uniqueness gate: concurrent ballots from the
	// same voter race here and exactly one lands.
	if err := uc.Ledger.TryRecordVote(ctx, record); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyVoted) {
			logger.Warn("vote submit rejected: duplicate voter",
				"event", "governance_vote_submit_duplicate",
				"module", "dao-governance/governance-engine",
				"layer", "application",
				"proposal_id", proposal.ProposalID,
				"voter", record.Voter,
			)
		}
		return SubmitVoteResult{}, err
	}

	tally, err := uc.Proposals.UpdateTally(ctx, proposal.ProposalID, record.Choice, record.VotingPower, now)
	if err != nil {
		return SubmitVoteResult{}, err
	}

	if err := uc.appendVoteEvent(ctx, "governance.vote_submitted", record, now); err != nil {
		return SubmitVoteResult{}, err
	}

	logger.Info("vote submitted",
		"event", "governance_vote_submitted",
		"module", "dao-governance/governance-engine",
		"layer", "application",
		"proposal_id", record.ProposalID,
		"vote_id", record.VoteID,
		"voter", record.Voter,
		"choice", string(record.Choice),
		"voting_power", record.VotingPower,
		"total_votes", tally.TotalVotes,
	)
	return SubmitVoteResult{Record: record, Tally: tally}, nil
}
