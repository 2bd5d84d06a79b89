package services

import (
	"strings"
	"testing"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
)

func baseParams() entities.GovernanceParams {
	return entities.GovernanceParams{
		QuorumThresholdPct:   10,
		ApprovalThresholdPct: 51,
		VotingPeriod:         72 * time.Hour,
	}
}

func TestEvaluatePassesWithQuorumAndApproval(t *testing.T) {
	tally := entities.Tally{
		TotalVotes:   10,
		VotesFor:     6,
		VotesAgainst: 4,
		PowerFor:     6000,
		PowerAgainst: 4000,
	}

	eval := Evaluate(tally, baseParams(), 10000)
	if !eval.Passed {
		t.Fatalf("expected pass, got reason %q", eval.Reason)
	}
	if eval.ParticipationRate != 100 {
		t.Fatalf("expected participation 100, got %f", eval.ParticipationRate)
	}
	if eval.ApprovalRate != 60 {
		t.Fatalf("expected approval 60, got %f", eval.ApprovalRate)
	}
	if !eval.QuorumMet || !eval.ApprovalMet {
		t.Fatalf("expected both thresholds met: %+v", eval)
	}
}

func TestEvaluateQuorumFailureTakesPrecedence(t *testing.T) {
	// Same power split fails quorum against a much larger supply, even though
	// the approval rate alone would pass.
	tally := entities.Tally{
		TotalVotes:   10,
		VotesFor:     6,
		VotesAgainst: 4,
		PowerFor:     6000,
		PowerAgainst: 4000,
	}

	eval := Evaluate(tally, baseParams(), 1000000)
	if eval.Passed {
		t.Fatalf("expected quorum failure")
	}
	if eval.ParticipationRate != 1 {
		t.Fatalf("expected participation 1, got %f", eval.ParticipationRate)
	}
	if !strings.Contains(eval.Reason, "quorum") {
		t.Fatalf("expected quorum reason, got %q", eval.Reason)
	}
	if eval.ApprovalRate != 60 {
		t.Fatalf("rates must be reported even on failure, got %f", eval.ApprovalRate)
	}
}

func TestEvaluateApprovalFailure(t *testing.T) {
	tally := entities.Tally{
		TotalVotes:   10,
		VotesFor:     4,
		VotesAgainst: 6,
		PowerFor:     4000,
		PowerAgainst: 6000,
	}

	eval := Evaluate(tally, baseParams(), 10000)
	if eval.Passed {
		t.Fatalf("expected approval failure")
	}
	if !eval.QuorumMet {
		t.Fatalf("quorum should be met")
	}
	if !strings.Contains(eval.Reason, "approval") {
		t.Fatalf("expected approval reason, got %q", eval.Reason)
	}
}

func TestEvaluateAbstainCountsTowardQuorumOnly(t *testing.T) {
	// Abstain power fills the participation numerator but is excluded from the
	// approval denominator.
	tally := entities.Tally{
		TotalVotes:   3,
		VotesFor:     1,
		VotesAgainst: 1,
		VotesAbstain: 1,
		PowerFor:     600,
		PowerAgainst: 300,
		PowerAbstain: 9100,
	}

	eval := Evaluate(tally, baseParams(), 10000)
	if !eval.Passed {
		t.Fatalf("expected pass, got reason %q", eval.Reason)
	}
	if eval.ParticipationRate != 100 {
		t.Fatalf("expected participation 100, got %f", eval.ParticipationRate)
	}
	wantApproval := 600.0 / 900.0 * 100
	if eval.ApprovalRate != wantApproval {
		t.Fatalf("expected approval %f, got %f", wantApproval, eval.ApprovalRate)
	}
}

func TestEvaluateZeroDenominators(t *testing.T) {
	eval := Evaluate(entities.Tally{}, baseParams(), 0)
	if eval.Passed {
		t.Fatalf("expected failure with no votes and no supply")
	}
	if eval.ParticipationRate != 0 || eval.ApprovalRate != 0 {
		t.Fatalf("expected zero rates, got %+v", eval)
	}

	// Abstain-only ballots leave the approval denominator empty.
	abstainOnly := entities.Tally{
		TotalVotes:   2,
		VotesAbstain: 2,
		PowerAbstain: 5000,
	}
	eval = Evaluate(abstainOnly, baseParams(), 10000)
	if eval.ApprovalRate != 0 {
		t.Fatalf("expected approval 0 with only abstain power, got %f", eval.ApprovalRate)
	}
	if eval.Passed {
		t.Fatalf("abstain-only tally must not pass")
	}
}

func TestIsActiveRespectsStatusAndDeadline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	proposal := entities.Proposal{
		Status:       entities.ProposalStatusActive,
		VotingEndsAt: now.Add(time.Hour),
	}
	if !IsActive(proposal, now) {
		t.Fatalf("expected active before deadline")
	}
	if !IsActive(proposal, now.Add(time.Hour)) {
		t.Fatalf("deadline instant is still open")
	}
	if IsActive(proposal, now.Add(time.Hour+time.Second)) {
		t.Fatalf("expected inactive after deadline")
	}

	proposal.Status = entities.ProposalStatusExecuted
	if IsActive(proposal, now) {
		t.Fatalf("terminal proposal must not be active")
	}
}
