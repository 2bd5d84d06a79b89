package queries

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"agora/contexts/dao-governance/governance-engine/adapters/memory"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	domainerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
)

var monitorBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func seedMonitorProposal(t *testing.T, store *memory.Store, id string, status entities.ProposalStatus, createdAt time.Time) {
	t.Helper()
	proposal := entities.Proposal{
		ProposalID:  id,
		Title:       "proposal " + id,
		Description: "d",
		Proposer:    "member-1",
		Params: entities.GovernanceParams{
			QuorumThresholdPct:   10,
			ApprovalThresholdPct: 51,
			VotingPeriod:         72 * time.Hour,
		},
		Status:       entities.ProposalStatusActive,
		CreatedAt:    createdAt,
		VotingEndsAt: createdAt.Add(72 * time.Hour),
		UpdatedAt:    createdAt,
	}
	if err := store.CreateProposal(context.Background(), proposal); err != nil {
		t.Fatalf("seed proposal %s failed: %v", id, err)
	}
	if status != entities.ProposalStatusActive {
		result := entities.ExecutionResult{
			Passed:            status == entities.ProposalStatusExecuted,
			ParticipationRate: 40,
			ExecutedAt:        createdAt.Add(73 * time.Hour),
		}
		if err := store.TransitionProposal(context.Background(), id, status, result, createdAt.Add(73*time.Hour)); err != nil {
			t.Fatalf("seed transition %s failed: %v", id, err)
		}
	}
}

func seedMonitorVote(t *testing.T, store *memory.Store, proposalID string, n int, castAt time.Time) {
	t.Helper()
	record := entities.VoteRecord{
		VoteID:      fmt.Sprintf("vote-%s-%03d", proposalID, n),
		ProposalID:  proposalID,
		Voter:       fmt.Sprintf("member-%d", n),
		Choice:      entities.VoteChoiceFor,
		VotingPower: 100,
		CastAt:      castAt,
	}
	if err := store.TryRecordVote(context.Background(), record); err != nil {
		t.Fatalf("seed vote failed: %v", err)
	}
	if _, err := store.UpdateTally(context.Background(), proposalID, record.Choice, record.VotingPower, castAt); err != nil {
		t.Fatalf("seed tally failed: %v", err)
	}
}

func newMonitorUseCase(store *memory.Store) MonitorUseCase {
	return MonitorUseCase{
		Proposals: store,
		Ledger:    store,
		Oracle:    store,
		Clock:     fixedClock{now: monitorBase.Add(time.Hour)},
	}
}

func TestMonitorAggregatesMetricsAndVerdicts(t *testing.T) {
	store := memory.NewStore(10000)
	seedMonitorProposal(t, store, "p-active", entities.ProposalStatusActive, monitorBase)
	seedMonitorProposal(t, store, "p-executed", entities.ProposalStatusExecuted, monitorBase.Add(-200*time.Hour))
	seedMonitorProposal(t, store, "p-failed", entities.ProposalStatusFailed, monitorBase.Add(-400*time.Hour))
	seedMonitorVote(t, store, "p-active", 1, monitorBase.Add(time.Minute))
	seedMonitorVote(t, store, "p-active", 2, monitorBase.Add(2*time.Minute))

	uc := newMonitorUseCase(store)
	result, err := uc.Monitor(context.Background(), MonitorQuery{})
	if err != nil {
		t.Fatalf("monitor failed: %v", err)
	}

	if len(result.ActiveProposals) != 1 || result.ActiveProposals[0].ProposalID != "p-active" {
		t.Fatalf("expected one active proposal, got %+v", result.ActiveProposals)
	}
	if len(result.Tallies) != 3 {
		t.Fatalf("expected verdicts for all proposals, got %d", len(result.Tallies))
	}

	metrics := result.Metrics
	if metrics.TotalProposals != 3 || metrics.ActiveProposals != 1 ||
		metrics.ExecutedProposals != 1 || metrics.FailedProposals != 1 {
		t.Fatalf("metric counts wrong: %+v", metrics)
	}
	wantRate := 1.0 / 3.0 * 100
	if metrics.ExecutionRate != wantRate {
		t.Fatalf("expected execution rate %f, got %f", wantRate, metrics.ExecutionRate)
	}
	if metrics.AverageParticipation != 40 {
		t.Fatalf("expected average participation 40, got %f", metrics.AverageParticipation)
	}

	active := result.Tallies["p-active"]
	if active.Evaluation.ParticipationRate != 2 {
		t.Fatalf("expected participation 2%%, got %f", active.Evaluation.ParticipationRate)
	}
}

func TestMonitorHistoryOrderingAndLimit(t *testing.T) {
	store := memory.NewStore(10000)
	seedMonitorProposal(t, store, "p-1", entities.ProposalStatusActive, monitorBase)
	// Two ballots share a timestamp to exercise the id tie-break.
	seedMonitorVote(t, store, "p-1", 1, monitorBase.Add(time.Minute))
	seedMonitorVote(t, store, "p-1", 2, monitorBase.Add(3*time.Minute))
	seedMonitorVote(t, store, "p-1", 3, monitorBase.Add(3*time.Minute))

	uc := newMonitorUseCase(store)
	result, err := uc.Monitor(context.Background(), MonitorQuery{
		ProposalID:     "p-1",
		IncludeHistory: true,
	})
	if err != nil {
		t.Fatalf("monitor failed: %v", err)
	}
	if len(result.RecentVotes) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(result.RecentVotes))
	}
	wantOrder := []string{"vote-p-1-002", "vote-p-1-003", "vote-p-1-001"}
	for i, want := range wantOrder {
		if result.RecentVotes[i].VoteID != want {
			t.Fatalf("history order wrong at %d: want %s got %s", i, want, result.RecentVotes[i].VoteID)
		}
	}

	limited, err := uc.Monitor(context.Background(), MonitorQuery{
		ProposalID:     "p-1",
		IncludeHistory: true,
		Limit:          2,
	})
	if err != nil {
		t.Fatalf("limited monitor failed: %v", err)
	}
	if len(limited.RecentVotes) != 2 {
		t.Fatalf("expected limit 2, got %d", len(limited.RecentVotes))
	}
}

func TestMonitorUnknownProposal(t *testing.T) {
	store := memory.NewStore(10000)
	uc := newMonitorUseCase(store)

	_, err := uc.Monitor(context.Background(), MonitorQuery{ProposalID: "missing"})
	if !errors.Is(err, domainerrors.ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
}

func TestProposalDetailAndVoteHistory(t *testing.T) {
	store := memory.NewStore(10000)
	seedMonitorProposal(t, store, "p-1", entities.ProposalStatusActive, monitorBase)
	seedMonitorVote(t, store, "p-1", 1, monitorBase.Add(time.Minute))
	seedMonitorVote(t, store, "p-1", 2, monitorBase.Add(2*time.Minute))

	uc := newMonitorUseCase(store)
	detail, err := uc.ProposalDetail(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("proposal detail failed: %v", err)
	}
	if detail.Proposal.Tally.TotalVotes != 2 {
		t.Fatalf("expected tally of 2, got %d", detail.Proposal.Tally.TotalVotes)
	}
	if detail.Evaluation.QuorumMet {
		t.Fatalf("200 of 10000 power should not meet 10%% quorum")
	}

	votes, err := uc.VoteHistory(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("vote history failed: %v", err)
	}
	if len(votes) != 2 || votes[0].VoteID != "vote-p-1-001" {
		t.Fatalf("expected cast-order history, got %+v", votes)
	}

	if _, err := uc.VoteHistory(context.Background(), "missing"); !errors.Is(err, domainerrors.ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound for unknown proposal, got %v", err)
	}
}
