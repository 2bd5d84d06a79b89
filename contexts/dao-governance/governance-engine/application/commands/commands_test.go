package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agora/contexts/dao-governance/governance-engine/adapters/memory"
	"agora/contexts/dao-governance/governance-engine/domain/entities"
	domainerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
	"agora/contexts/dao-governance/governance-engine/ports"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testHarness struct {
	uc       GovernanceUseCase
	store    *memory.Store
	executor *memory.StubExecutor
	clock    *testClock
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	store := memory.NewStore(10000)
	executor := memory.NewStubExecutor()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return &testHarness{
		uc: GovernanceUseCase{
			Proposals: store,
			Ledger:    store,
			Oracle:    store,
			Executor:  executor,
			Outbox:    store,
			Clock:     clock,
			IDGen:     store,
			Defaults: entities.GovernanceParams{
				QuorumThresholdPct:   10,
				ApprovalThresholdPct: 51,
				VotingPeriod:         72 * time.Hour,
			},
			ExecTimeout: 5 * time.Second,
			ExecGuard:   NewExecGuard(),
		},
		store:    store,
		executor: executor,
		clock:    clock,
	}
}

func (h *testHarness) createProposal(t *testing.T) entities.Proposal {
	t.Helper()
	proposal, err := h.uc.CreateProposal(context.Background(), CreateProposalCommand{
		Title:       "fund community grants",
		Description: "allocate 50k from treasury",
		Proposer:    "member-1",
	})
	if err != nil {
		t.Fatalf("create proposal failed: %v", err)
	}
	return proposal
}

func (h *testHarness) vote(t *testing.T, proposalID, voter string, choice entities.VoteChoice, power float64) {
	t.Helper()
	_, err := h.uc.SubmitVote(context.Background(), SubmitVoteCommand{
		ProposalID:  proposalID,
		Voter:       voter,
		Choice:      choice,
		VotingPower: power,
	})
	if err != nil {
		t.Fatalf("vote by %s failed: %v", voter, err)
	}
}

func TestCreateProposalAppliesDefaultsAndWindow(t *testing.T) {
	h := newHarness(t)

	proposal := h.createProposal(t)
	if proposal.Status != entities.ProposalStatusActive {
		t.Fatalf("expected active status, got %s", proposal.Status)
	}
	if proposal.Params.QuorumThresholdPct != 10 || proposal.Params.ApprovalThresholdPct != 51 {
		t.Fatalf("defaults not applied: %+v", proposal.Params)
	}
	wantEnd := h.clock.Now().Add(72 * time.Hour)
	if !proposal.VotingEndsAt.Equal(wantEnd) {
		t.Fatalf("expected voting end %v, got %v", wantEnd, proposal.VotingEndsAt)
	}
}

func TestCreateProposalValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.uc.CreateProposal(context.Background(), CreateProposalCommand{
		Title:    "   ",
		Proposer: "member-1",
	})
	if !errors.Is(err, domainerrors.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for blank title, got %v", err)
	}

	_, err = h.uc.CreateProposal(context.Background(), CreateProposalCommand{
		Title:              "x",
		Description:        "y",
		Proposer:           "member-1",
		QuorumThresholdPct: 150,
	})
	if !errors.Is(err, domainerrors.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for quorum over 100, got %v", err)
	}

	proposals, listErr := h.store.ListProposals(context.Background())
	if listErr != nil {
		t.Fatalf("list proposals failed: %v", listErr)
	}
	if len(proposals) != 0 {
		t.Fatalf("rejected commands must not persist proposals, found %d", len(proposals))
	}
}

func TestSubmitVoteRejectsDuplicateWithoutTallyDrift(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)

	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 500)

	_, err := h.uc.SubmitVote(context.Background(), SubmitVoteCommand{
		ProposalID:  proposal.ProposalID,
		Voter:       "member-2",
		Choice:      entities.VoteChoiceAgainst,
		VotingPower: 500,
	})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	stored, err := h.store.GetProposal(context.Background(), proposal.ProposalID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	if stored.Tally.TotalVotes != 1 || stored.Tally.PowerFor != 500 || stored.Tally.PowerAgainst != 0 {
		t.Fatalf("duplicate vote leaked into tally: %+v", stored.Tally)
	}
}

func TestSubmitVoteDeadline(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)

	// The closing instant itself still accepts ballots.
	h.clock.Advance(72 * time.Hour)
	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 100)

	h.clock.Advance(time.Second)
	_, err := h.uc.SubmitVote(context.Background(), SubmitVoteCommand{
		ProposalID:  proposal.ProposalID,
		Voter:       "member-3",
		Choice:      entities.VoteChoiceFor,
		VotingPower: 100,
	})
	if !errors.Is(err, domainerrors.ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}

	votes, listErr := h.store.ListVotesByProposal(context.Background(), proposal.ProposalID)
	if listErr != nil {
		t.Fatalf("list votes failed: %v", listErr)
	}
	if len(votes) != 1 {
		t.Fatalf("late ballot must not be recorded, found %d votes", len(votes))
	}
}

func TestSubmitVoteValidation(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)

	cases := []struct {
		name string
		cmd  SubmitVoteCommand
		want error
	}{
		{"missing proposal", SubmitVoteCommand{ProposalID: "nope", Voter: "m", Choice: entities.VoteChoiceFor, VotingPower: 1}, domainerrors.ErrProposalNotFound},
		{"bad choice", SubmitVoteCommand{ProposalID: proposal.ProposalID, Voter: "m", Choice: "maybe", VotingPower: 1}, domainerrors.ErrInvalidChoice},
		{"zero power", SubmitVoteCommand{ProposalID: proposal.ProposalID, Voter: "m", Choice: entities.VoteChoiceFor, VotingPower: 0}, domainerrors.ErrInvalidPower},
		{"negative power", SubmitVoteCommand{ProposalID: proposal.ProposalID, Voter: "m", Choice: entities.VoteChoiceFor, VotingPower: -5}, domainerrors.ErrInvalidPower},
		{"blank voter", SubmitVoteCommand{ProposalID: proposal.ProposalID, Voter: "  ", Choice: entities.VoteChoiceFor, VotingPower: 1}, domainerrors.ErrInvalidParams},
	}
	for _, tc := range cases {
		if _, err := h.uc.SubmitVote(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestExecuteDecisionBlockedWhileVotingOpen(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)
	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 6000)

	_, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{ProposalID: proposal.ProposalID})
	if !errors.Is(err, domainerrors.ErrVotingStillActive) {
		t.Fatalf("expected ErrVotingStillActive, got %v", err)
	}

	// Force bypasses the deadline gate.
	result, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{
		ProposalID: proposal.ProposalID,
		Force:      true,
	})
	if err != nil {
		t.Fatalf("forced execute failed: %v", err)
	}
	if result.Status != "executed" {
		t.Fatalf("expected executed status, got %s", result.Status)
	}
}

func TestExecuteDecisionPassesAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)
	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 6000)
	h.vote(t, proposal.ProposalID, "member-3", entities.VoteChoiceAgainst, 4000)
	h.clock.Advance(73 * time.Hour)

	result, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{ProposalID: proposal.ProposalID})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Status != "executed" {
		t.Fatalf("expected executed, got %s", result.Status)
	}
	if result.Proposal.Status != entities.ProposalStatusExecuted {
		t.Fatalf("proposal not transitioned: %s", result.Proposal.Status)
	}
	if h.executor.Calls() != 1 {
		t.Fatalf("expected one executor call, got %d", h.executor.Calls())
	}

	_, err = h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{ProposalID: proposal.ProposalID})
	if !errors.Is(err, domainerrors.ErrAlreadyExecuted) {
		t.Fatalf("expected ErrAlreadyExecuted, got %v", err)
	}
	if h.executor.Calls() != 1 {
		t.Fatalf("replayed execute must not rerun executor, got %d calls", h.executor.Calls())
	}
}

func TestExecuteDecisionConcurrentSingleFlight(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)
	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 6000)
	h.clock.Advance(73 * time.Hour)

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{ProposalID: proposal.ProposalID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domainerrors.ErrAlreadyExecuted):
		default:
			t.Fatalf("unexpected race error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning execution, got %d", wins)
	}
	if h.executor.Calls() != 1 {
		t.Fatalf("executor must run once across racers, got %d", h.executor.Calls())
	}
}

func TestExecuteDecisionRejectedVerdict(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)
	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 400)
	h.vote(t, proposal.ProposalID, "member-3", entities.VoteChoiceAgainst, 1000)
	h.clock.Advance(73 * time.Hour)

	_, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{ProposalID: proposal.ProposalID})
	if !errors.Is(err, domainerrors.ErrProposalRejected) {
		t.Fatalf("expected ErrProposalRejected, got %v", err)
	}
	stored, getErr := h.store.GetProposal(context.Background(), proposal.ProposalID)
	if getErr != nil {
		t.Fatalf("get proposal failed: %v", getErr)
	}
	if stored.Status != entities.ProposalStatusActive {
		t.Fatalf("rejected verdict without force must stay active, got %s", stored.Status)
	}

	result, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{
		ProposalID: proposal.ProposalID,
		Force:      true,
	})
	if err != nil {
		t.Fatalf("forced finalize failed: %v", err)
	}
	if result.Status != "rejected" {
		t.Fatalf("expected rejected status, got %s", result.Status)
	}
	if result.Proposal.Status != entities.ProposalStatusFailed {
		t.Fatalf("expected failed proposal, got %s", result.Proposal.Status)
	}
	if h.executor.Calls() != 0 {
		t.Fatalf("executor must not run for a failing verdict, got %d calls", h.executor.Calls())
	}
	if result.Proposal.ExecutionResult == nil || !result.Proposal.ExecutionResult.Forced {
		t.Fatalf("forced flag not recorded: %+v", result.Proposal.ExecutionResult)
	}
}

func TestExecuteDecisionExecutorFailureLeavesActive(t *testing.T) {
	h := newHarness(t)
	h.executor.Err = errors.New("chain rpc unavailable")
	proposal := h.createProposal(t)
	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 6000)
	h.clock.Advance(73 * time.Hour)

	_, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{ProposalID: proposal.ProposalID})
	if !errors.Is(err, domainerrors.ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	stored, getErr := h.store.GetProposal(context.Background(), proposal.ProposalID)
	if getErr != nil {
		t.Fatalf("get proposal failed: %v", getErr)
	}
	if stored.Status != entities.ProposalStatusActive {
		t.Fatalf("executor failure must leave proposal active for retry, got %s", stored.Status)
	}

	h.executor.Err = nil
	result, err := h.uc.ExecuteDecision(context.Background(), ExecuteDecisionCommand{ProposalID: proposal.ProposalID})
	if err != nil {
		t.Fatalf("retry execute failed: %v", err)
	}
	if result.Status != "executed" {
		t.Fatalf("retry should execute, got %s", result.Status)
	}
}

func TestSubmitVoteAppendsOutboxEnvelope(t *testing.T) {
	h := newHarness(t)
	proposal := h.createProposal(t)
	h.vote(t, proposal.ProposalID, "member-2", entities.VoteChoiceFor, 100)

	pending, err := h.store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	var sawCreated, sawVote bool
	var voteMsg ports.OutboxMessage
	for _, msg := range pending {
		switch msg.EventType {
		case "governance.proposal_created":
			sawCreated = true
		case "governance.vote_submitted":
			sawVote = true
			voteMsg = msg
		}
	}
	if !sawCreated || !sawVote {
		t.Fatalf("expected proposal and vote envelopes, got %+v", pending)
	}
	if voteMsg.PartitionKey != proposal.ProposalID {
		t.Fatalf("vote envelope must partition by proposal id, got %q", voteMsg.PartitionKey)
	}
}
