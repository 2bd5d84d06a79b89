package entities

import "time"

type ProposalStatus string

const (
	ProposalStatusActive   ProposalStatus = "active"
	ProposalStatusExecuted ProposalStatus = "executed"
	ProposalStatusFailed   ProposalStatus = "failed"
)

// IsTerminal reports whether no further status transition is allowed.
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalStatusExecuted || s == ProposalStatusFailed
}

// GovernanceParams are the per-proposal decision rules. Defaults come from
// process configuration and may be overridden at proposal creation; both
// percentage thresholds must sit in (0,100] and the period must be positive.
type GovernanceParams struct {
	QuorumThresholdPct   float64
	ApprovalThresholdPct float64
	VotingPeriod         time.Duration
}

func (p GovernanceParams) Valid() bool {
	return p.QuorumThresholdPct > 0 && p.QuorumThresholdPct <= 100 &&
		p.ApprovalThresholdPct > 0 && p.ApprovalThresholdPct <= 100 &&
		p.VotingPeriod > 0
}

// ExecutionSpec is the opaque action carried out when a proposal passes.
// The engine never interprets it; it is handed to the decision executor.
type ExecutionSpec struct {
	TargetRef    string
	FunctionName string
	Args         []string
}

// ExecutionResult is written exactly once when a proposal reaches a terminal
// status.
type ExecutionResult struct {
	Passed            bool
	Forced            bool
	Reason            string
	ParticipationRate float64
	ApprovalRate      float64
	ExternalReference string
	Output            string
	ExecutedAt        time.Time
}

// Tally is the denormalized per-proposal vote aggregate, kept O(1) to read.
// TotalVotes must always equal the count of ledger records for the proposal.
type Tally struct {
	TotalVotes   int
	VotesFor     int
	VotesAgainst int
	VotesAbstain int
	PowerFor     float64
	PowerAgainst float64
	PowerAbstain float64
}

func (t Tally) TotalPower() float64 {
	return t.PowerFor + t.PowerAgainst + t.PowerAbstain
}

// Proposal is a governance item subject to a timed weighted vote and an
// optional execution action. Proposals are append-only audit state: they are
// never deleted, only transitioned active -> executed|failed.
type Proposal struct {
	ProposalID      string
	Title           string
	Description     string
	Proposer        string
	Category        string
	Params          GovernanceParams
	ExecutionSpec   *ExecutionSpec
	Tally           Tally
	Status          ProposalStatus
	ExecutionResult *ExecutionResult
	CreatedAt       time.Time
	VotingEndsAt    time.Time
	UpdatedAt       time.Time
}

// VotingOpen reports whether the voting window is still open at the given
// instant. Closing is exclusive: a vote at exactly VotingEndsAt is accepted.
func (p Proposal) VotingOpen(now time.Time) bool {
	return p.Status == ProposalStatusActive && !now.After(p.VotingEndsAt)
}
