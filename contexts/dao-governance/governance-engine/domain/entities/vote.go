package entities

import "time"

type VoteChoice string

const (
	VoteChoiceFor     VoteChoice = "for"
	VoteChoiceAgainst VoteChoice = "against"
	VoteChoiceAbstain VoteChoice = "abstain"
)

func (c VoteChoice) Valid() bool {
	return c == VoteChoiceFor || c == VoteChoiceAgainst || c == VoteChoiceAbstain
}

// VoteRecord is one voter's weighted ballot on one proposal. Records are
// immutable once written; the ledger holds at most one per (proposal, voter).
type VoteRecord struct {
	VoteID      string
	ProposalID  string
	Voter       string
	Choice      VoteChoice
	VotingPower float64
	Reason      string
	CastAt      time.Time
}

// GovernanceMetrics is the monitoring aggregate across all proposals.
type GovernanceMetrics struct {
	TotalProposals       int
	ActiveProposals      int
	ExecutedProposals    int
	FailedProposals      int
	ExecutionRate        float64
	AverageParticipation float64
}
