package services

import (
	"fmt"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
)

// Evaluation is the outcome of applying governance rules to a tally. It is a
// value, never stored directly; terminal proposals persist it inside their
// ExecutionResult.
type Evaluation struct {
	Passed            bool
	Reason            string
	ParticipationRate float64
	ApprovalRate      float64
	QuorumMet         bool
	ApprovalMet       bool
}

// Evaluate computes the verdict for a proposal tally against its governance
// params and the externally supplied total eligible voting power.
//
// Participation counts all three choices; the approval ratio is for-vs-against
// only, with abstain excluded, and is defined as 0 when nobody voted for or
// against. Failure reasons report quorum before approval.
func Evaluate(tally entities.Tally, params entities.GovernanceParams, totalEligiblePower float64) Evaluation {
	eval := Evaluation{}

	if totalEligiblePower > 0 {
		eval.ParticipationRate = tally.TotalPower() / totalEligiblePower * 100
	}
	decided := tally.PowerFor + tally.PowerAgainst
	if decided > 0 {
		eval.ApprovalRate = tally.PowerFor / decided * 100
	}

	eval.QuorumMet = eval.ParticipationRate >= params.QuorumThresholdPct
	eval.ApprovalMet = eval.ApprovalRate >= params.ApprovalThresholdPct

	switch {
	case !eval.QuorumMet:
		eval.Reason = fmt.Sprintf("quorum not met: participation %.2f%% below threshold %.2f%%",
			eval.ParticipationRate, params.QuorumThresholdPct)
	case !eval.ApprovalMet:
		eval.Reason = fmt.Sprintf("approval threshold not met: approval %.2f%% below threshold %.2f%%",
			eval.ApprovalRate, params.ApprovalThresholdPct)
	default:
		eval.Passed = true
		eval.Reason = fmt.Sprintf("passed: participation %.2f%%, approval %.2f%%",
			eval.ParticipationRate, eval.ApprovalRate)
	}
	return eval
}

// IsActive reports whether a proposal accepts votes at the given instant.
// Read-only; used by the monitoring query.
func IsActive(proposal entities.Proposal, now time.Time) bool {
	return proposal.VotingOpen(now)
}
