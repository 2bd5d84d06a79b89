package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type GovernanceParamsRequest struct {
	QuorumThresholdPct   float64 `json:"quorum_threshold_pct,omitempty"`
	ApprovalThresholdPct float64 `json:"approval_threshold_pct,omitempty"`
	VotingPeriodSeconds  int64   `json:"voting_period_seconds,omitempty"`
}

type ExecutionSpecRequest struct {
	TargetRef    string   `json:"target_ref"`
	FunctionName string   `json:"function_name"`
	Args         []string `json:"args,omitempty"`
}

type CreateProposalRequest struct {
	Title         string                   `json:"title"`
	Description   string                   `json:"description"`
	Category      string                   `json:"category,omitempty"`
	Params        *GovernanceParamsRequest `json:"params,omitempty"`
	ExecutionSpec *ExecutionSpecRequest    `json:"execution_spec,omitempty"`
}

type TallyResponse struct {
	TotalVotes   int     `json:"total_votes"`
	VotesFor     int     `json:"votes_for"`
	VotesAgainst int     `json:"votes_against"`
	VotesAbstain int     `json:"votes_abstain"`
	PowerFor     float64 `json:"power_for"`
	PowerAgainst float64 `json:"power_against"`
	PowerAbstain float64 `json:"power_abstain"`
}

type ExecutionResultResponse struct {
	Passed            bool    `json:"passed"`
	Forced            bool    `json:"forced"`
	Reason            string  `json:"reason"`
	ParticipationRate float64 `json:"participation_rate"`
	ApprovalRate      float64 `json:"approval_rate"`
	ExternalReference string  `json:"external_reference,omitempty"`
	Output            string  `json:"output,omitempty"`
	ExecutedAt        string  `json:"executed_at"`
}

type ProposalResponse struct {
	ProposalID           string                   `json:"proposal_id"`
	Title                string                   `json:"title"`
	Description          string                   `json:"description"`
	Proposer             string                   `json:"proposer"`
	Category             string                   `json:"category,omitempty"`
	QuorumThresholdPct   float64                  `json:"quorum_threshold_pct"`
	ApprovalThresholdPct float64                  `json:"approval_threshold_pct"`
	VotingPeriodSeconds  int64                    `json:"voting_period_seconds"`
	ExecutionSpec        *ExecutionSpecRequest    `json:"execution_spec,omitempty"`
	Status               string                   `json:"status"`
	Tally                TallyResponse            `json:"tally"`
	ExecutionResult      *ExecutionResultResponse `json:"execution_result,omitempty"`
	CreatedAt            string                   `json:"created_at"`
	VotingEndsAt         string                   `json:"voting_ends_at"`
	UpdatedAt            string                   `json:"updated_at"`
}

type SubmitVoteRequest struct {
	Choice      string  `json:"choice"`
	VotingPower float64 `json:"voting_power"`
	Reason      string  `json:"reason,omitempty"`
}

type VoteResponse struct {
	VoteID      string  `json:"vote_id"`
	ProposalID  string  `json:"proposal_id"`
	Voter       string  `json:"voter"`
	Choice      string  `json:"choice"`
	VotingPower float64 `json:"voting_power"`
	Reason      string  `json:"reason,omitempty"`
	CastAt      string  `json:"cast_at"`
}

type SubmitVoteResponse struct {
	Vote  VoteResponse  `json:"vote"`
	Tally TallyResponse `json:"tally"`
}

type ExecuteProposalRequest struct {
	Force bool `json:"force,omitempty"`
}

type ExecuteProposalResponse struct {
	ProposalID        string  `json:"proposal_id"`
	Status            string  `json:"status"`
	Passed            bool    `json:"passed"`
	Forced            bool    `json:"forced"`
	Reason            string  `json:"reason"`
	ParticipationRate float64 `json:"participation_rate"`
	ApprovalRate      float64 `json:"approval_rate"`
	QuorumMet         bool    `json:"quorum_met"`
	ApprovalMet       bool    `json:"approval_met"`
	ExternalReference string  `json:"external_reference,omitempty"`
	Output            string  `json:"output,omitempty"`
}

type ProposalStatusItem struct {
	ProposalID        string        `json:"proposal_id"`
	Title             string        `json:"title"`
	Status            string        `json:"status"`
	Tally             TallyResponse `json:"tally"`
	ParticipationRate float64       `json:"participation_rate"`
	ApprovalRate      float64       `json:"approval_rate"`
	QuorumMet         bool          `json:"quorum_met"`
	ApprovalMet       bool          `json:"approval_met"`
	CurrentVerdict    string        `json:"current_verdict"`
	VotingEndsAt      string        `json:"voting_ends_at"`
	SecondsRemaining  int64         `json:"seconds_remaining"`
}

type GovernanceMetricsResponse struct {
	TotalProposals       int     `json:"total_proposals"`
	ActiveProposals      int     `json:"active_proposals"`
	ExecutedProposals    int     `json:"executed_proposals"`
	FailedProposals      int     `json:"failed_proposals"`
	ExecutionRate        float64 `json:"execution_rate"`
	AverageParticipation float64 `json:"average_participation"`
}

type MonitorResponse struct {
	Proposals []ProposalStatusItem       `json:"proposals"`
	History   []VoteResponse             `json:"history,omitempty"`
	Metrics   *GovernanceMetricsResponse `json:"metrics,omitempty"`
}

type ProposalDetailResponse struct {
	Proposal ProposalResponse `json:"proposal"`
	Votes    []VoteResponse   `json:"votes"`
}

type VoteHistoryResponse struct {
	ProposalID string         `json:"proposal_id,omitempty"`
	Items      []VoteResponse `json:"items"`
}
