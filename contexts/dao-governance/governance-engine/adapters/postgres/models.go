package postgresadapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
)

type proposalModel struct {
	ID                   string          `gorm:"column:id;primaryKey"`
	Title                string          `gorm:"column:title"`
	Description          string          `gorm:"column:description"`
	Proposer             string          `gorm:"column:proposer"`
	Category             string          `gorm:"column:category"`
	QuorumThresholdPct   float64         `gorm:"column:quorum_threshold_pct"`
	ApprovalThresholdPct float64         `gorm:"column:approval_threshold_pct"`
	VotingPeriodSeconds  int64           `gorm:"column:voting_period_seconds"`
	ExecutionSpec        json.RawMessage `gorm:"column:execution_spec;type:jsonb"`
	TotalVotes           int             `gorm:"column:total_votes"`
	VotesFor             int             `gorm:"column:votes_for"`
	VotesAgainst         int             `gorm:"column:votes_against"`
	VotesAbstain         int             `gorm:"column:votes_abstain"`
	PowerFor             float64         `gorm:"column:power_for"`
	PowerAgainst         float64         `gorm:"column:power_against"`
	PowerAbstain         float64         `gorm:"column:power_abstain"`
	Status               string          `gorm:"column:status"`
	ExecutionResult      json.RawMessage `gorm:"column:execution_result;type:jsonb"`
	CreatedAt            time.Time       `gorm:"column:created_at"`
	VotingEndsAt         time.Time       `gorm:"column:voting_ends_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at"`
}

func (proposalModel) TableName() string {
	return "governance_proposals"
}

// executionSpecDoc and executionResultDoc pin the jsonb column shapes so
// struct renames cannot silently rewrite stored rows.
type executionSpecDoc struct {
	TargetRef    string   `json:"target_ref"`
	FunctionName string   `json:"function_name"`
	Args         []string `json:"args,omitempty"`
}

type executionResultDocModel struct {
	Passed            bool      `json:"passed"`
	Forced            bool      `json:"forced"`
	Reason            string    `json:"reason"`
	ParticipationRate float64   `json:"participation_rate"`
	ApprovalRate      float64   `json:"approval_rate"`
	ExternalReference string    `json:"external_reference,omitempty"`
	Output            string    `json:"output,omitempty"`
	ExecutedAt        time.Time `json:"executed_at"`
}

func executionResultDoc(result entities.ExecutionResult) executionResultDocModel {
	return executionResultDocModel{
		Passed:            result.Passed,
		Forced:            result.Forced,
		Reason:            result.Reason,
		ParticipationRate: result.ParticipationRate,
		ApprovalRate:      result.ApprovalRate,
		ExternalReference: result.ExternalReference,
		Output:            result.Output,
		ExecutedAt:        result.ExecutedAt.UTC(),
	}
}

func proposalModelFromEntity(proposal entities.Proposal) (proposalModel, error) {
	row := proposalModel{
		ID:                   strings.TrimSpace(proposal.ProposalID),
		Title:                strings.TrimSpace(proposal.Title),
		Description:          proposal.Description,
		Proposer:             strings.TrimSpace(proposal.Proposer),
		Category:             strings.TrimSpace(proposal.Category),
		QuorumThresholdPct:   proposal.Params.QuorumThresholdPct,
		ApprovalThresholdPct: proposal.Params.ApprovalThresholdPct,
		VotingPeriodSeconds:  int64(proposal.Params.VotingPeriod / time.Second),
		TotalVotes:           proposal.Tally.TotalVotes,
		VotesFor:             proposal.Tally.VotesFor,
		VotesAgainst:         proposal.Tally.VotesAgainst,
		VotesAbstain:         proposal.Tally.VotesAbstain,
		PowerFor:             proposal.Tally.PowerFor,
		PowerAgainst:         proposal.Tally.PowerAgainst,
		PowerAbstain:         proposal.Tally.PowerAbstain,
		Status:               string(proposal.Status),
		CreatedAt:            proposal.CreatedAt.UTC(),
		VotingEndsAt:         proposal.VotingEndsAt.UTC(),
		UpdatedAt:            proposal.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	if proposal.ExecutionSpec != nil {
		encoded, err := json.Marshal(executionSpecDoc{
			TargetRef:    strings.TrimSpace(proposal.ExecutionSpec.TargetRef),
			FunctionName: strings.TrimSpace(proposal.ExecutionSpec.FunctionName),
			Args:         proposal.ExecutionSpec.Args,
		})
		if err != nil {
			return proposalModel{}, fmt.Errorf("encode execution spec: %w", err)
		}
		row.ExecutionSpec = encoded
	}
	if proposal.ExecutionResult != nil {
		encoded, err := json.Marshal(executionResultDoc(*proposal.ExecutionResult))
		if err != nil {
			return proposalModel{}, fmt.Errorf("encode execution result: %w", err)
		}
		row.ExecutionResult = encoded
	}
	return row, nil
}

func (m proposalModel) toEntity() (entities.Proposal, error) {
	proposal := entities.Proposal{
		ProposalID:  m.ID,
		Title:       m.Title,
		Description: m.Description,
		Proposer:    m.Proposer,
		Category:    m.Category,
		Params: entities.GovernanceParams{
			QuorumThresholdPct:   m.QuorumThresholdPct,
			ApprovalThresholdPct: m.ApprovalThresholdPct,
			VotingPeriod:         time.Duration(m.VotingPeriodSeconds) * time.Second,
		},
		Tally:        m.tally(),
		Status:       entities.ProposalStatus(m.Status),
		CreatedAt:    m.CreatedAt.UTC(),
		VotingEndsAt: m.VotingEndsAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if len(m.ExecutionSpec) > 0 {
		var doc executionSpecDoc
		if err := json.Unmarshal(m.ExecutionSpec, &doc); err != nil {
			return entities.Proposal{}, fmt.Errorf("decode execution spec: %w", err)
		}
		proposal.ExecutionSpec = &entities.ExecutionSpec{
			TargetRef:    doc.TargetRef,
			FunctionName: doc.FunctionName,
			Args:         doc.Args,
		}
	}
	if len(m.ExecutionResult) > 0 {
		var doc executionResultDocModel
		if err := json.Unmarshal(m.ExecutionResult, &doc); err != nil {
			return entities.Proposal{}, fmt.Errorf("decode execution result: %w", err)
		}
		proposal.ExecutionResult = &entities.ExecutionResult{
			Passed:            doc.Passed,
			Forced:            doc.Forced,
			Reason:            doc.Reason,
			ParticipationRate: doc.ParticipationRate,
			ApprovalRate:      doc.ApprovalRate,
			ExternalReference: doc.ExternalReference,
			Output:            doc.Output,
			ExecutedAt:        doc.ExecutedAt.UTC(),
		}
	}
	return proposal, nil
}

func (m proposalModel) tally() entities.Tally {
	return entities.Tally{
		TotalVotes:   m.TotalVotes,
		VotesFor:     m.VotesFor,
		VotesAgainst: m.VotesAgainst,
		VotesAbstain: m.VotesAbstain,
		PowerFor:     m.PowerFor,
		PowerAgainst: m.PowerAgainst,
		PowerAbstain: m.PowerAbstain,
	}
}

type voteModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ProposalID  string    `gorm:"column:proposal_id;uniqueIndex:uq_governance_votes_proposal_voter"`
	Voter       string    `gorm:"column:voter;uniqueIndex:uq_governance_votes_proposal_voter"`
	Choice      string    `gorm:"column:choice"`
	VotingPower float64   `gorm:"column:voting_power"`
	Reason      string    `gorm:"column:reason"`
	CastAt      time.Time `gorm:"column:cast_at"`
}

func (voteModel) TableName() string {
	return "governance_votes"
}

func voteModelFromEntity(record entities.VoteRecord) voteModel {
	row := voteModel{
		ID:          strings.TrimSpace(record.VoteID),
		ProposalID:  strings.TrimSpace(record.ProposalID),
		Voter:       strings.TrimSpace(record.Voter),
		Choice:      string(record.Choice),
		VotingPower: record.VotingPower,
		Reason:      strings.TrimSpace(record.Reason),
		CastAt:      record.CastAt.UTC(),
	}
	if row.CastAt.IsZero() {
		row.CastAt = time.Now().UTC()
	}
	return row
}

func (m voteModel) toEntity() entities.VoteRecord {
	return entities.VoteRecord{
		VoteID:      m.ID,
		ProposalID:  m.ProposalID,
		Voter:       m.Voter,
		Choice:      entities.VoteChoice(m.Choice),
		VotingPower: m.VotingPower,
		Reason:      m.Reason,
		CastAt:      m.CastAt.UTC(),
	}
}

func toVoteEntities(rows []voteModel) []entities.VoteRecord {
	items := make([]entities.VoteRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

type outboxModel struct {
	OutboxID     string          `gorm:"column:outbox_id;primaryKey"`
	EventType    string          `gorm:"column:event_type"`
	PartitionKey string          `gorm:"column:partition_key"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb"`
	Status       string          `gorm:"column:status"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	PublishedAt  *time.Time      `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "governance_event_dedup"
}

type powerSnapshotModel struct {
	ProposalID string    `gorm:"column:proposal_id;primaryKey"`
	TotalPower float64   `gorm:"column:total_power"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (powerSnapshotModel) TableName() string {
	return "governance_power_snapshots"
}
