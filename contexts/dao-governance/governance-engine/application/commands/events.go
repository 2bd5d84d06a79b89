package commands

import (
	"context"
	"encoding/json"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
	"agora/contexts/dao-governance/governance-engine/ports"
)

// Notifications are partitioned by proposal so proposal-scoped consumers see
// a stable order. The outbox append is a local store write: the engine never
// blocks on broker delivery.

func (uc GovernanceUseCase) appendProposalEvent(
	ctx context.Context,
	eventType string,
	proposal entities.Proposal,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	if uc.Outbox == nil {
		return nil
	}
	data := map[string]any{
		"proposal_id": proposal.ProposalID,
		"title":       proposal.Title,
		"proposer":    proposal.Proposer,
		"category":    proposal.Category,
		"status":      string(proposal.Status),
		"occurred_at": occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}
	return uc.appendEnvelope(ctx, eventType, proposal.ProposalID, occurredAt, data)
}

func (uc GovernanceUseCase) appendVoteEvent(
	ctx context.Context,
	eventType string,
	record entities.VoteRecord,
	occurredAt time.Time,
) error {
	if uc.Outbox == nil {
		return nil
	}
	data := map[string]any{
		"vote_id":      record.VoteID,
		"proposal_id":  record.ProposalID,
		"voter":        record.Voter,
		"choice":       string(record.Choice),
		"voting_power": record.VotingPower,
		"occurred_at":  occurredAt.Format(time.RFC3339),
	}
	return uc.appendEnvelope(ctx, eventType, record.ProposalID, occurredAt, data)
}

func (uc GovernanceUseCase) appendEnvelope(
	ctx context.Context,
	eventType string,
	proposalID string,
	occurredAt time.Time,
	data map[string]any,
) error {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "governance-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "proposal_id",
		PartitionKey:     proposalID,
		Data:             payload,
	})
}
