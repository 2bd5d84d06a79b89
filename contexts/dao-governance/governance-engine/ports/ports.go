package ports

import (
	"context"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
	contractsv1 "agora/contracts/gen/events/v1"
)

// ProposalRepository owns proposal records. Proposals are never deleted;
// status moves through TransitionProposal exactly once.
type ProposalRepository interface {
	// CreateProposal fails with ErrDuplicateProposal on id collision.
	CreateProposal(ctx context.Context, proposal entities.Proposal) error
	GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error)
	ListProposals(ctx context.Context) ([]entities.Proposal, error)
	// UpdateTally atomically applies one vote's increments to the denormalized
	// tally. Concurrent votes on the same proposal must not lose updates.
	UpdateTally(ctx context.Context, proposalID string, choice entities.VoteChoice, power float64, updatedAt time.Time) (entities.Tally, error)
	// TransitionProposal moves an active proposal to a terminal status and
	// records the execution result. It fails with ErrInvalidTransition when the
	// current status is already terminal, atomically with concurrent callers.
	TransitionProposal(ctx context.Context, proposalID string, to entities.ProposalStatus, result entities.ExecutionResult, updatedAt time.Time) error
}

// VoteLedger owns one immutable record per (proposal, voter).
type VoteLedger interface {
	// TryRecordVote is an atomic check-and-insert: for concurrent calls with
	// the same (proposal, voter) exactly one succeeds and the rest fail with
	// ErrAlreadyVoted.
	TryRecordVote(ctx context.Context, record entities.VoteRecord) error
	// ListVotesByProposal returns records ordered by cast time ascending.
	ListVotesByProposal(ctx context.Context, proposalID string) ([]entities.VoteRecord, error)
	ListVotes(ctx context.Context) ([]entities.VoteRecord, error)
}

// PowerOracle supplies the total eligible voting power used as the
// participation denominator. Sourced from the host token/identity system;
// the engine never verifies individual voter balances.
type PowerOracle interface {
	TotalEligiblePower(ctx context.Context, proposalID string) (float64, error)
}

// ExecutionOutcome is the decision executor's reply for an approved proposal.
type ExecutionOutcome struct {
	Success           bool
	ExternalReference string
	Output            string
}

// DecisionExecutor carries out the real-world effect of an approved proposal.
// Implementations must honor ctx cancellation; the engine bounds each call
// with its configured timeout.
type DecisionExecutor interface {
	Execute(ctx context.Context, spec entities.ExecutionSpec) (ExecutionOutcome, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// OutboxWriter appends notification envelopes without blocking on delivery.
type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber attaches consumer-group handlers to topics.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}

// EventDedupStore provides idempotent processing guarantees for consumed
// events. ReserveEvent returns true when the event was already processed.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}

// PowerSnapshotStore persists eligible-power snapshots maintained by the
// token supply consumer and read by the snapshot-backed oracle.
type PowerSnapshotStore interface {
	PutPowerSnapshot(ctx context.Context, proposalID string, totalPower float64, updatedAt time.Time) error
	GetPowerSnapshot(ctx context.Context, proposalID string) (float64, bool, error)
}
