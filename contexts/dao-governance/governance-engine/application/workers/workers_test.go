package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"agora/contexts/dao-governance/governance-engine/adapters/memory"
	"agora/contexts/dao-governance/governance-engine/ports"
)

type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func appendEnvelope(t *testing.T, store *memory.Store, eventID string, eventType string, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	err = store.AppendOutbox(context.Background(), ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       time.Now().UTC(),
		SourceService:    "governance-engine",
		SchemaVersion:    1,
		PartitionKeyPath: "proposal_id",
		PartitionKey:     "p-1",
		Data:             data,
	})
	if err != nil {
		t.Fatalf("append outbox: %v", err)
	}
}

func TestOutboxRelayPublishesAndAcknowledges(t *testing.T) {
	store := memory.NewStore(10000)
	appendEnvelope(t, store, "evt-1", "governance.proposal_created", map[string]any{"proposal_id": "p-1"})
	appendEnvelope(t, store, "evt-2", "governance.vote_submitted", map[string]any{"proposal_id": "p-1"})

	publisher := &capturingPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     store,
	}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.events))
	}
	if publisher.topics[0] != "governance.proposal_created" || publisher.topics[1] != "governance.vote_submitted" {
		t.Fatalf("events must route to their type topic, got %v", publisher.topics)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("published rows must be acknowledged, %d still pending", len(pending))
	}

	// A second cycle is a no-op.
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("idle relay run failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("acknowledged rows must not republish, got %d events", len(publisher.events))
	}
}

func TestOutboxRelayKeepsRowsOnPublishFailure(t *testing.T) {
	store := memory.NewStore(10000)
	appendEnvelope(t, store, "evt-1", "governance.proposal_created", map[string]any{"proposal_id": "p-1"})

	publisher := &capturingPublisher{err: errors.New("broker down")}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     store,
	}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish failure to surface")
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed publish must keep row pending, got %d", len(pending))
	}

	publisher.err = nil
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("retry relay run failed: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected retried publish, got %d events", len(publisher.events))
	}
}

func supplyEvent(t *testing.T, eventID string, proposalID string, totalPower float64) ports.EventEnvelope {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"proposal_id": proposalID,
		"total_power": totalPower,
	})
	if err != nil {
		t.Fatalf("marshal supply payload: %v", err)
	}
	return ports.EventEnvelope{
		EventID:       eventID,
		EventType:     "token.supply_updated",
		OccurredAt:    time.Now().UTC(),
		SourceService: "token-service",
		SchemaVersion: 1,
		Data:          data,
	}
}

func TestPowerSnapshotConsumerUpdatesOracle(t *testing.T) {
	store := memory.NewStore(10000)
	consumer := PowerSnapshotConsumer{
		Dedup:     store,
		Snapshots: store,
		Clock:     store,
	}

	event := supplyEvent(t, "evt-1", "p-1", 500000)
	if err := consumer.handleSupplyUpdated(context.Background(), event); err != nil {
		t.Fatalf("handle supply event failed: %v", err)
	}

	power, err := store.TotalEligiblePower(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("oracle read failed: %v", err)
	}
	if power != 500000 {
		t.Fatalf("expected snapshot 500000, got %f", power)
	}
}

func TestPowerSnapshotConsumerDedupesReplays(t *testing.T) {
	store := memory.NewStore(10000)
	consumer := PowerSnapshotConsumer{
		Dedup:     store,
		Snapshots: store,
		Clock:     store,
	}

	event := supplyEvent(t, "evt-1", "p-1", 500000)
	if err := consumer.handleSupplyUpdated(context.Background(), event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	// Replay with the same id carries the same payload and is absorbed.
	if err := consumer.handleSupplyUpdated(context.Background(), event); err != nil {
		t.Fatalf("replayed delivery failed: %v", err)
	}

	power, err := store.TotalEligiblePower(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("oracle read failed: %v", err)
	}
	if power != 500000 {
		t.Fatalf("replay must not change snapshot, got %f", power)
	}
}

func TestPowerSnapshotConsumerIgnoresInvalidPayload(t *testing.T) {
	store := memory.NewStore(0)
	consumer := PowerSnapshotConsumer{
		Dedup:     store,
		Snapshots: store,
		Clock:     store,
	}

	event := supplyEvent(t, "evt-1", "", 500000)
	if err := consumer.handleSupplyUpdated(context.Background(), event); err != nil {
		t.Fatalf("invalid payload must be skipped, not failed: %v", err)
	}

	zero := supplyEvent(t, "evt-2", "p-1", 0)
	if err := consumer.handleSupplyUpdated(context.Background(), zero); err != nil {
		t.Fatalf("zero power payload must be skipped, not failed: %v", err)
	}

	if _, found, err := store.GetPowerSnapshot(context.Background(), "p-1"); err != nil || found {
		t.Fatalf("no snapshot expected, found=%v err=%v", found, err)
	}
}
