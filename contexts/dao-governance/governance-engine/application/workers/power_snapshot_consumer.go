package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "agora/contexts/dao-governance/governance-engine/application"
	"agora/contexts/dao-governance/governance-engine/ports"
)

const (
	supplyUpdatedTopic = "token.supply_updated"
	defaultSnapshotCG  = "governance-engine-supply-cg"
)

// PowerSnapshotConsumer reacts to token supply events from the host token
// system and maintains per-proposal eligible-power snapshots used by the
// voting-power oracle. It never transitions proposal state.
type PowerSnapshotConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Snapshots     ports.PowerSnapshotStore
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

// Start subscribes to the token supply topic. The consumer group can be
// overridden for environment-specific deployment.
func (c PowerSnapshotConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("power snapshot consumer disabled by feature flag",
			"event", "governance_snapshot_consumer_disabled",
			"module", "dao-governance/governance-engine",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultSnapshotCG
	}
	if err := c.Subscriber.Subscribe(ctx, supplyUpdatedTopic, group, c.handleSupplyUpdated); err != nil {
		logger.Error("power snapshot consumer subscribe failed",
			"event", "governance_snapshot_consumer_subscribe_failed",
			"module", "dao-governance/governance-engine",
			"layer", "worker",
			"topic", supplyUpdatedTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("power snapshot consumer subscription active",
		"event", "governance_snapshot_consumer_started",
		"module", "dao-governance/governance-engine",
		"layer", "worker",
		"topic", supplyUpdatedTopic,
		"consumer_group", group,
	)
	return nil
}

type supplyUpdatedPayload struct {
	ProposalID string  `json:"proposal_id"`
	TotalPower float64 `json:"total_power"`
}

func (c PowerSnapshotConsumer) handleSupplyUpdated(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	ttl := c.DedupTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	processed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), now.Add(ttl))
	if err != nil {
		return err
	}
	if processed {
		logger.Debug("supply event already processed",
			"event", "governance_snapshot_event_deduped",
			"module", "dao-governance/governance-engine",
			"layer", "worker",
			"event_id", event.EventID,
		)
		return nil
	}

	var payload supplyUpdatedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("supply event decode failed",
			"event", "governance_snapshot_decode_failed",
			"module", "dao-governance/governance-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	if strings.TrimSpace(payload.ProposalID) == "" || payload.TotalPower <= 0 {
		logger.Warn("supply event ignored: invalid payload",
			"event", "governance_snapshot_payload_invalid",
			"module", "dao-governance/governance-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"proposal_id", strings.TrimSpace(payload.ProposalID),
			"total_power", payload.TotalPower,
		)
		return nil
	}

	if err := c.Snapshots.PutPowerSnapshot(ctx, strings.TrimSpace(payload.ProposalID), payload.TotalPower, now); err != nil {
		return err
	}
	logger.Info("power snapshot updated",
		"event", "governance_snapshot_updated",
		"module", "dao-governance/governance-engine",
		"layer", "worker",
		"proposal_id", strings.TrimSpace(payload.ProposalID),
		"total_power", payload.TotalPower,
	)
	return nil
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
