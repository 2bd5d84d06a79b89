package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
	domainerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
	"agora/contexts/dao-governance/governance-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository is the durable adapter for every stateful engine port. Vote
// uniqueness rides on the (proposal_id, voter) unique index; terminal-status
// stickiness rides on status-guarded updates.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger

	// DefaultEligiblePower is the oracle fallback when no snapshot row exists.
	DefaultEligiblePower float64
}

func NewRepository(db *gorm.DB, defaultEligiblePower float64, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:                   db,
		logger:               logger,
		DefaultEligiblePower: defaultEligiblePower,
	}
}

func (r *Repository) CreateProposal(ctx context.Context, proposal entities.Proposal) error {
	row, err := proposalModelFromEntity(proposal)
	if err != nil {
		return r.logError("governance_repo_proposal_encode_failed", err,
			"proposal_id", strings.TrimSpace(proposal.ProposalID),
		)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateProposal
		}
		return r.logError("governance_repo_proposal_create_failed", err,
			"proposal_id", row.ID,
		)
	}
	return nil
}

func (r *Repository) GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error) {
	var row proposalModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, r.logError("governance_repo_proposal_get_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return row.toEntity()
}

func (r *Repository) ListProposals(ctx context.Context) ([]entities.Proposal, error) {
	var rows []proposalModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_proposal_list_failed", err)
	}
	items := make([]entities.Proposal, 0, len(rows))
	for _, row := range rows {
		proposal, err := row.toEntity()
		if err != nil {
			return nil, r.logError("governance_repo_proposal_decode_failed", err, "proposal_id", row.ID)
		}
		items = append(items, proposal)
	}
	return items, nil
}

func (r *Repository) UpdateTally(
	ctx context.Context,
	proposalID string,
	choice entities.VoteChoice,
	power float64,
	updatedAt time.Time,
) (entities.Tally, error) {
	id := strings.TrimSpace(proposalID)

	assignments := map[string]any{
		"total_votes": gorm.Expr("total_votes + 1"),
		"updated_at":  updatedAt.UTC(),
	}
	switch choice {
	case entities.VoteChoiceFor:
		assignments["votes_for"] = gorm.Expr("votes_for + 1")
		assignments["power_for"] = gorm.Expr("power_for + ?", power)
	case entities.VoteChoiceAgainst:
		assignments["votes_against"] = gorm.Expr("votes_against + 1")
		assignments["power_against"] = gorm.Expr("power_against + ?", power)
	case entities.VoteChoiceAbstain:
		assignments["votes_abstain"] = gorm.Expr("votes_abstain + 1")
		assignments["power_abstain"] = gorm.Expr("power_abstain + ?", power)
	default:
		return entities.Tally{}, domainerrors.ErrInvalidChoice
	}

	result := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("id = ?", id).
		Updates(assignments)
	if result.Error != nil {
		return entities.Tally{}, r.logError("governance_repo_tally_update_failed", result.Error,
			"proposal_id", id,
		)
	}
	if result.RowsAffected == 0 {
		return entities.Tally{}, domainerrors.ErrProposalNotFound
	}

	var row proposalModel
	if err := r.db.WithContext(ctx).
		Select("total_votes", "votes_for", "votes_against", "votes_abstain",
			"power_for", "power_against", "power_abstain").
		Where("id = ?", id).
		First(&row).Error; err != nil {
		return entities.Tally{}, r.logError("governance_repo_tally_reload_failed", err, "proposal_id", id)
	}
	return row.tally(), nil
}

func (r *Repository) TransitionProposal(
	ctx context.Context,
	proposalID string,
	to entities.ProposalStatus,
	result entities.ExecutionResult,
	updatedAt time.Time,
) error {
	if !to.IsTerminal() {
		return domainerrors.ErrInvalidTransition
	}
	id := strings.TrimSpace(proposalID)

	encoded, err := json.Marshal(executionResultDoc(result))
	if err != nil {
		return r.logError("governance_repo_result_encode_failed", err, "proposal_id", id)
	}

	// The status guard makes the terminal transition a compare-and-swap:
	// concurrent finalizers race on the same row and only one flips it.
	update := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("id = ?", id).
		Where("status = ?", string(entities.ProposalStatusActive)).
		Updates(map[string]any{
			"status":           string(to),
			"execution_result": encoded,
			"updated_at":       updatedAt.UTC(),
		})
	if update.Error != nil {
		return r.logError("governance_repo_transition_failed", update.Error,
			"proposal_id", id,
			"to_status", string(to),
		)
	}
	if update.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return r.logError("governance_repo_transition_lookup_failed", err, "proposal_id", id)
	}
	if count == 0 {
		return domainerrors.ErrProposalNotFound
	}
	return domainerrors.ErrInvalidTransition
}

func (r *Repository) TryRecordVote(ctx context.Context, record entities.VoteRecord) error {
	row := voteModelFromEntity(record)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyVoted
		}
		return r.logError("governance_repo_vote_insert_failed", err,
			"proposal_id", row.ProposalID,
			"voter", row.Voter,
		)
	}
	return nil
}

func (r *Repository) ListVotesByProposal(ctx context.Context, proposalID string) ([]entities.VoteRecord, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("proposal_id = ?", strings.TrimSpace(proposalID)).
		Order("cast_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_vote_list_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return toVoteEntities(rows), nil
}

func (r *Repository) ListVotes(ctx context.Context) ([]entities.VoteRecord, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Order("cast_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_vote_list_all_failed", err)
	}
	return toVoteEntities(rows), nil
}

func (r *Repository) TotalEligiblePower(ctx context.Context, proposalID string) (float64, error) {
	power, found, err := r.GetPowerSnapshot(ctx, proposalID)
	if err != nil {
		return 0, err
	}
	if found {
		return power, nil
	}
	if r.DefaultEligiblePower <= 0 {
		return 0, domainerrors.ErrOracleUnavailable
	}
	return r.DefaultEligiblePower, nil
}

func (r *Repository) PutPowerSnapshot(ctx context.Context, proposalID string, totalPower float64, updatedAt time.Time) error {
	row := powerSnapshotModel{
		ProposalID: strings.TrimSpace(proposalID),
		TotalPower: totalPower,
		UpdatedAt:  updatedAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "proposal_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_power": row.TotalPower,
			"updated_at":  row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_snapshot_put_failed", create.Error,
			"proposal_id", row.ProposalID,
		)
	}
	return nil
}

func (r *Repository) GetPowerSnapshot(ctx context.Context, proposalID string) (float64, bool, error) {
	var row powerSnapshotModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, r.logError("governance_repo_snapshot_get_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return row.TotalPower, true, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("governance_repo_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("governance_repo_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_outbox_list_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("governance_repo_outbox_mark_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("governance_repo_reserve_event_failed", create.Error,
			"event_id", row.EventID,
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("governance_repo_reserve_event_load_failed", err,
			"event_id", row.EventID,
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

// SystemClock and UUIDGenerator are the production implementations of the
// engine's deterministic-by-injection ports.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "dao-governance/governance-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.ProposalRepository = (*Repository)(nil)
var _ ports.VoteLedger = (*Repository)(nil)
var _ ports.PowerOracle = (*Repository)(nil)
var _ ports.PowerSnapshotStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
