package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
	domainerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
	"agora/contexts/dao-governance/governance-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Store is the in-process adapter backing every engine port that holds
// state. One mutex covers proposals, the vote ledger, and the tally so that
// the uniqueness and tally-consistency invariants hold under concurrent
// callers.
type Store struct {
	mu sync.RWMutex

	proposals  map[string]entities.Proposal
	votes      map[string]entities.VoteRecord
	voteIndex  map[string]string
	outbox     map[string]outboxRecord
	eventDedup map[string]dedupRecord
	snapshots  map[string]float64

	// DefaultEligiblePower is the oracle fallback when no snapshot exists for
	// a proposal.
	DefaultEligiblePower float64
}

func NewStore(defaultEligiblePower float64) *Store {
	return &Store{
		proposals:            make(map[string]entities.Proposal),
		votes:                make(map[string]entities.VoteRecord),
		voteIndex:            make(map[string]string),
		outbox:               make(map[string]outboxRecord),
		eventDedup:           make(map[string]dedupRecord),
		snapshots:            make(map[string]float64),
		DefaultEligiblePower: defaultEligiblePower,
	}
}

func voteKey(proposalID string, voter string) string {
	return strings.TrimSpace(proposalID) + "\x00" + strings.TrimSpace(voter)
}

func (s *Store) CreateProposal(_ context.Context, proposal entities.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(proposal.ProposalID)
	if _, exists := s.proposals[id]; exists {
		return domainerrors.ErrDuplicateProposal
	}
	s.proposals[id] = proposal
	return nil
}

func (s *Store) GetProposal(_ context.Context, proposalID string) (entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proposal, ok := s.proposals[strings.TrimSpace(proposalID)]
	if !ok {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return proposal, nil
}

func (s *Store) ListProposals(_ context.Context) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Proposal, 0, len(s.proposals))
	for _, proposal := range s.proposals {
		items = append(items, proposal)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ProposalID < items[j].ProposalID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) UpdateTally(
	_ context.Context,
	proposalID string,
	choice entities.VoteChoice,
	power float64,
	updatedAt time.Time,
) (entities.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(proposalID)
	proposal, ok := s.proposals[id]
	if !ok {
		return entities.Tally{}, domainerrors.ErrProposalNotFound
	}
	proposal.Tally.TotalVotes++
	switch choice {
	case entities.VoteChoiceFor:
		proposal.Tally.VotesFor++
		proposal.Tally.PowerFor += power
	case entities.VoteChoiceAgainst:
		proposal.Tally.VotesAgainst++
		proposal.Tally.PowerAgainst += power
	case entities.VoteChoiceAbstain:
		proposal.Tally.VotesAbstain++
		proposal.Tally.PowerAbstain += power
	default:
		return entities.Tally{}, domainerrors.ErrInvalidChoice
	}
	proposal.UpdatedAt = updatedAt.UTC()
	s.proposals[id] = proposal
	return proposal.Tally, nil
}

func (s *Store) TransitionProposal(
	_ context.Context,
	proposalID string,
	to entities.ProposalStatus,
	result entities.ExecutionResult,
	updatedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(proposalID)
	proposal, ok := s.proposals[id]
	if !ok {
		return domainerrors.ErrProposalNotFound
	}
	if proposal.Status.IsTerminal() {
		return domainerrors.ErrInvalidTransition
	}
	if !to.IsTerminal() {
		return domainerrors.ErrInvalidTransition
	}
	proposal.Status = to
	proposal.ExecutionResult = &result
	proposal.UpdatedAt = updatedAt.UTC()
	s.proposals[id] = proposal
	return nil
}

func (s *Store) TryRecordVote(_ context.Context, record entities.VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey(record.ProposalID, record.Voter)
	if _, exists := s.voteIndex[key]; exists {
		return domainerrors.ErrAlreadyVoted
	}
	voteID := strings.TrimSpace(record.VoteID)
	s.voteIndex[key] = voteID
	s.votes[voteID] = record
	return nil
}

func (s *Store) ListVotesByProposal(_ context.Context, proposalID string) ([]entities.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VoteRecord, 0)
	for _, record := range s.votes {
		if record.ProposalID == strings.TrimSpace(proposalID) {
			items = append(items, record)
		}
	}
	sortVotesByCastTime(items)
	return items, nil
}

func (s *Store) ListVotes(_ context.Context) ([]entities.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VoteRecord, 0, len(s.votes))
	for _, record := range s.votes {
		items = append(items, record)
	}
	sortVotesByCastTime(items)
	return items, nil
}

func (s *Store) TotalEligiblePower(_ context.Context, proposalID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if power, ok := s.snapshots[strings.TrimSpace(proposalID)]; ok {
		return power, nil
	}
	if s.DefaultEligiblePower <= 0 {
		return 0, domainerrors.ErrOracleUnavailable
	}
	return s.DefaultEligiblePower, nil
}

func (s *Store) PutPowerSnapshot(_ context.Context, proposalID string, totalPower float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[strings.TrimSpace(proposalID)] = totalPower
	return nil
}

func (s *Store) GetPowerSnapshot(_ context.Context, proposalID string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	power, ok := s.snapshots[strings.TrimSpace(proposalID)]
	return power, ok, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && time.Now().UTC().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sortVotesByCastTime(items []entities.VoteRecord) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CastAt.Equal(items[j].CastAt) {
			return items[i].VoteID < items[j].VoteID
		}
		return items[i].CastAt.Before(items[j].CastAt)
	})
}

var _ ports.ProposalRepository = (*Store)(nil)
var _ ports.VoteLedger = (*Store)(nil)
var _ ports.PowerOracle = (*Store)(nil)
var _ ports.PowerSnapshotStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.EventDedupStore = (*Store)(nil)
