package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

// StateRecordKey is the well-known key of the persisted AggregateState.
const StateRecordKey = "global_settings"

// PersistentStateStore implements domain.StateStore as one JSON record,
// migrating from the legacy store the first time no record exists.
type PersistentStateStore struct {
	records  domain.RecordStore
	migrator *LegacyMigrator
	logger   *zap.Logger
}

// NewPersistentStateStore creates a state store. migrator may be nil when no legacy store is available.
func NewPersistentStateStore(records domain.RecordStore, migrator *LegacyMigrator, logger *zap.Logger) *PersistentStateStore {
	return &PersistentStateStore{
		records:  records,
		migrator: migrator,
		logger:   logger,
	}
}

// Load returns the persisted state. It never fails: undecodable or unreadable
// state is logged and replaced by a zero AggregateState.
func (s *PersistentStateStore) Load(ctx context.Context) domain.AggregateState {
	raw, err := s.records.GetRecord(ctx, StateRecordKey)
	switch {
	case err == nil:
		state, decodeErr := decodeState(raw)
		if decodeErr != nil {
			s.logger.Error("failed to decode state, using default", zap.Error(decodeErr))
			return domain.AggregateState{}
		}
		s.logger.Debug("loaded existing state")
		return state

	case errors.Is(err, domain.ErrRecordNotFound):
		return s.firstLaunch(ctx)

	default:
		s.logger.Error("failed to read state, using default", zap.Error(err))
		return domain.AggregateState{}
	}
}

// firstLaunch handles a missing record: migrate once if legacy data exists.
func (s *PersistentStateStore) firstLaunch(ctx context.Context) domain.AggregateState {
	if s.migrator == nil || !s.migrator.HasLegacyData(ctx) {
		s.logger.Debug("first launch, no legacy data to migrate, using default state")
		return domain.AggregateState{}
	}

	s.logger.Info("first launch detected, migrating legacy data")
	s.logger.Debug(s.migrator.Summary(ctx))

	state := s.migrator.Migrate(ctx)
	if err := s.Save(ctx, state); err != nil {
		// The migrated state is still usable for this session; the next launch retries.
		s.logger.Error("failed to persist migrated state", zap.Error(err))
	} else {
		s.logger.Info("migration completed and state saved")
	}
	return state
}

// Save overwrites the persisted record with state.
func (s *PersistentStateStore) Save(ctx context.Context, state domain.AggregateState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.records.PutRecord(ctx, StateRecordKey, string(data)); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	s.logger.Debug("saved state")
	return nil
}

func decodeState(raw string) (domain.AggregateState, error) {
	var state domain.AggregateState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.AggregateState{}, &domain.DecodeError{Key: StateRecordKey, Err: err}
	}
	return state, nil
}

var _ domain.StateStore = (*PersistentStateStore)(nil)
