package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

// Keys written by the previous app version.
const (
	LegacyKeyServerURL  = "serverUrl"
	LegacyKeySentDate   = "sentDate"
	LegacyKeyPrivateKey = "privateKey"
)

// legacyDateLayouts are the ISO local date-time forms the old app wrote for sentDate.
var legacyDateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// LegacyMigrator converts the deprecated preferences into an AggregateState.
type LegacyMigrator struct {
	source domain.LegacySource
	logger *zap.Logger
}

// NewLegacyMigrator creates a migrator reading from source.
func NewLegacyMigrator(source domain.LegacySource, logger *zap.Logger) *LegacyMigrator {
	return &LegacyMigrator{source: source, logger: logger}
}

// HasLegacyData reports whether any legacy key exists.
func (m *LegacyMigrator) HasLegacyData(ctx context.Context) bool {
	for _, key := range []string{LegacyKeyServerURL, LegacyKeyPrivateKey, LegacyKeySentDate} {
		ok, err := m.source.Contains(ctx, key)
		if err != nil {
			m.logger.Warn("failed to probe legacy key", zap.String("key", key), zap.Error(err))
			continue
		}
		if ok {
			m.logger.Info("legacy app data found, available for migration")
			return true
		}
	}
	m.logger.Debug("no legacy app data found")
	return false
}

// Migrate builds the current state from legacy data. An unparsable sentDate only
// leaves RegistrationTimestamp unset; any other failure yields a zero state.
func (m *LegacyMigrator) Migrate(ctx context.Context) domain.AggregateState {
	m.logger.Info("migrating data from legacy app")

	state, err := m.migrate(ctx)
	if err != nil {
		m.logger.Error("migration failed, using default state", zap.Error(err))
		return domain.AggregateState{}
	}

	migrated := 0
	for _, present := range []bool{state.Settings.APIURL != "", state.PrivateKeyEncoded != "", state.RegistrationTimestamp != nil} {
		if present {
			migrated++
		}
	}
	m.logger.Info("migration completed", zap.Int("fields", migrated))
	return state
}

func (m *LegacyMigrator) migrate(ctx context.Context) (domain.AggregateState, error) {
	serverURL, err := m.optional(ctx, LegacyKeyServerURL)
	if err != nil {
		return domain.AggregateState{}, err
	}
	sentDate, err := m.optional(ctx, LegacyKeySentDate)
	if err != nil {
		return domain.AggregateState{}, err
	}
	privateKey, err := m.optional(ctx, LegacyKeyPrivateKey)
	if err != nil {
		return domain.AggregateState{}, err
	}

	state := domain.AggregateState{
		Settings:          domain.Settings{APIURL: serverURL},
		PrivateKeyEncoded: privateKey,
	}

	if sentDate != "" {
		ts, err := ParseLegacyDate(sentDate)
		if err != nil {
			m.logger.Warn("failed to parse legacy sent date", zap.Error(err))
		} else {
			state.RegistrationTimestamp = &ts
		}
	}
	return state, nil
}

// optional reads a legacy key, mapping "not found" to "".
func (m *LegacyMigrator) optional(ctx context.Context, key string) (string, error) {
	value, err := m.source.GetString(ctx, key)
	if errors.Is(err, domain.ErrLegacyKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read legacy %s: %w", key, err)
	}
	return value, nil
}

// ParseLegacyDate parses an ISO local date-time and interprets it as UTC.
func ParseLegacyDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range legacyDateLayouts {
		ts, err := time.ParseInLocation(layout, strings.TrimSpace(value), time.UTC)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, &domain.MigrationError{Field: LegacyKeySentDate, Value: value, Err: lastErr}
}

// Summary describes which legacy fields are present.
func (m *LegacyMigrator) Summary(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("Migration Summary:\n")

	line := func(label, key string, showValue bool) {
		value, err := m.source.GetString(ctx, key)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "- %s: not found\n", label)
		case showValue:
			fmt.Fprintf(&b, "- %s: found (%s)\n", label, value)
		default:
			fmt.Fprintf(&b, "- %s: found\n", label)
		}
	}
	line("Server URL", LegacyKeyServerURL, false)
	line("Registration Date", LegacyKeySentDate, true)
	line("Private Key", LegacyKeyPrivateKey, false)
	return b.String()
}
