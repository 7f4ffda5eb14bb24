package infra

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

const (
	// LegacyPrefsDir is the data directory subfolder holding the deprecated preferences store.
	LegacyPrefsDir = "legacy_prefs"

	// legacyPrefsName namespaces every legacy key, as the previous app version did.
	legacyPrefsName = "eu.me2d.cmlmobile_preferences"
)

// LegacyPrefs implements domain.LegacySource on top of BadgerDB.
// The engine only reads from it; PutString exists for the import command and tests.
type LegacyPrefs struct {
	db *badger.DB
}

// LegacyPrefsOptions configures the legacy preferences store.
type LegacyPrefsOptions struct {
	// Dir is the BadgerDB directory. Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence (tests).
	InMemory bool

	// Logger receives badger warnings and errors. Nil silences badger.
	Logger *zap.Logger
}

// OpenLegacyPrefs opens the legacy preferences store.
func OpenLegacyPrefs(opts LegacyPrefsOptions) (*LegacyPrefs, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("legacy prefs: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.Sugar()})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy prefs: %w", err)
	}
	return &LegacyPrefs{db: db}, nil
}

func legacyKey(name string) []byte {
	return []byte(legacyPrefsName + ":" + name)
}

// Contains reports whether the legacy key exists.
func (p *LegacyPrefs) Contains(_ context.Context, key string) (bool, error) {
	err := p.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(legacyKey(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetString returns the legacy string value.
func (p *LegacyPrefs) GetString(_ context.Context, key string) (string, error) {
	var val []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(legacyKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("legacy key %q: %w", key, domain.ErrLegacyKeyNotFound)
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// PutString stores a legacy value.
func (p *LegacyPrefs) PutString(_ context.Context, key, value string) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(legacyKey(key), []byte(value))
	})
}

// Close releases the badger database.
func (p *LegacyPrefs) Close() error {
	return p.db.Close()
}

// badgerLogger routes badger output to zap, dropping its chatty info/debug lines.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf("badger: "+f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf("badger: "+f, v...) }
func (badgerLogger) Infof(string, ...interface{})          {}
func (badgerLogger) Debugf(string, ...interface{})         {}

var _ domain.LegacySource = (*LegacyPrefs)(nil)
