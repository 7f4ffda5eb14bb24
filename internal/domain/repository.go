package domain

import "context"

// RecordStore persists opaque string records under well-known keys.
// Implementation: SQLCipher encrypted SQLite database.
type RecordStore interface {
	// GetRecord returns the value stored under key, or ErrRecordNotFound.
	GetRecord(ctx context.Context, key string) (string, error)

	// PutRecord overwrites the value stored under key in a single write.
	PutRecord(ctx context.Context, key, value string) error

	// DeleteRecord removes key. No error if it does not exist.
	DeleteRecord(ctx context.Context, key string) error

	// Path returns the backing database file path.
	Path() string

	// Close releases resources (e.g., database connection).
	Close() error
}

// LegacySource reads the deprecated preferences store of the previous app version.
// Implementation: BadgerDB directory.
type LegacySource interface {
	// Contains reports whether the legacy key exists.
	Contains(ctx context.Context, key string) (bool, error)

	// GetString returns the legacy string value, or ErrLegacyKeyNotFound.
	GetString(ctx context.Context, key string) (string, error)
}

// StateStore loads and saves the aggregate application state.
type StateStore interface {
	// Load never fails: corrupt or unreadable state yields a zero AggregateState.
	Load(ctx context.Context) AggregateState

	// Save overwrites the persisted record in full.
	Save(ctx context.Context, state AggregateState) error
}

// CredentialManager generates the device key pair and signs request assertions.
type CredentialManager interface {
	// GenerateKeyPair creates a fresh RSA key pair.
	GenerateKeyPair() (Credential, error)

	// SignAssertion returns a signed bearer token for the given subject.
	// Returns a *CredentialError if privateKeyEncoded is missing or malformed.
	SignAssertion(subject, privateKeyEncoded string) (string, error)
}

// WifiObserver reports the name of the currently connected WiFi network.
type WifiObserver interface {
	// CurrentWifiName returns the SSID and true, or "" and false when not on WiFi
	// or the name is unavailable.
	CurrentWifiName(ctx context.Context) (string, bool)
}

// RegisterRequest is the body of POST /clients.
type RegisterRequest struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// RegisterResponse is the body returned by POST /clients.
type RegisterResponse struct {
	Status string `json:"status"`
}

// RemoteCommand is an entry of the GET /commands response.
type RemoteCommand struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
}

// RemoteAPI is the HTTP surface of the command server.
// baseURL always ends with a single "/".
type RemoteAPI interface {
	Register(ctx context.Context, baseURL string, req RegisterRequest) (*RegisterResponse, error)
	ListCommands(ctx context.Context, baseURL, token string) ([]RemoteCommand, error)
	ExecuteCommand(ctx context.Context, baseURL, token string, number int) error
}

// KeyProvider abstracts the source of the local database encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
