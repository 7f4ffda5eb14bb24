package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/me2d/cmlsync/internal/domain"
)

// mockRecordStore implements domain.RecordStore in memory.
type mockRecordStore struct {
	mu      sync.Mutex
	records map[string]string
	getErr  error
	putErr  error
	puts    int
}

func newMockRecordStore() *mockRecordStore {
	return &mockRecordStore{records: make(map[string]string)}
}

func (m *mockRecordStore) GetRecord(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.records[key]
	if !ok {
		return "", domain.ErrRecordNotFound
	}
	return v, nil
}

func (m *mockRecordStore) PutRecord(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.records[key] = value
	m.puts++
	return nil
}

func (m *mockRecordStore) DeleteRecord(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *mockRecordStore) Path() string { return "memory" }
func (m *mockRecordStore) Close() error { return nil }

func (m *mockRecordStore) setPutErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// mockLegacySource implements domain.LegacySource from a map.
type mockLegacySource struct {
	values map[string]string
	err    error
	reads  int
}

func (m *mockLegacySource) Contains(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.values[key]
	return ok, nil
}

func (m *mockLegacySource) GetString(_ context.Context, key string) (string, error) {
	m.reads++
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrLegacyKeyNotFound
	}
	return v, nil
}

// mockCredentials implements domain.CredentialManager without real cryptography.
type mockCredentials struct {
	mu          sync.Mutex
	generateErr error
	generated   int
	subjects    []string
}

func (m *mockCredentials) GenerateKeyPair() (domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generateErr != nil {
		return domain.Credential{}, m.generateErr
	}
	m.generated++
	return domain.Credential{
		PublicKey:  []byte("public-key"),
		PrivateKey: []byte("private-key-" + strconv.Itoa(m.generated)),
	}, nil
}

func (m *mockCredentials) SignAssertion(subject, privateKeyEncoded string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if privateKeyEncoded == "" {
		return "", &domain.CredentialError{Reason: "no private key stored, register first"}
	}
	m.subjects = append(m.subjects, subject)
	return "token-" + subject, nil
}

// mockRemoteAPI implements domain.RemoteAPI with canned responses.
type mockRemoteAPI struct {
	mu sync.Mutex

	registerResp *domain.RegisterResponse
	registerErr  error
	commands     []domain.RemoteCommand
	listErr      error
	executeErr   error

	baseURLs []string
	tokens   []string
	executed []int
	requests []domain.RegisterRequest
}

func (m *mockRemoteAPI) Register(_ context.Context, baseURL string, req domain.RegisterRequest) (*domain.RegisterResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURLs = append(m.baseURLs, baseURL)
	m.requests = append(m.requests, req)
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	if m.registerResp == nil {
		return &domain.RegisterResponse{}, nil
	}
	return m.registerResp, nil
}

func (m *mockRemoteAPI) ListCommands(_ context.Context, baseURL, token string) ([]domain.RemoteCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURLs = append(m.baseURLs, baseURL)
	m.tokens = append(m.tokens, token)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.commands, nil
}

func (m *mockRemoteAPI) ExecuteCommand(_ context.Context, baseURL, token string, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURLs = append(m.baseURLs, baseURL)
	m.tokens = append(m.tokens, token)
	if m.executeErr != nil {
		return m.executeErr
	}
	m.executed = append(m.executed, number)
	return nil
}

// mockWifi implements domain.WifiObserver.
type mockWifi struct {
	name      string
	connected bool
}

func (m mockWifi) CurrentWifiName(context.Context) (string, bool) {
	return m.name, m.connected
}

var errDiskFull = errors.New("disk full")
