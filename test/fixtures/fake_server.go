// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// RemoteCommand is a command offered by the fake server.
type RemoteCommand struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
}

// FakeCommandServer mimics the CML command server. It accepts one registered
// client key and verifies every signed request against it.
type FakeCommandServer struct {
	*httptest.Server

	mu            sync.Mutex
	publicKey     *rsa.PublicKey
	accountID     string
	commands      []RemoteCommand
	executed      []int
	failExecute   int
	requestIDs    map[string]bool
	rejectedCalls int
}

// NewFakeCommandServer starts a fake server offering commands.
func NewFakeCommandServer(commands []RemoteCommand) *FakeCommandServer {
	f := &FakeCommandServer{
		commands:   commands,
		requestIDs: make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /clients", f.handleRegister)
	mux.HandleFunc("GET /commands", f.handleList)
	mux.HandleFunc("POST /commands/{number}", f.handleExecute)
	f.Server = httptest.NewServer(mux)
	return f
}

// BaseURL returns the server URL with a trailing slash.
func (f *FakeCommandServer) BaseURL() string {
	return f.URL + "/"
}

// FailExecuteWith makes every execution fail with status. Zero restores success.
func (f *FakeCommandServer) FailExecuteWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failExecute = status
}

// Executed returns the command numbers executed so far.
func (f *FakeCommandServer) Executed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.executed...)
}

// AccountID returns the account id sent with the last registration.
func (f *FakeCommandServer) AccountID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountID
}

// RejectedCalls returns how many signed requests failed verification.
func (f *FakeCommandServer) RejectedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejectedCalls
}

// UniqueRequestIDs returns how many distinct X-Request-ID values were seen.
func (f *FakeCommandServer) UniqueRequestIDs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requestIDs)
}

func (f *FakeCommandServer) track(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestIDs[r.Header.Get("X-Request-ID")] = true
}

func (f *FakeCommandServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	f.track(r)
	var body struct {
		Key     string `json:"key"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	block, _ := pem.Decode([]byte(body.Key))
	if block == nil || block.Type != "PUBLIC KEY" {
		http.Error(w, "bad key", http.StatusBadRequest)
		return
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		http.Error(w, "bad key", http.StatusBadRequest)
		return
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		http.Error(w, "not RSA", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.publicKey = rsaPub
	f.accountID = body.Message
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "Registered " + body.Message})
}

func (f *FakeCommandServer) handleList(w http.ResponseWriter, r *http.Request) {
	f.track(r)
	if err := f.verify(r, "Commands"); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	commands := f.commands
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(commands)
}

func (f *FakeCommandServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	f.track(r)
	if err := f.verify(r, "ExecuteCommand"); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		http.Error(w, "bad number", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failExecute != 0 {
		w.WriteHeader(f.failExecute)
		return
	}
	f.executed = append(f.executed, number)
	w.WriteHeader(http.StatusNoContent)
}

// verify checks the bearer assertion against the registered key and subject.
func (f *FakeCommandServer) verify(r *http.Request, subject string) error {
	err := f.verifyToken(r, subject)
	if err != nil {
		f.mu.Lock()
		f.rejectedCalls++
		f.mu.Unlock()
	}
	return err
}

func (f *FakeCommandServer) verifyToken(r *http.Request, subject string) error {
	f.mu.Lock()
	pub := f.publicKey
	f.mu.Unlock()
	if pub == nil {
		return errors.New("no client registered")
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return errors.New("missing bearer token")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return pub, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithSubject(subject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return errors.New("missing jti")
	}
	return nil
}
