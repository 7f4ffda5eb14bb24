// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"encoding/base64"
	"encoding/pem"
	"maps"
	"slices"
	"time"
)

// RetentionDays is the maximum number of distinct day buckets kept in a HistoryLedger.
const RetentionDays = 10

// HistoryDateLayout is the layout of HistoryLedger date keys (local calendar date).
const HistoryDateLayout = "2006-01-02"

// Operation names reported in CallState.Operation.
const (
	OpRegister       = "register"
	OpFetchCommands  = "fetchCommands"
	OpExecuteCommand = "executeCommand"
)

// Assertion subjects used when signing authenticated requests.
const (
	SubjectCommands       = "Commands"
	SubjectExecuteCommand = "ExecuteCommand"
)

// Settings holds user configuration. An empty string means "unset".
type Settings struct {
	APIURL      string `json:"apiUrl"`
	AccountID   string `json:"myId"`
	WifiPattern string `json:"wifiPattern"`
	WifiURL     string `json:"wifiUrl"`
}

// Command is a remote command the server can execute.
// Number is the stable identity; duplicates are tolerated.
type Command struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// HistoryLedger maps a date key (YYYY-MM-DD) to per-command execution counts.
type HistoryLedger map[string]map[int]int

// Clone returns a deep copy of the ledger. A nil ledger clones to an empty one.
func (h HistoryLedger) Clone() HistoryLedger {
	out := make(HistoryLedger, len(h))
	for day, counts := range h {
		out[day] = maps.Clone(counts)
		if out[day] == nil {
			out[day] = make(map[int]int)
		}
	}
	return out
}

// Days returns the ledger's date keys in ascending (oldest first) order.
func (h HistoryLedger) Days() []string {
	return slices.Sorted(maps.Keys(h))
}

// Credential is the device's RSA key pair in DER form.
// PublicKey is X.509 SubjectPublicKeyInfo, PrivateKey is PKCS#8.
type Credential struct {
	PublicKey  []byte
	PrivateKey []byte
}

// PublicKeyBase64 returns the public key as standard base64.
func (c Credential) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(c.PublicKey)
}

// PublicKeyPEM returns the public key wrapped in PUBLIC KEY PEM armor.
func (c Credential) PublicKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: c.PublicKey}))
}

// PrivateKeyBase64 returns the private key as standard base64, the form persisted in AggregateState.
func (c Credential) PrivateKeyBase64() string {
	return base64.StdEncoding.EncodeToString(c.PrivateKey)
}

// AggregateState is the complete persisted application state.
// RegistrationTimestamp and PrivateKeyEncoded are set together when registration completes.
type AggregateState struct {
	Settings              Settings      `json:"settings"`
	History               HistoryLedger `json:"history"`
	Commands              []Command     `json:"commands"`
	CurrentPage           int           `json:"currentPage"` // last viewed page, kept for record compatibility
	RegistrationTimestamp *time.Time    `json:"registrationTimestamp,omitempty"`
	PrivateKeyEncoded     string        `json:"privateKeyEncoded"`
}

// IsRegistered reports whether registration has completed.
func (s AggregateState) IsRegistered() bool {
	return s.RegistrationTimestamp != nil && s.PrivateKeyEncoded != ""
}

// Clone returns a copy that shares no mutable memory with s.
func (s AggregateState) Clone() AggregateState {
	out := s
	out.History = s.History.Clone()
	out.Commands = slices.Clone(s.Commands)
	if s.RegistrationTimestamp != nil {
		ts := *s.RegistrationTimestamp
		out.RegistrationTimestamp = &ts
	}
	return out
}

// CallStatus is the lifecycle status of the most recent API operation.
type CallStatus string

const (
	CallIdle       CallStatus = "IDLE"
	CallInProgress CallStatus = "IN_PROGRESS"
	CallSuccess    CallStatus = "SUCCESS"
	CallError      CallStatus = "ERROR"
)

// IsTerminal reports whether the status is SUCCESS or ERROR.
func (s CallStatus) IsTerminal() bool {
	return s == CallSuccess || s == CallError
}

// CallState describes the most recent API operation. It is never persisted.
type CallState struct {
	Status    CallStatus
	Message   string
	Operation string
}
