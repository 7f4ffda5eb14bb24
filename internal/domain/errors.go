package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned by RecordStore.GetRecord for a missing key.
	ErrRecordNotFound = errors.New("record not found")

	// ErrLegacyKeyNotFound is returned by LegacySource.GetString for a missing key.
	ErrLegacyKeyNotFound = errors.New("legacy key not found")
)

// DecodeError reports a persisted record that could not be decoded.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MigrationError reports a legacy field that could not be converted.
type MigrationError struct {
	Field string
	Value string
	Err   error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate legacy field %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// CredentialError reports missing or malformed key material.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return "credential: " + e.Reason
	}
	return fmt.Sprintf("credential: %s: %v", e.Reason, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// NetworkError reports a transport-level failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request %s returned HTTP %d", e.URL, e.StatusCode)
}
