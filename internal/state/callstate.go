// Package state owns the in-memory application state and publishes every change to observers.
package state

import "github.com/me2d/cmlsync/internal/domain"

// DefaultSuccessMessage is shown when the server does not supply a status text.
const DefaultSuccessMessage = "Success"

// Idle is the call state before any operation and after dismissal.
func Idle() domain.CallState {
	return domain.CallState{Status: domain.CallIdle}
}

// Begin returns the IN_PROGRESS state for op.
func Begin(op string) domain.CallState {
	return domain.CallState{
		Status:    domain.CallInProgress,
		Message:   "Calling " + op + "...",
		Operation: op,
	}
}

// Succeed returns the SUCCESS state for op.
func Succeed(op, message string) domain.CallState {
	if message == "" {
		message = DefaultSuccessMessage
	}
	return domain.CallState{
		Status:    domain.CallSuccess,
		Message:   message,
		Operation: op,
	}
}

// Fail returns the ERROR state for op.
func Fail(op, message string) domain.CallState {
	return domain.CallState{
		Status:    domain.CallError,
		Message:   message,
		Operation: op,
	}
}

// Dismiss returns IDLE for a terminal state. Other states are returned unchanged with ok=false.
func Dismiss(cur domain.CallState) (next domain.CallState, ok bool) {
	if !cur.Status.IsTerminal() {
		return cur, false
	}
	return Idle(), true
}
