package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/me2d/cmlsync/internal/domain"
)

func TestCallStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		got  domain.CallState
		want domain.CallState
	}{
		{
			name: "idle",
			got:  Idle(),
			want: domain.CallState{Status: domain.CallIdle},
		},
		{
			name: "begin",
			got:  Begin("register"),
			want: domain.CallState{Status: domain.CallInProgress, Message: "Calling register...", Operation: "register"},
		},
		{
			name: "succeed with message",
			got:  Succeed("fetchCommands", "Loaded 3 commands"),
			want: domain.CallState{Status: domain.CallSuccess, Message: "Loaded 3 commands", Operation: "fetchCommands"},
		},
		{
			name: "succeed without message",
			got:  Succeed("register", ""),
			want: domain.CallState{Status: domain.CallSuccess, Message: "Success", Operation: "register"},
		},
		{
			name: "fail",
			got:  Fail("executeCommand", "Command 5 failed with HTTP 500"),
			want: domain.CallState{Status: domain.CallError, Message: "Command 5 failed with HTTP 500", Operation: "executeCommand"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestDismiss(t *testing.T) {
	tests := []struct {
		name   string
		cur    domain.CallState
		wantOK bool
	}{
		{name: "from success", cur: Succeed("register", ""), wantOK: true},
		{name: "from error", cur: Fail("register", "x"), wantOK: true},
		{name: "from in progress", cur: Begin("register"), wantOK: false},
		{name: "from idle", cur: Idle(), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := Dismiss(tt.cur)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, Idle(), next)
			} else {
				assert.Equal(t, tt.cur, next)
			}
		})
	}
}
