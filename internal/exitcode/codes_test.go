package exitcode

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrAgentNotFound, "agent not found")
	if err.Code != ErrAgentNotFound {
		t.Errorf("Code = %d, want %d", err.Code, ErrAgentNotFound)
	}
	if err.Message != "agent not found" {
		t.Errorf("Message = %q, want %q", err.Message, "agent not found")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrBackendFailure, "connection failed", cause)

	if err.Code != ErrBackendFailure {
		t.Errorf("Code = %d, want %d", err.Code, ErrBackendFailure)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve cause for errors.Is")
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(ErrAgentNotFound, "agent alice not found"),
			want: "agent alice not found",
		},
		{
			name: "with cause",
			err:  Wrap(ErrBackendFailure, "connection failed", errors.New("timeout")),
			want: "connection failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"coded error", AgentNotFound("alice"), ErrAgentNotFound},
		{"uncoded error", errors.New("boom"), ErrGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := TeamNotFound("frontend")
	if !Is(err, ErrTeamNotFound) {
		t.Error("Is() should match ErrTeamNotFound")
	}
	if Is(err, ErrAgentNotFound) {
		t.Error("Is() should not match ErrAgentNotFound")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	if Code(AgentNotFound("x")) != ErrAgentNotFound {
		t.Error("AgentNotFound code mismatch")
	}
	if Code(TeamNotFound("x")) != ErrTeamNotFound {
		t.Error("TeamNotFound code mismatch")
	}
	if Code(PaneNotFound("x")) != ErrPaneNotFound {
		t.Error("PaneNotFound code mismatch")
	}
	if Code(MemoryNotFound("ns", "k")) != ErrMemoryNotFound {
		t.Error("MemoryNotFound code mismatch")
	}
	if Code(CheckpointNotFound("id")) != ErrCheckpointNotFound {
		t.Error("CheckpointNotFound code mismatch")
	}
	if Code(InvalidArgs("bad")) != ErrInvalidArgs {
		t.Error("InvalidArgs code mismatch")
	}
	if Code(LockHeld("p1", "bob")) != ErrLockHeld {
		t.Error("LockHeld code mismatch")
	}
	if Code(CooldownBusy("3s")) != ErrCooldownBusy {
		t.Error("CooldownBusy code mismatch")
	}
	if Code(Timeout("expect")) != ErrTimeout {
		t.Error("Timeout code mismatch")
	}
	if Code(Cancelled("wait")) != ErrCancelled {
		t.Error("Cancelled code mismatch")
	}

	bf := NewBackendFailure(errors.New("pty closed"), true)
	if Code(bf) != ErrBackendFailure {
		t.Error("BackendFailure code mismatch")
	}
	if !bf.Recoverable {
		t.Error("BackendFailure should be recoverable")
	}
}
