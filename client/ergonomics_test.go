package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"connectrpc.com/connect"
)

func TestErrCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil", err: nil, want: ErrorCodeUnknown},
		{name: "not confirmed", err: connect.NewError(connect.CodeFailedPrecondition, errors.New("confirm the state change before running an action")), want: ErrorCodeNotConfirmed},
		{name: "missing credentials", err: connect.NewError(connect.CodeInvalidArgument, errors.New("enter username and password first")), want: ErrorCodeMissingCredentials},
		{name: "install running", err: connect.NewError(connect.CodeFailedPrecondition, errors.New("module install already in progress")), want: ErrorCodeInstallRunning},
		{name: "session busy", err: connect.NewError(connect.CodeResourceExhausted, errors.New("another operation is already running for this session")), want: ErrorCodeSessionBusy},
		{name: "unauthenticated", err: connect.NewError(connect.CodeUnauthenticated, errors.New("Five9 rejected the credentials")), want: ErrorCodeUnauthenticated},
		{name: "unavailable", err: connect.NewError(connect.CodeUnavailable, errors.New("start powershell: not found")), want: ErrorCodeUnavailable},
		{name: "internal", err: connect.NewError(connect.CodeInternal, errors.New("boom")), want: ErrorCodeInternal},
		{name: "context", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), want: ErrorCodeDeadlineExceeded},
		{name: "plain", err: errors.New("boom"), want: ErrorCodeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrCode(tc.err); got != tc.want {
				t.Fatalf("ErrCode(%v): got %q want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestMustPanicsOnError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()

	_ = Must((*Client)(nil), errors.New("boom"))
}

type scriptedStatus struct {
	states []string
	calls  int
}

func (s *scriptedStatus) GetInstallStatus(_ context.Context, req *GetInstallStatusRequest) (*InstallStatusResponse, error) {
	if !req.Check {
		return nil, errors.New("expected check to be set")
	}
	state := s.states[len(s.states)-1]
	if s.calls < len(s.states) {
		state = s.states[s.calls]
	}
	s.calls++
	return &InstallStatusResponse{Status: InstallStatus{State: state}}, nil
}

func TestWaitForInstallPollsUntilSettled(t *testing.T) {
	api := &scriptedStatus{states: []string{InstallRunning, InstallRunning, InstallFailed}}

	status, err := WaitForInstall(context.Background(), api, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForInstall returned error: %v", err)
	}
	if status.State != InstallFailed {
		t.Fatalf("unexpected state: %q", status.State)
	}
	if api.calls != 3 {
		t.Fatalf("expected 3 polls, got %d", api.calls)
	}
}

func TestWaitForInstallHonorsContext(t *testing.T) {
	api := &scriptedStatus{states: []string{InstallRunning}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	status, err := WaitForInstall(ctx, api, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if status.State != InstallRunning {
		t.Fatalf("expected last seen state running, got %q", status.State)
	}
}
