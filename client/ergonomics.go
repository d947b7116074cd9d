package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
)

// ErrorCode is a stable classifier for five9cm API errors.
type ErrorCode string

const (
	ErrorCodeUnknown            ErrorCode = "unknown"
	ErrorCodeCanceled           ErrorCode = "canceled"
	ErrorCodeDeadlineExceeded   ErrorCode = "deadline_exceeded"
	ErrorCodeInvalidArgument    ErrorCode = "invalid_argument"
	ErrorCodeUnauthenticated    ErrorCode = "unauthenticated"
	ErrorCodeUnavailable        ErrorCode = "unavailable"
	ErrorCodeFailedPrecondition ErrorCode = "failed_precondition"
	ErrorCodeInternal           ErrorCode = "internal"
	ErrorCodeMissingCredentials ErrorCode = "missing_credentials"
	ErrorCodeNotConfirmed       ErrorCode = "not_confirmed"
	ErrorCodeUnknownCampaign    ErrorCode = "unknown_campaign"
	ErrorCodeSessionBusy        ErrorCode = "session_busy"
	ErrorCodeInstallRunning     ErrorCode = "install_running"
	ErrorCodeResetRequired      ErrorCode = "reset_required"
)

// appErrorMarkers map server messages to the app-level codes above.
var appErrorMarkers = []struct {
	marker string
	code   ErrorCode
}{
	{"enter username and password", ErrorCodeMissingCredentials},
	{"confirm the state change", ErrorCodeNotConfirmed},
	{"not in the current list", ErrorCodeUnknownCampaign},
	{"already running for this session", ErrorCodeSessionBusy},
	{"module install already in progress", ErrorCodeInstallRunning},
	{"reset the install status first", ErrorCodeResetRequired},
}

// ErrCode classifies API errors into a stable code.
//
// When the server message names an app-level condition, that code is
// preferred. Otherwise this falls back to transport-level Connect codes.
func ErrCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeUnknown
	}

	message := strings.ToLower(err.Error())
	for _, m := range appErrorMarkers {
		if strings.Contains(message, m.marker) {
			return m.code
		}
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		switch connectErr.Code() {
		case connect.CodeCanceled:
			return ErrorCodeCanceled
		case connect.CodeDeadlineExceeded:
			return ErrorCodeDeadlineExceeded
		case connect.CodeInvalidArgument:
			return ErrorCodeInvalidArgument
		case connect.CodeUnauthenticated:
			return ErrorCodeUnauthenticated
		case connect.CodeUnavailable:
			return ErrorCodeUnavailable
		case connect.CodeFailedPrecondition:
			return ErrorCodeFailedPrecondition
		default:
			return ErrorCodeInternal
		}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeDeadlineExceeded
	}
	return ErrorCodeUnknown
}

// Must returns the client if err is nil; otherwise it panics.
func Must(c *Client, err error) *Client {
	if err != nil {
		panic(err)
	}
	return c
}

// NewFromEnv builds a client from FIVE9CM_HOST (or the default endpoint when unset).
func NewFromEnv(opts ...Option) (*Client, error) {
	return New("", opts...)
}

// Campaigns lists campaigns matching filter ("", FilterRunning or FilterOtherwise).
func (c *Client) Campaigns(ctx context.Context, creds Credentials, filter string) ([]Campaign, error) {
	resp, err := c.ListCampaigns(ctx, &ListCampaignsRequest{Credentials: creds, Filter: filter})
	if err != nil {
		return nil, err
	}
	return resp.Campaigns, nil
}

// StartCampaigns starts the named campaigns and refreshes the list afterwards.
// The call is confirmed on the caller's behalf.
func (c *Client) StartCampaigns(ctx context.Context, creds Credentials, names ...string) (*ApplyCampaignActionResponse, error) {
	return c.applyConfirmed(ctx, creds, "start", names)
}

// StopCampaigns stops the named campaigns and refreshes the list afterwards.
func (c *Client) StopCampaigns(ctx context.Context, creds Credentials, names ...string) (*ApplyCampaignActionResponse, error) {
	return c.applyConfirmed(ctx, creds, "stop", names)
}

func (c *Client) applyConfirmed(ctx context.Context, creds Credentials, action string, names []string) (*ApplyCampaignActionResponse, error) {
	if len(names) == 0 {
		return nil, errors.New("missing campaign names")
	}
	return c.ApplyCampaignAction(ctx, &ApplyCampaignActionRequest{
		Credentials: creds,
		Action:      action,
		Campaigns:   names,
		Confirm:     true,
		Refresh:     true,
	})
}

// InstallStatusGetter is satisfied by *Client and by in-process services
// that expose the same method.
type InstallStatusGetter interface {
	GetInstallStatus(ctx context.Context, req *GetInstallStatusRequest) (*InstallStatusResponse, error)
}

// DefaultPollInterval is used by WaitForInstall when interval is not positive.
const DefaultPollInterval = 2 * time.Second

// WaitForInstall polls with Check set until the install leaves the running
// state or ctx is done.
func WaitForInstall(ctx context.Context, api InstallStatusGetter, interval time.Duration) (InstallStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		resp, err := api.GetInstallStatus(ctx, &GetInstallStatusRequest{Check: true})
		if err != nil {
			return InstallStatus{}, err
		}
		if resp.Status.State != InstallRunning {
			return resp.Status, nil
		}
		select {
		case <-ctx.Done():
			return resp.Status, fmt.Errorf("waiting for module install: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// InstallModule starts an install, or joins one already in progress, and
// waits for it to settle.
func (c *Client) InstallModule(ctx context.Context, interval time.Duration) (InstallStatus, error) {
	if _, err := c.StartInstall(ctx, &StartInstallRequest{}); err != nil && ErrCode(err) != ErrorCodeInstallRunning {
		return InstallStatus{}, err
	}
	return WaitForInstall(ctx, c, interval)
}
