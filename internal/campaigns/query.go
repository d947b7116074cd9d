package campaigns

import (
	"context"
	"errors"
	"time"

	"github.com/ccops/five9cm/internal/credentials"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/charmbracelet/log"
)

// ErrMissingCredentials is returned before any invocation when the username
// or password is empty.
var ErrMissingCredentials = errors.New("enter username and password first")

const (
	LabelFetch  = "fetch campaigns"
	LabelAction = "campaign action"
)

// QueryService lists campaigns of every type.
type QueryService struct {
	Runner  pwsh.Runner
	Module  string
	Timeout time.Duration
	Logger  *log.Logger
}

// Fetch returns a fresh snapshot. Zero campaigns is an empty slice and no
// error.
func (s *QueryService) Fetch(ctx context.Context, creds credentials.Credentials) ([]Campaign, error) {
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}
	res, err := s.Runner.Run(ctx, pwsh.Request{
		Label:   LabelFetch,
		Script:  fetchScript(s.Module),
		Env:     credentialEnv(creds),
		Timeout: s.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		err := classify(LabelFetch, res)
		if s.Logger != nil {
			s.Logger.Warn("campaign fetch failed", "exit_code", res.ExitCode, "timed_out", res.TimedOut, "err", err)
		}
		return nil, err
	}

	out, err := ParseCampaigns(res.Stdout)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("fetched campaigns", "count", len(out), "user", creds.Username)
	}
	return out, nil
}
