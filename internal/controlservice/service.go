// Package controlservice implements the campaign manager flows shared by the
// dashboard, the control API and the CLI.
package controlservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/credentials"
	"github.com/ccops/five9cm/internal/ids"
	"github.com/ccops/five9cm/internal/installer"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/ccops/five9cm/internal/session"
	"github.com/charmbracelet/log"
)

type Service struct {
	Runner    pwsh.Runner
	Installer *installer.Controller
	Sessions  *session.Store
	Module    string
	Timeout   time.Duration
	Logger    *log.Logger
}

// ActionOutcome is the result of one action batch plus the optional refresh
// that followed it.
type ActionOutcome struct {
	Results    []campaigns.ActionResult
	Refreshed  bool
	Campaigns  []campaigns.Campaign
	RefreshErr error
}

func (o ActionOutcome) Summary() (succeeded, failed int) {
	return campaigns.Summarize(o.Results)
}

var errNoInstaller = errors.New("module installer is not configured")

// FetchCampaigns runs a query for sess and replaces its snapshot. A failed
// query clears the snapshot.
func (s *Service) FetchCampaigns(ctx context.Context, sess *session.Session, creds credentials.Credentials) ([]campaigns.Campaign, error) {
	release, err := sess.TryAcquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.fetchLocked(ctx, sess, creds)
}

func (s *Service) fetchLocked(ctx context.Context, sess *session.Session, creds credentials.Credentials) ([]campaigns.Campaign, error) {
	query := &campaigns.QueryService{
		Runner:  sess.Runner(s.Runner),
		Module:  s.Module,
		Timeout: s.Timeout,
		Logger:  s.logger().With("session_id", sess.ID),
	}
	rows, err := query.Fetch(ctx, creds)
	if err != nil {
		sess.ClearSnapshot()
		return nil, err
	}
	sess.SetSnapshot(rows)
	return rows, nil
}

// ApplyAction validates req against the session snapshot, runs the batch and
// optionally refreshes the snapshot afterwards.
func (s *Service) ApplyAction(ctx context.Context, sess *session.Session, creds credentials.Credentials, req session.ActionRequest, refresh bool) (ActionOutcome, error) {
	release, err := sess.TryAcquire()
	if err != nil {
		return ActionOutcome{}, err
	}
	defer release()
	return s.applyLocked(ctx, sess, creds, req, refresh)
}

func (s *Service) applyLocked(ctx context.Context, sess *session.Session, creds credentials.Credentials, req session.ActionRequest, refresh bool) (ActionOutcome, error) {
	if !creds.Complete() {
		return ActionOutcome{}, campaigns.ErrMissingCredentials
	}
	targets, err := sess.ValidateAction(req)
	if err != nil {
		return ActionOutcome{}, err
	}

	logger := s.logger().With("session_id", sess.ID)
	actions := &campaigns.ActionService{
		Runner:  sess.Runner(s.Runner),
		Module:  s.Module,
		Timeout: s.Timeout,
		Logger:  logger,
	}
	results, err := actions.ApplyTo(ctx, creds, targets, req.Action)
	if err != nil {
		return ActionOutcome{}, err
	}

	out := ActionOutcome{Results: results}
	if !refresh {
		return out, nil
	}
	out.Refreshed = true
	out.Campaigns, out.RefreshErr = s.fetchLocked(ctx, sess, creds)
	if out.RefreshErr != nil {
		logger.Warn("refresh after action failed", "err", out.RefreshErr)
	}
	return out, nil
}

func (s *Service) InstallStatus(ctx context.Context) (installer.Status, error) {
	if s.Installer == nil {
		return installer.Status{}, errNoInstaller
	}
	return s.Installer.Status(ctx)
}

func (s *Service) StartInstall(ctx context.Context) (installer.Status, error) {
	if s.Installer == nil {
		return installer.Status{}, errNoInstaller
	}
	return s.Installer.StartInstall(ctx)
}

// CheckInstall settles the install status. When sess is set and the install
// has finished, its output is added to the session debug log once per job.
func (s *Service) CheckInstall(ctx context.Context, sess *session.Session) (installer.Status, error) {
	if s.Installer == nil {
		return installer.Status{}, errNoInstaller
	}
	st, err := s.Installer.CheckStatus(ctx)
	if err != nil {
		return st, err
	}
	if sess != nil && st.State.Terminal() && st.JobID != "" {
		sess.RecordOnce("install:"+st.JobID, session.Entry{
			Label:     installer.LabelInstall,
			Stdout:    st.Stdout,
			Stderr:    st.Stderr,
			ExitCode:  st.ExitCode,
			Error:     failureMessage(st),
			StartedAt: st.StartedAt,
			Duration:  st.FinishedAt.Sub(st.StartedAt),
		})
	}
	return st, nil
}

func (s *Service) ResetInstall(ctx context.Context) (installer.Status, error) {
	if s.Installer == nil {
		return installer.Status{}, errNoInstaller
	}
	return s.Installer.Reset(ctx)
}

func (s *Service) ephemeralSession() *session.Session {
	if s.Sessions != nil {
		return s.Sessions.Ephemeral()
	}
	return session.New(ids.NewSessionID(), session.Options{})
}

func (s *Service) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard)
	}
	return s.Logger
}

func failureMessage(st installer.Status) string {
	if st.State != installer.StateFailed {
		return ""
	}
	return strings.TrimSpace(st.Message)
}

// Describe renders an action outcome as the one-line summaries shown to
// users.
func Describe(results []campaigns.ActionResult) (updated string, failures []string) {
	var ok []string
	for _, r := range results {
		if r.Succeeded() {
			ok = append(ok, r.DisplayName())
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", r.DisplayName(), r.Message))
	}
	if len(ok) > 0 {
		updated = "Updated campaigns: " + strings.Join(ok, ", ")
	}
	return updated, failures
}
