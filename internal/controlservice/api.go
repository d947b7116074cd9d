package controlservice

import (
	"context"
	"errors"
	"strings"

	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/credentials"
	"github.com/ccops/five9cm/internal/installer"
	"github.com/ccops/five9cm/internal/session"
)

// The methods below serve stateless callers. Each call runs in a throwaway
// session, so an action always fetches a fresh snapshot before it is
// validated and applied.

func (s *Service) ListCampaigns(ctx context.Context, req *controlapi.ListCampaignsRequest) (*controlapi.ListCampaignsResponse, error) {
	if req == nil {
		return nil, errors.New("missing request")
	}
	var filter campaigns.Filter
	if strings.TrimSpace(req.Filter) != "" {
		parsed, err := campaigns.ParseFilter(req.Filter)
		if err != nil {
			return nil, invalidArgument(err)
		}
		filter = parsed
	}

	sess := s.ephemeralSession()
	rows, err := s.FetchCampaigns(ctx, sess, apiCredentials(req.Credentials))
	if err != nil {
		return nil, err
	}
	if filter != "" {
		rows = filter.Apply(rows)
	}

	resp := &controlapi.ListCampaignsResponse{
		Campaigns: toAPICampaigns(rows),
		Filter:    string(filter),
	}
	if len(rows) == 0 {
		resp.Message = "no campaigns returned"
	}
	return resp, nil
}

func (s *Service) ApplyCampaignAction(ctx context.Context, req *controlapi.ApplyCampaignActionRequest) (*controlapi.ApplyCampaignActionResponse, error) {
	if req == nil {
		return nil, errors.New("missing request")
	}
	action, err := campaigns.ParseAction(req.Action)
	if err != nil {
		return nil, invalidArgument(err)
	}
	creds := apiCredentials(req.Credentials)
	sess := s.ephemeralSession()

	release, err := sess.TryAcquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.fetchLocked(ctx, sess, creds); err != nil {
		return nil, err
	}
	outcome, err := s.applyLocked(ctx, sess, creds, session.ActionRequest{
		Filter:    campaigns.FilterFor(action),
		Action:    action,
		Selected:  resolveSelection(sess, req.Campaigns),
		Confirmed: req.Confirm,
	}, req.Refresh)
	if err != nil {
		return nil, err
	}

	ok, failed := outcome.Summary()
	resp := &controlapi.ApplyCampaignActionResponse{
		Results:   toAPIResults(outcome.Results),
		Succeeded: ok,
		Failed:    failed,
	}
	if outcome.Refreshed {
		resp.Campaigns = toAPICampaigns(outcome.Campaigns)
		if outcome.RefreshErr != nil {
			resp.RefreshError = outcome.RefreshErr.Error()
		}
	}
	if updated, _ := Describe(outcome.Results); updated != "" {
		resp.Message = updated
	}
	return resp, nil
}

func (s *Service) StartModuleInstall(ctx context.Context, _ *controlapi.StartInstallRequest) (*controlapi.InstallStatusResponse, error) {
	st, err := s.StartInstall(ctx)
	if err != nil {
		return nil, err
	}
	return &controlapi.InstallStatusResponse{Status: ToAPIInstallStatus(st)}, nil
}

func (s *Service) GetInstallStatus(ctx context.Context, req *controlapi.GetInstallStatusRequest) (*controlapi.InstallStatusResponse, error) {
	var (
		st  installer.Status
		err error
	)
	if req != nil && req.Check {
		st, err = s.CheckInstall(ctx, nil)
	} else {
		st, err = s.InstallStatus(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &controlapi.InstallStatusResponse{Status: ToAPIInstallStatus(st)}, nil
}

func (s *Service) ResetModuleInstall(ctx context.Context, _ *controlapi.ResetInstallRequest) (*controlapi.InstallStatusResponse, error) {
	st, err := s.ResetInstall(ctx)
	if err != nil {
		return nil, err
	}
	return &controlapi.InstallStatusResponse{Status: ToAPIInstallStatus(st)}, nil
}

// resolveSelection lets API callers name campaigns by id or by name.
func resolveSelection(sess *session.Session, requested []string) []string {
	snapshot, _, _ := sess.Snapshot()
	byName := make(map[string]string, len(snapshot))
	known := make(map[string]struct{}, len(snapshot))
	for _, c := range snapshot {
		known[c.ID] = struct{}{}
		byName[strings.ToLower(c.Name)] = c.ID
	}
	out := make([]string, 0, len(requested))
	for _, raw := range requested {
		value := strings.TrimSpace(raw)
		if _, ok := known[value]; ok {
			out = append(out, value)
			continue
		}
		if id, ok := byName[strings.ToLower(value)]; ok {
			out = append(out, id)
			continue
		}
		out = append(out, value)
	}
	return out
}

func apiCredentials(c controlapi.Credentials) credentials.Credentials {
	return credentials.Credentials{Username: strings.TrimSpace(c.Username), Password: c.Password}
}

func toAPICampaigns(rows []campaigns.Campaign) []controlapi.Campaign {
	out := make([]controlapi.Campaign, 0, len(rows))
	for _, c := range rows {
		out = append(out, controlapi.Campaign{ID: c.ID, Name: c.Name, Type: c.Type, State: c.State})
	}
	return out
}

func toAPIResults(results []campaigns.ActionResult) []controlapi.ActionResult {
	out := make([]controlapi.ActionResult, 0, len(results))
	for _, r := range results {
		out = append(out, controlapi.ActionResult{
			CampaignID:   r.CampaignID,
			CampaignName: r.CampaignName,
			Action:       string(r.Action),
			Outcome:      string(r.Outcome),
			Message:      r.Message,
		})
	}
	return out
}

func ToAPIInstallStatus(st installer.Status) controlapi.InstallStatus {
	return controlapi.InstallStatus{
		State:         string(st.State),
		JobID:         st.JobID,
		StartedAt:     st.StartedAt,
		FinishedAt:    st.FinishedAt,
		ExitCode:      st.ExitCode,
		Stdout:        st.Stdout,
		Stderr:        st.Stderr,
		Message:       st.Message,
		ModuleVersion: st.ModuleVersion,
	}
}

// InvalidArgumentError marks a malformed request.
type InvalidArgumentError struct {
	Err error
}

func (e *InvalidArgumentError) Error() string { return e.Err.Error() }
func (e *InvalidArgumentError) Unwrap() error { return e.Err }

func invalidArgument(err error) error {
	return &InvalidArgumentError{Err: err}
}
