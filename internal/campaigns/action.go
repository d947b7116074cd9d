package campaigns

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ccops/five9cm/internal/credentials"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/charmbracelet/log"
)

// ActionService starts or stops campaigns in one batch.
type ActionService struct {
	Runner  pwsh.Runner
	Module  string
	Timeout time.Duration
	Logger  *log.Logger
}

const missingResultMessage = "no result reported"

// ApplyTo runs action against targets by name and keys each result by the
// target's snapshot ID.
func (s *ActionService) ApplyTo(ctx context.Context, creds credentials.Credentials, targets []Campaign, action Action) ([]ActionResult, error) {
	names := make([]string, 0, len(targets))
	for _, c := range targets {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		names = append(names, name)
	}
	results, err := s.Apply(ctx, creds, names, action)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].CampaignID = targets[i].ID
	}
	return results, nil
}

// Apply runs action against every campaign name and returns exactly one
// result per name in input order, with CampaignID set to the name. Gating
// is the caller's job.
func (s *ActionService) Apply(ctx context.Context, creds credentials.Credentials, names []string, action Action) ([]ActionResult, error) {
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}
	if action != ActionStart && action != ActionStop {
		return nil, errors.New("campaign action must be start or stop")
	}
	if len(names) == 0 {
		return []ActionResult{}, nil
	}

	script, err := actionScript(s.Module, names, action)
	if err != nil {
		return nil, err
	}
	res, err := s.Runner.Run(ctx, pwsh.Request{
		Label:   LabelAction,
		Script:  script,
		Env:     credentialEnv(creds),
		Timeout: s.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		err := classify(LabelAction, res)
		if s.Logger != nil {
			s.Logger.Warn("campaign action failed", "action", action, "count", len(names), "err", err)
		}
		return nil, err
	}

	records, err := parseActionRecords(res.Stdout)
	if err != nil {
		return nil, err
	}
	results := matchResults(names, action, records)
	if s.Logger != nil {
		ok, failed := Summarize(results)
		s.Logger.Info("applied campaign action", "action", action, "succeeded", ok, "failed", failed)
	}
	return results, nil
}

// matchResults pairs reported records with requested names. Duplicate names
// consume reports in order; unmatched names become failures.
func matchResults(names []string, action Action, records []actionRecord) []ActionResult {
	pending := make(map[string][]actionRecord, len(records))
	for _, rec := range records {
		key := strings.ToLower(rec.name)
		pending[key] = append(pending[key], rec)
	}

	results := make([]ActionResult, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		queue := pending[key]
		if len(queue) == 0 {
			results = append(results, ActionResult{
				CampaignID:   name,
				CampaignName: name,
				Action:       action,
				Outcome:      OutcomeFailure,
				Message:      missingResultMessage,
			})
			continue
		}
		rec := queue[0]
		pending[key] = queue[1:]

		result := ActionResult{CampaignID: name, CampaignName: name, Action: action, Outcome: OutcomeSuccess}
		if !rec.success {
			result.Outcome = OutcomeFailure
			result.Message = rec.message
			if result.Message == "" {
				result.Message = "unknown error"
			}
		}
		results = append(results, result)
	}
	return results
}
