package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ccops/five9cm/internal/campaigns"
)

var (
	ErrNotConfirmed         = errors.New("confirm the state change before running an action")
	ErrEmptySelection       = errors.New("select at least one campaign")
	ErrActionFilterMismatch = errors.New("action does not match the campaign filter")
	ErrUnknownCampaign      = errors.New("campaign is not in the current list")
)

// ActionRequest is what the user asked for on the action panel.
type ActionRequest struct {
	Filter    campaigns.Filter
	Action    campaigns.Action
	Selected  []string
	Confirmed bool
}

// ActionEnabled reports whether the action control should be enabled. It
// does not look at the snapshot.
func ActionEnabled(req ActionRequest) bool {
	return req.Confirmed && len(req.Selected) > 0 && req.Action == req.Filter.Action()
}

// ValidateAction checks req against snapshot and returns the selected
// campaigns in selection order without duplicates.
func ValidateAction(snapshot []campaigns.Campaign, req ActionRequest) ([]campaigns.Campaign, error) {
	if !req.Confirmed {
		return nil, ErrNotConfirmed
	}
	if len(req.Selected) == 0 {
		return nil, ErrEmptySelection
	}
	if req.Action != req.Filter.Action() {
		return nil, fmt.Errorf("%w: %s is not allowed under %s", ErrActionFilterMismatch, req.Action.Label(), req.Filter.Label())
	}

	visible := make(map[string]campaigns.Campaign)
	for _, c := range req.Filter.Apply(snapshot) {
		visible[c.ID] = c
	}

	targets := make([]campaigns.Campaign, 0, len(req.Selected))
	seen := make(map[string]struct{}, len(req.Selected))
	for _, raw := range req.Selected {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		c, ok := visible[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCampaign, id)
		}
		targets = append(targets, c)
	}
	if len(targets) == 0 {
		return nil, ErrEmptySelection
	}
	return targets, nil
}

// ValidateAction checks req against the session's latest snapshot.
func (s *Session) ValidateAction(req ActionRequest) ([]campaigns.Campaign, error) {
	snapshot, _, _ := s.Snapshot()
	return ValidateAction(snapshot, req)
}
