// Package campaigns queries and changes Five9 campaign state through the
// PSFive9Admin PowerShell module.
package campaigns

import (
	"fmt"
	"strings"
)

// Campaign types as reported by the module.
const (
	TypeInbound  = "Inbound"
	TypeOutbound = "Outbound"
	TypeAutoDial = "AutoDial"
)

// Campaign running states as reported by the module.
const (
	StateNotRunning = "NotRunning"
	StateStarting   = "Starting"
	StateRunning    = "Running"
	StateStopping   = "Stopping"
)

// Types lists every campaign type the query asks for, in query order.
var Types = []string{TypeInbound, TypeOutbound, TypeAutoDial}

var stateNames = map[int64]string{
	0: StateNotRunning,
	1: StateStarting,
	2: StateRunning,
	3: StateStopping,
}

var typeNames = map[int64]string{
	0: TypeInbound,
	1: TypeOutbound,
	2: TypeAutoDial,
}

// Campaign is one row of a query snapshot.
type Campaign struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	State string `json:"state"`
}

// IsRunning reports whether the campaign belongs under the Running filter.
func (c Campaign) IsRunning() bool {
	return strings.EqualFold(strings.TrimSpace(c.State), StateRunning)
}

type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// ParseAction accepts the action names used by forms, flags and the API.
func ParseAction(value string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "start":
		return ActionStart, nil
	case "stop":
		return ActionStop, nil
	default:
		return "", fmt.Errorf("unknown campaign action %q (want start or stop)", value)
	}
}

func (a Action) Label() string {
	switch a {
	case ActionStart:
		return "Start"
	case ActionStop:
		return "Stop"
	default:
		return string(a)
	}
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ActionResult reports what happened to one campaign in a batch.
// CampaignID is the snapshot ID the caller selected; CampaignName is the
// name the module was asked to act on.
type ActionResult struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name,omitempty"`
	Action       Action  `json:"action"`
	Outcome      Outcome `json:"outcome"`
	Message      string  `json:"message,omitempty"`
}

func (r ActionResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// DisplayName is the name shown to users for r.
func (r ActionResult) DisplayName() string {
	if r.CampaignName != "" {
		return r.CampaignName
	}
	return r.CampaignID
}

// Filter splits a snapshot into running campaigns and everything else.
type Filter string

const (
	FilterRunning   Filter = "running"
	FilterOtherwise Filter = "otherwise"
)

func ParseFilter(value string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "running":
		return FilterRunning, nil
	case "otherwise", "stopped", "not-running":
		return FilterOtherwise, nil
	default:
		return "", fmt.Errorf("unknown campaign filter %q (want running or otherwise)", value)
	}
}

// Action is the only action allowed on rows shown under the filter.
func (f Filter) Action() Action {
	if f == FilterOtherwise {
		return ActionStart
	}
	return ActionStop
}

func (f Filter) Label() string {
	if f == FilterOtherwise {
		return "Otherwise (Stopped/Stopping)"
	}
	return "Running"
}

// FilterFor returns the filter whose rows the action applies to.
func FilterFor(action Action) Filter {
	if action == ActionStart {
		return FilterOtherwise
	}
	return FilterRunning
}

// Apply returns the rows of snapshot matching f, preserving order.
func (f Filter) Apply(snapshot []Campaign) []Campaign {
	out := make([]Campaign, 0, len(snapshot))
	for _, c := range snapshot {
		if c.IsRunning() == (f == FilterRunning) {
			out = append(out, c)
		}
	}
	return out
}

// Summarize counts successes and failures.
func Summarize(results []ActionResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
