// Package controlapi defines the wire types of the five9cm control API.
package controlapi

import "time"

const (
	CampaignServiceName = "five9cm.v1.CampaignService"
	ModuleServiceName   = "five9cm.v1.ModuleService"

	ListCampaignsProcedure       = "/" + CampaignServiceName + "/ListCampaigns"
	ApplyCampaignActionProcedure = "/" + CampaignServiceName + "/ApplyCampaignAction"
	StartInstallProcedure        = "/" + ModuleServiceName + "/StartInstall"
	GetInstallStatusProcedure    = "/" + ModuleServiceName + "/GetInstallStatus"
	ResetInstallProcedure        = "/" + ModuleServiceName + "/ResetInstall"

	HealthPath = "/healthz"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Campaign struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	State string `json:"state"`
}

type ListCampaignsRequest struct {
	Credentials Credentials `json:"credentials"`
	// Filter is "running", "otherwise" or empty for every campaign.
	Filter string `json:"filter,omitempty"`
}

type ListCampaignsResponse struct {
	Campaigns []Campaign `json:"campaigns"`
	Filter    string     `json:"filter,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type ApplyCampaignActionRequest struct {
	Credentials Credentials `json:"credentials"`
	Action      string      `json:"action"`
	Campaigns   []string    `json:"campaigns"`
	Confirm     bool        `json:"confirm"`
	Refresh     bool        `json:"refresh,omitempty"`
}

type ActionResult struct {
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name,omitempty"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	Message      string `json:"message,omitempty"`
}

type ApplyCampaignActionResponse struct {
	Results   []ActionResult `json:"results"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	// Campaigns holds the refreshed list when the request asked for it.
	Campaigns    []Campaign `json:"campaigns,omitempty"`
	RefreshError string     `json:"refresh_error,omitempty"`
	Message      string     `json:"message,omitempty"`
}

type InstallStatus struct {
	State         string    `json:"state"`
	JobID         string    `json:"job_id,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
	ExitCode      int       `json:"exit_code"`
	Stdout        string    `json:"stdout,omitempty"`
	Stderr        string    `json:"stderr,omitempty"`
	Message       string    `json:"message,omitempty"`
	ModuleVersion string    `json:"module_version,omitempty"`
}

type StartInstallRequest struct{}

type GetInstallStatusRequest struct {
	// Check settles a finished install with a module probe.
	Check bool `json:"check,omitempty"`
}

type ResetInstallRequest struct{}

type InstallStatusResponse struct {
	Status InstallStatus `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
