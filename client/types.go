package client

import "github.com/ccops/five9cm/internal/controlapi"

type Credentials = controlapi.Credentials
type Campaign = controlapi.Campaign
type ActionResult = controlapi.ActionResult
type InstallStatus = controlapi.InstallStatus

type ListCampaignsRequest = controlapi.ListCampaignsRequest
type ListCampaignsResponse = controlapi.ListCampaignsResponse
type ApplyCampaignActionRequest = controlapi.ApplyCampaignActionRequest
type ApplyCampaignActionResponse = controlapi.ApplyCampaignActionResponse
type StartInstallRequest = controlapi.StartInstallRequest
type GetInstallStatusRequest = controlapi.GetInstallStatusRequest
type ResetInstallRequest = controlapi.ResetInstallRequest
type InstallStatusResponse = controlapi.InstallStatusResponse

// Campaign filters accepted by ListCampaignsRequest.Filter. An empty filter
// returns every campaign.
const (
	FilterRunning   = "running"
	FilterOtherwise = "otherwise"
)

// Install states reported in InstallStatus.State.
const (
	InstallNotStarted = "not_started"
	InstallRunning    = "running"
	InstallSucceeded  = "succeeded"
	InstallFailed     = "failed"
)
