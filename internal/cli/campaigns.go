package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/session"
)

type CampaignsCommand struct {
	List  CampaignsListCommand  `cmd:"" help:"List campaigns of every type"`
	Start CampaignsStartCommand `cmd:"" help:"Start campaigns that are not running"`
	Stop  CampaignsStopCommand  `cmd:"" help:"Stop running campaigns"`
}

type CampaignsListCommand struct {
	ClientFlags `embed:""`

	Username string `short:"u" env:"FIVE9CM_USERNAME" help:"Five9 admin username (password from FIVE9CM_PASSWORD or a prompt)"`
	Filter   string `enum:"all,running,otherwise" default:"all" help:"Show all, running, or otherwise (stopped/stopping) campaigns"`
	JSON     bool   `help:"Print campaigns as JSON"`
}

type CampaignActionFlags struct {
	ClientFlags `embed:""`

	Username  string   `short:"u" env:"FIVE9CM_USERNAME" help:"Five9 admin username (password from FIVE9CM_PASSWORD or a prompt)"`
	Yes       bool     `short:"y" help:"Confirm the state change"`
	NoRefresh bool     `help:"Do not list campaigns again after the action"`
	JSON      bool     `help:"Print results as JSON"`
	Names     []string `arg:"" name:"campaign" help:"Campaign names or ids"`
}

type CampaignsStartCommand struct {
	CampaignActionFlags `embed:""`
}

type CampaignsStopCommand struct {
	CampaignActionFlags `embed:""`
}

func (c *CampaignsListCommand) Run(ctx *runtimeContext) error {
	creds, err := ctx.readCredentials(c.Username)
	if err != nil {
		return err
	}
	api, cleanup, err := ctx.connectAPI(c.ClientFlags, "campaigns")
	if err != nil {
		return err
	}
	defer cleanup()

	filter := c.Filter
	if filter == "all" {
		filter = ""
	}
	res, err := api.ListCampaigns(context.Background(), &controlapi.ListCampaignsRequest{
		Credentials: creds,
		Filter:      filter,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(ctx.Stdout, res)
	}
	if len(res.Campaigns) == 0 {
		_, err := fmt.Fprintln(ctx.Stdout, "No campaigns returned.")
		return err
	}
	_, err = io.WriteString(ctx.Stdout, renderCampaignTable(res.Campaigns, shouldUseANSI(ctx.Stdout)))
	return err
}

func (c *CampaignsStartCommand) Run(ctx *runtimeContext) error {
	return c.run(ctx, campaigns.ActionStart)
}

func (c *CampaignsStopCommand) Run(ctx *runtimeContext) error {
	return c.run(ctx, campaigns.ActionStop)
}

func (c *CampaignActionFlags) run(ctx *runtimeContext, action campaigns.Action) error {
	names := make([]string, 0, len(c.Names))
	for _, name := range c.Names {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return session.ErrEmptySelection
	}
	if !c.Yes {
		return fmt.Errorf("%w: pass --yes to %s %d campaign(s)", session.ErrNotConfirmed, action, len(names))
	}

	creds, err := ctx.readCredentials(c.Username)
	if err != nil {
		return err
	}
	api, cleanup, err := ctx.connectAPI(c.ClientFlags, "campaigns")
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := api.ApplyCampaignAction(context.Background(), &controlapi.ApplyCampaignActionRequest{
		Credentials: creds,
		Action:      string(action),
		Campaigns:   names,
		Confirm:     true,
		Refresh:     !c.NoRefresh,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		if err := writeJSON(ctx.Stdout, res); err != nil {
			return err
		}
	} else if _, err := io.WriteString(ctx.Stdout, renderActionReport(res, shouldUseANSI(ctx.Stdout))); err != nil {
		return err
	}

	if res.Failed > 0 {
		return exitCodeError{code: 1}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
