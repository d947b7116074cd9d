package cli

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/ccops/five9cm/client"
	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/installer"
)

type ModuleCommand struct {
	Install ModuleInstallCommand `cmd:"" help:"Install or update the module from its installer script"`
	Status  ModuleStatusCommand  `cmd:"" help:"Show the module install status"`
	Reset   ModuleResetCommand   `cmd:"" help:"Clear a finished install status so the install can run again"`
}

type ModuleInstallCommand struct {
	ClientFlags `embed:""`

	NoWait bool `help:"Return once the install has started (requires --host)"`
	JSON   bool `help:"Print the final status as JSON"`
}

type ModuleStatusCommand struct {
	ClientFlags `embed:""`

	Check bool `help:"Probe the machine to settle a finished install"`
	JSON  bool `help:"Print the status as JSON"`
}

type ModuleResetCommand struct {
	ClientFlags `embed:""`

	JSON bool `help:"Print the status as JSON"`
}

var installPollInterval = 2 * time.Second

func (m *ModuleInstallCommand) Run(ctx *runtimeContext) error {
	if m.NoWait && strings.TrimSpace(m.Host) == "" {
		return errors.New("--no-wait requires --host; a local install stops when this command exits")
	}
	api, cleanup, err := ctx.connectAPI(m.ClientFlags, "module")
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(context.Background(), ctx.Config.PowerShell.InstallTimeout()+time.Minute)
	defer cancel()

	res, err := api.StartInstall(runCtx, &controlapi.StartInstallRequest{})
	if err != nil {
		return err
	}
	status := res.Status
	if !m.NoWait {
		status, err = client.WaitForInstall(runCtx, api, installPollInterval)
		if err != nil {
			return err
		}
	}

	if err := writeInstallStatus(ctx, status, m.JSON); err != nil {
		return err
	}
	if status.State == string(installer.StateFailed) {
		return exitCodeError{code: 1}
	}
	return nil
}

func (m *ModuleStatusCommand) Run(ctx *runtimeContext) error {
	api, cleanup, err := ctx.connectAPI(m.ClientFlags, "module")
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := api.GetInstallStatus(context.Background(), &controlapi.GetInstallStatusRequest{Check: m.Check})
	if err != nil {
		return err
	}
	return writeInstallStatus(ctx, res.Status, m.JSON)
}

func (m *ModuleResetCommand) Run(ctx *runtimeContext) error {
	api, cleanup, err := ctx.connectAPI(m.ClientFlags, "module")
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := api.ResetInstall(context.Background(), &controlapi.ResetInstallRequest{})
	if err != nil {
		return err
	}
	return writeInstallStatus(ctx, res.Status, m.JSON)
}

func writeInstallStatus(ctx *runtimeContext, status controlapi.InstallStatus, asJSON bool) error {
	if asJSON {
		return writeJSON(ctx.Stdout, status)
	}
	_, err := io.WriteString(ctx.Stdout, renderInstallStatus(status, shouldUseANSI(ctx.Stdout)))
	return err
}
