package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/ccops/five9cm/client"
	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/controlserver"
	"github.com/ccops/five9cm/internal/controlservice"
	"github.com/ccops/five9cm/internal/dashboard"
	"github.com/ccops/five9cm/internal/endpoint"
	"github.com/ccops/five9cm/internal/installer"
	"github.com/ccops/five9cm/internal/paths"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/ccops/five9cm/internal/runtimeconfig"
	"github.com/ccops/five9cm/internal/session"
	"github.com/ccops/five9cm/internal/tlsbootstrap"
	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

type runtimeContext struct {
	Version    string
	Stdout     *os.File
	Stderr     *os.File
	Stdin      *os.File
	Config     runtimeconfig.Config
	ConfigPath string

	// Runner replaces the local PowerShell process when set.
	Runner pwsh.Runner
	// ReadPassword replaces the terminal prompt when set.
	ReadPassword func(prompt string) (string, error)
}

type CLI struct {
	Serve     ServeCommand     `cmd:"" help:"Run the campaign dashboard and control API"`
	Campaigns CampaignsCommand `cmd:"" help:"List, start or stop Five9 campaigns"`
	Module    ModuleCommand    `cmd:"" help:"Install or inspect the PSFive9Admin PowerShell module"`
	Doctor    DoctorCommand    `cmd:"" help:"Check PowerShell and module prerequisites"`
	Config    ConfigCommand    `cmd:"" help:"Runtime configuration commands"`
	TLS       TLSCommand       `cmd:"" name:"tls" help:"TLS material for https:// listeners"`
	Version   VersionCommand   `cmd:"" help:"Print the five9cm version"`
}

type ServeCommand struct {
	Listen   string `help:"Listen endpoint (http://host:port, https://host:port, unix://path or tsnet://hostname[:port])"`
	LogLevel string `help:"Server log level (debug|info|warn|error)"`
	TLSCert  string `name:"tls-cert" help:"Server certificate for https:// listeners"`
	TLSKey   string `name:"tls-key" help:"Server private key for https:// listeners"`
	StateDB  string `name:"state-db" help:"Installer status store: memory, state, or a sqlite file path"`
}

// ClientFlags select between running PowerShell in-process and calling a
// running dashboard.
type ClientFlags struct {
	Host     string `help:"Dashboard to call instead of running PowerShell locally (http://, https://, unix://)"`
	TLSCA    string `name:"tls-ca" help:"CA bundle for https:// hosts"`
	LogLevel string `help:"Client log level (debug|info|warn|error)"`
}

type DoctorCommand struct {
	LogLevel string `help:"Log level (debug|info|warn|error)"`
	JSON     bool   `help:"Print doctor report as JSON"`
}

type ConfigCommand struct {
	Init ConfigInitCommand `cmd:"" help:"Write a config file with every default filled in"`
	Path ConfigPathCommand `cmd:"" help:"Print the config file path in use"`
}

type ConfigInitCommand struct {
	Force bool `help:"Overwrite an existing config file"`
}

type ConfigPathCommand struct{}

type TLSCommand struct {
	Init TLSInitCommand `cmd:"" help:"Generate a local CA and server certificate"`
}

type TLSInitCommand struct {
	Dir   string   `help:"Output directory (defaults to the five9cm TLS directory)"`
	Hosts []string `name:"host" help:"Extra DNS names or IPs for the server certificate"`
	Force bool     `help:"Overwrite existing TLS material"`
}

type VersionCommand struct{}

type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("command failed with exit code %d", e.code)
}

func (e exitCodeError) ExitCode() int {
	return e.code
}

type hasExitCode interface {
	ExitCode() int
}

func Run(args []string, version string) error {
	cfg, cfgPath, err := runtimeconfig.Load()
	if err != nil {
		return err
	}
	runtimeCtx := &runtimeContext{
		Version:    version,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Stdin:      os.Stdin,
		Config:     cfg,
		ConfigPath: cfgPath,
	}

	cli := CLI{}
	parser, err := newParser(&cli)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(runtimeCtx)
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(
		cli,
		kong.Name("five9cm"),
		kong.Description("Five9 campaign manager"),
		kong.UsageOnError(),
	)
}

func ExitCode(err error) int {
	var codeErr hasExitCode
	if errors.As(err, &codeErr) {
		return codeErr.ExitCode()
	}
	return 1
}

func (s *ServeCommand) Run(ctx *runtimeContext) error {
	level := s.LogLevel
	if strings.TrimSpace(level) == "" {
		level = ctx.Config.LogLevel
	}
	logger, err := newLogger(level, "server")
	if err != nil {
		return err
	}
	color := shouldUseANSI(ctx.Stderr)
	applyPolishedLoggerStyles(logger, color)

	listen := s.Listen
	if strings.TrimSpace(listen) == "" {
		listen = ctx.Config.Listen
	}
	ep, err := endpoint.ResolveListen(listen)
	if err != nil {
		return err
	}

	installerCfg := ctx.Config.Installer
	if strings.TrimSpace(s.StateDB) != "" {
		installerCfg.StateDB = s.StateDB
	}
	dsn, err := installerCfg.ResolveStateDB()
	if err != nil {
		return err
	}
	store, err := installer.OpenStore(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := ctx.runner(logger.With("subsystem", "pwsh"))
	ctrl := newInstaller(ctx.Config, runner, store, logger.With("subsystem", "installer"))
	defer ctrl.Close()

	dash := ctx.Config.Dashboard
	sessions := session.NewStore(dash.SessionTTL(), session.Options{
		DebugLogLimit: dash.DebugLogLimit,
		RateLimit:     dash.RateLimit,
		RateBurst:     dash.RateBurst,
		AutoRefresh:   dash.AutoRefreshEnabled(),
	}, logger.With("subsystem", "sessions"))
	defer sessions.Close()

	service := newService(ctx.Config, runner, ctrl, sessions, logger.With("subsystem", "service"))
	handler, err := dashboard.New(service, sessions, logger.With("subsystem", "dashboard"))
	if err != nil {
		return err
	}
	server := controlserver.New(service, handler, logger.With("subsystem", "http"))

	if shouldShowStartupHeader(ctx.Stderr) {
		_ = writeStartupHeader(ctx.Stderr, startupHeader{
			Title: "five9cm dashboard",
			Fields: []startupField{
				{Key: "open", Value: dashboardURL(ep)},
				{Key: "listen", Value: endpointDisplay(ep)},
				{Key: "module", Value: ctx.Config.Module.Name},
				{Key: "installer store", Value: dsn},
				{Key: "log level", Value: effectiveLogLevel(level)},
			},
		}, color)
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return controlserver.Serve(runCtx, ep, server.Handler(), logger, &controlserver.TLSOptions{
		CertPath: s.TLSCert,
		KeyPath:  s.TLSKey,
	})
}

func (d *DoctorCommand) Run(ctx *runtimeContext) error {
	logger, err := newLogger(d.LogLevel, "doctor")
	if err != nil {
		return err
	}
	runner := ctx.runner(logger.With("subsystem", "pwsh"))

	dsn, err := ctx.Config.Installer.ResolveStateDB()
	if err != nil {
		return err
	}
	store, err := installer.OpenStore(dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	ctrl := newInstaller(ctx.Config, runner, store, logger)
	defer ctrl.Close()

	service := newService(ctx.Config, runner, ctrl, nil, logger)
	checks := append([]controlservice.DoctorCheck{
		{Name: "runtime_config", Status: "pass", Message: "using runtime config path " + ctx.ConfigPath},
	}, service.Doctor(context.Background())...)

	if d.JSON {
		enc := json.NewEncoder(ctx.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"checks": checks}); err != nil {
			return err
		}
	} else if _, err := io.WriteString(ctx.Stdout, renderDoctorReport(ctx.Config.Module.Name, checks, shouldUseANSI(ctx.Stdout))); err != nil {
		return err
	}

	for _, check := range checks {
		if normalizeDoctorStatus(check.Status) == "fail" {
			return exitCodeError{code: 1}
		}
	}
	return nil
}

func (c *ConfigInitCommand) Run(ctx *runtimeContext) error {
	path, err := runtimeconfig.Path()
	if err != nil {
		return err
	}
	if err := runtimeconfig.Write(path, runtimeconfig.Default(), c.Force); err != nil {
		return err
	}
	_, err = fmt.Fprintf(ctx.Stdout, "wrote runtime config: %s\n", path)
	return err
}

func (c *ConfigPathCommand) Run(ctx *runtimeContext) error {
	_, err := fmt.Fprintln(ctx.Stdout, ctx.ConfigPath)
	return err
}

func (c *TLSInitCommand) Run(ctx *runtimeContext) error {
	dir := strings.TrimSpace(c.Dir)
	if dir == "" {
		var err error
		dir, err = paths.TLSDir()
		if err != nil {
			return err
		}
	}
	files, err := tlsbootstrap.Init(dir, c.Hosts, c.Force)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ctx.Stdout, "wrote TLS material to %s\n  ca: %s\n  server certificate: %s\n  server key: %s\n",
		dir, files.CACert, files.ServerCert, files.ServerKey)
	return err
}

func (c *VersionCommand) Run(ctx *runtimeContext) error {
	version := strings.TrimSpace(ctx.Version)
	if version == "" {
		version = "dev"
	}
	_, err := fmt.Fprintf(ctx.Stdout, "five9cm %s\n", version)
	return err
}

// runner returns the configured PowerShell process unless a test replaced it.
func (ctx *runtimeContext) runner(logger *log.Logger) pwsh.Runner {
	if ctx.Runner != nil {
		return ctx.Runner
	}
	ps := ctx.Config.PowerShell
	return &pwsh.Process{
		Binary:         ps.Binary,
		Timeout:        ps.Timeout(),
		MaxOutputBytes: ps.MaxOutputBytes,
		Logger:         logger,
	}
}

func newInstaller(cfg runtimeconfig.Config, runner pwsh.Runner, store *installer.Store, logger *log.Logger) *installer.Controller {
	return installer.New(installer.Options{
		Runner:       runner,
		Store:        store,
		Module:       cfg.Module.Name,
		InstallerURL: cfg.Module.InstallerURL,
		Timeout:      cfg.PowerShell.InstallTimeout(),
		ProbeTimeout: cfg.PowerShell.Timeout(),
		Logger:       logger,
	})
}

func newService(cfg runtimeconfig.Config, runner pwsh.Runner, ctrl *installer.Controller, sessions *session.Store, logger *log.Logger) *controlservice.Service {
	return &controlservice.Service{
		Runner:    runner,
		Installer: ctrl,
		Sessions:  sessions,
		Module:    cfg.Module.Name,
		Timeout:   cfg.PowerShell.Timeout(),
		Logger:    logger,
	}
}

// controlAPI is served by the in-process service and by a remote dashboard.
type controlAPI interface {
	ListCampaigns(ctx context.Context, req *controlapi.ListCampaignsRequest) (*controlapi.ListCampaignsResponse, error)
	ApplyCampaignAction(ctx context.Context, req *controlapi.ApplyCampaignActionRequest) (*controlapi.ApplyCampaignActionResponse, error)
	StartInstall(ctx context.Context, req *controlapi.StartInstallRequest) (*controlapi.InstallStatusResponse, error)
	GetInstallStatus(ctx context.Context, req *controlapi.GetInstallStatusRequest) (*controlapi.InstallStatusResponse, error)
	ResetInstall(ctx context.Context, req *controlapi.ResetInstallRequest) (*controlapi.InstallStatusResponse, error)
}

type localAPI struct {
	service *controlservice.Service
}

func (l localAPI) ListCampaigns(ctx context.Context, req *controlapi.ListCampaignsRequest) (*controlapi.ListCampaignsResponse, error) {
	return l.service.ListCampaigns(ctx, req)
}

func (l localAPI) ApplyCampaignAction(ctx context.Context, req *controlapi.ApplyCampaignActionRequest) (*controlapi.ApplyCampaignActionResponse, error) {
	return l.service.ApplyCampaignAction(ctx, req)
}

func (l localAPI) StartInstall(ctx context.Context, req *controlapi.StartInstallRequest) (*controlapi.InstallStatusResponse, error) {
	return l.service.StartModuleInstall(ctx, req)
}

func (l localAPI) GetInstallStatus(ctx context.Context, req *controlapi.GetInstallStatusRequest) (*controlapi.InstallStatusResponse, error) {
	return l.service.GetInstallStatus(ctx, req)
}

func (l localAPI) ResetInstall(ctx context.Context, req *controlapi.ResetInstallRequest) (*controlapi.InstallStatusResponse, error) {
	return l.service.ResetModuleInstall(ctx, req)
}

// connectAPI returns the API for flags and a cleanup func. Without --host the
// calls run PowerShell in this process.
func (ctx *runtimeContext) connectAPI(flags ClientFlags, component string) (controlAPI, func(), error) {
	logger, err := newLogger(flags.LogLevel, component)
	if err != nil {
		return nil, nil, err
	}

	if strings.TrimSpace(flags.Host) != "" {
		remote, err := client.New(flags.Host, client.WithTLS(client.TLSOptions{CAPath: flags.TLSCA}))
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using remote dashboard", "base_url", remote.BaseURL())
		return remote, func() {}, nil
	}

	dsn, err := ctx.Config.Installer.ResolveStateDB()
	if err != nil {
		return nil, nil, err
	}
	store, err := installer.OpenStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	runner := ctx.runner(logger.With("subsystem", "pwsh"))
	ctrl := newInstaller(ctx.Config, runner, store, logger.With("subsystem", "installer"))
	service := newService(ctx.Config, runner, ctrl, nil, logger.With("subsystem", "service"))
	cleanup := func() {
		_ = ctrl.Close()
		_ = store.Close()
	}
	return localAPI{service: service}, cleanup, nil
}

// readCredentials takes the username from flags or the environment and the
// password from FIVE9CM_PASSWORD or a terminal prompt.
func (ctx *runtimeContext) readCredentials(username string) (controlapi.Credentials, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = strings.TrimSpace(os.Getenv(campaigns.EnvUsername))
	}
	if username == "" {
		return controlapi.Credentials{}, fmt.Errorf("%w: pass --username or set %s", campaigns.ErrMissingCredentials, campaigns.EnvUsername)
	}

	password := os.Getenv(campaigns.EnvPassword)
	if password == "" {
		read := ctx.ReadPassword
		if read == nil {
			read = ctx.promptPassword
		}
		var err error
		password, err = read(fmt.Sprintf("Five9 password for %s: ", username))
		if err != nil {
			return controlapi.Credentials{}, err
		}
	}
	if password == "" {
		return controlapi.Credentials{}, campaigns.ErrMissingCredentials
	}
	return controlapi.Credentials{Username: username, Password: password}, nil
}

func (ctx *runtimeContext) promptPassword(prompt string) (string, error) {
	if ctx.Stdin == nil || !term.IsTerminal(int(ctx.Stdin.Fd())) {
		return "", fmt.Errorf("%w: set %s when stdin is not a terminal", campaigns.ErrMissingCredentials, campaigns.EnvPassword)
	}
	if ctx.Stderr != nil {
		_, _ = io.WriteString(ctx.Stderr, prompt)
	}
	raw, err := term.ReadPassword(int(ctx.Stdin.Fd()))
	if ctx.Stderr != nil {
		_, _ = io.WriteString(ctx.Stderr, "\n")
	}
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func newLogger(rawLevel, component string) (*log.Logger, error) {
	levelName := strings.TrimSpace(strings.ToLower(rawLevel))
	if levelName == "" {
		levelName = "info"
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", rawLevel, err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:     level,
		Formatter: log.TextFormatter,
	})
	return logger.With("component", component), nil
}
