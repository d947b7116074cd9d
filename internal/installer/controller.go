// Package installer installs the PSFive9Admin module in the background and
// tracks the machine-wide install status.
package installer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ccops/five9cm/internal/ids"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/charmbracelet/log"
)

const (
	LabelInstall = "install module"
	LabelProbe   = "probe module"

	defaultInstallTimeout = 15 * time.Minute
	defaultProbeTimeout   = 30 * time.Second
)

type Options struct {
	Runner       pwsh.Runner
	Store        *Store
	Module       string
	InstallerURL string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Logger       *log.Logger
}

// ModuleInfo is what the probe found on the machine.
type ModuleInfo struct {
	Installed bool   `json:"installed"`
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Controller owns the install state machine. Only one install job runs per
// process.
type Controller struct {
	runner       pwsh.Runner
	store        *Store
	module       string
	installerURL string
	timeout      time.Duration
	probeTimeout time.Duration
	logger       *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

func New(opts Options) *Controller {
	c := &Controller{
		runner:       opts.Runner,
		store:        opts.Store,
		module:       strings.TrimSpace(opts.Module),
		installerURL: strings.TrimSpace(opts.InstallerURL),
		timeout:      opts.Timeout,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = defaultInstallTimeout
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = defaultProbeTimeout
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	return c
}

// Status returns the stored status without probing.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Load(ctx)
}

// StartInstall launches the install script in the background and returns
// the Running status immediately.
func (c *Controller) StartInstall(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Status{}, errors.New("installer is closed")
	}
	current, err := c.store.Load(ctx)
	if err != nil {
		return Status{}, err
	}
	switch {
	case c.running || current.State == StateRunning:
		return current, ErrInstallRunning
	case current.State.Terminal():
		return current, ErrResetRequired
	case !canTransition(current.State, StateRunning):
		return current, ErrInvalidState
	}

	next := Status{
		State:     StateRunning,
		JobID:     ids.NewInstallID(),
		StartedAt: time.Now().UTC(),
	}
	if err := c.store.Save(ctx, next); err != nil {
		return Status{}, err
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	c.running = true
	c.cancel = cancel
	c.wg.Add(1)
	go c.runJob(jobCtx, cancel, next)

	c.logger.Info("module install started", "job_id", next.JobID, "module", c.module)
	return next, nil
}

func (c *Controller) runJob(ctx context.Context, cancel context.CancelFunc, st Status) {
	defer c.wg.Done()
	defer cancel()

	res, err := c.runner.Run(ctx, pwsh.Request{
		Label:   LabelInstall,
		Script:  installScript(c.installerURL),
		Timeout: c.timeout,
	})

	st.JobDone = true
	st.FinishedAt = time.Now().UTC()
	st.ExitCode = res.ExitCode
	st.Stdout = res.Stdout
	st.Stderr = res.Stderr
	switch {
	case err != nil:
		st.Message = err.Error()
	case res.TimedOut:
		st.Message = fmt.Sprintf("install timed out after %s", c.timeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.cancel = nil
	// The record may have been replaced while the job ran.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if current, loadErr := c.store.Load(saveCtx); loadErr == nil && current.JobID != st.JobID {
		return
	}
	if saveErr := c.store.Save(saveCtx, st); saveErr != nil {
		c.logger.Error("failed to record install result", "job_id", st.JobID, "err", saveErr)
		return
	}
	c.logger.Info("module install finished", "job_id", st.JobID, "exit_code", st.ExitCode, "timed_out", res.TimedOut)
}

// CheckStatus reports Running while the job is in flight. Once it has
// exited the status settles to Succeeded or Failed, confirmed by a probe.
func (c *Controller) CheckStatus(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.store.Load(ctx)
	if err != nil {
		return Status{}, err
	}
	if c.running || current.State != StateRunning {
		return current, nil
	}

	next := current
	if !next.JobDone {
		// A previous process stopped before the job reported back.
		next.Message = "install was interrupted"
	}

	info, probeErr := c.probe(ctx)
	switch {
	case !next.JobDone, next.Message != "", next.ExitCode != 0, strings.TrimSpace(next.Stderr) != "":
		next.State = StateFailed
		if next.Message == "" {
			next.Message = firstLine(next.Stderr)
		}
		if next.Message == "" {
			next.Message = fmt.Sprintf("installer exited with code %d", next.ExitCode)
		}
	case probeErr != nil:
		next.State = StateFailed
		next.Message = "probe failed: " + probeErr.Error()
	case !info.Installed:
		next.State = StateFailed
		next.Message = fmt.Sprintf("%s not found after install", c.moduleName())
	default:
		next.State = StateSucceeded
		next.ModuleVersion = info.Version
		next.Message = fmt.Sprintf("%s %s installed", info.Name, info.Version)
	}
	if next.FinishedAt.IsZero() {
		next.FinishedAt = time.Now().UTC()
	}
	if !canTransition(current.State, next.State) {
		return current, ErrInvalidState
	}
	if err := c.store.Save(ctx, next); err != nil {
		return Status{}, err
	}
	c.logger.Info("module install settled", "job_id", next.JobID, "state", next.State)
	return next, nil
}

// Reset forgets a finished install so a new one can start.
func (c *Controller) Reset(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.store.Load(ctx)
	if err != nil {
		return Status{}, err
	}
	if c.running || current.State == StateRunning {
		return current, ErrInstallRunning
	}
	if err := c.store.Clear(ctx); err != nil {
		return Status{}, err
	}
	c.logger.Info("module install status reset")
	return Status{State: StateNotStarted}, nil
}

// Probe looks for the module without changing the install status.
func (c *Controller) Probe(ctx context.Context) (ModuleInfo, error) {
	return c.probe(ctx)
}

func (c *Controller) probe(ctx context.Context) (ModuleInfo, error) {
	res, err := c.runner.Run(ctx, pwsh.Request{
		Label:   LabelProbe,
		Script:  probeScript(c.moduleName()),
		Timeout: c.probeTimeout,
	})
	if err != nil {
		return ModuleInfo{}, err
	}
	if res.TimedOut {
		return ModuleInfo{}, fmt.Errorf("%s: %w", LabelProbe, pwsh.ErrTimeout)
	}
	if res.Failed() {
		return ModuleInfo{}, fmt.Errorf("%s failed (exit code %d): %s", LabelProbe, res.ExitCode, firstLine(res.Stderr))
	}
	return parseProbe(res.Stdout)
}

// Close cancels a running install and waits for it to exit.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *Controller) moduleName() string {
	if c.module == "" {
		return "PSFive9Admin"
	}
	return c.module
}

func installScript(url string) string {
	var b strings.Builder
	b.WriteString("$ErrorActionPreference = 'Stop'\n")
	b.WriteString("$ProgressPreference = 'SilentlyContinue'\n")
	b.WriteString("[Net.ServicePointManager]::SecurityProtocol = [Net.ServicePointManager]::SecurityProtocol -bor [Net.SecurityProtocolType]::Tls12\n")
	fmt.Fprintf(&b, "irm '%s' | iex\n", pwsh.EscapeLiteral(url))
	return pwsh.Block(b.String())
}

func probeScript(module string) string {
	var b strings.Builder
	b.WriteString("$ErrorActionPreference = 'Stop'\n")
	fmt.Fprintf(&b, "$found = Get-Module -ListAvailable -Name '%s' | Sort-Object Version -Descending | Select-Object -First 1\n", pwsh.EscapeLiteral(module))
	b.WriteString("if ($found) {\n")
	b.WriteString("  [pscustomobject]@{ Name = $found.Name; Version = $found.Version.ToString() } | ConvertTo-Json\n")
	b.WriteString("}\n")
	return pwsh.Block(b.String())
}

func parseProbe(raw string) (ModuleInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ModuleInfo{}, nil
	}
	var out struct {
		Name    string
		Version string
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return ModuleInfo{}, fmt.Errorf("decode probe output: %w", err)
	}
	return ModuleInfo{Installed: out.Name != "", Name: out.Name, Version: out.Version}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	return s
}
