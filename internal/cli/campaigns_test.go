package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/ccops/five9cm/internal/runtimeconfig"
	"github.com/ccops/five9cm/internal/session"
)

const campaignsJSON = `[
	{"Name":"A","State":"Running","Type":"Inbound"},
	{"Name":"B","State":"NotRunning","Type":"Outbound"},
	{"Name":"C","State":"Stopping","Type":"AutoDial"}
]`

type fakeRunner struct {
	mu      sync.Mutex
	results map[string]pwsh.Result
	labels  []string
	envs    []map[string]string
}

func (r *fakeRunner) Run(_ context.Context, req pwsh.Request) (pwsh.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, req.Label)
	r.envs = append(r.envs, req.Env)
	return r.results[req.Label], nil
}

func (r *fakeRunner) set(label string, res pwsh.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[label] = res
}

func (r *fakeRunner) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.labels...)
}

func newTestContext(t *testing.T, runner pwsh.Runner) (*runtimeContext, func() string) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	t.Setenv(campaigns.EnvUsername, "admin")
	t.Setenv(campaigns.EnvPassword, "secret")

	stdout, readStdout := makeStdoutCapture(t)
	return &runtimeContext{
		Version: "test",
		Stdout:  stdout,
		Config:  runtimeconfig.Default(),
		Runner:  runner,
		ReadPassword: func(string) (string, error) {
			return "", errors.New("unexpected password prompt")
		},
	}, readStdout
}

func TestCampaignsListPrintsTable(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{campaigns.LabelFetch: {Stdout: campaignsJSON}}}
	ctx, readStdout := newTestContext(t, runner)

	cmd := &CampaignsListCommand{Filter: "all"}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("CampaignsListCommand.Run returned error: %v", err)
	}

	out := readStdout()
	for _, want := range []string{"NAME", "STATE", "TYPE", "Inbound", "NotRunning", "AutoDial"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Index(out, "Inbound") > strings.Index(out, "Outbound") {
		t.Fatalf("expected snapshot order to be kept:\n%s", out)
	}
	if env := runner.envs[0]; env[campaigns.EnvUsername] != "admin" || env[campaigns.EnvPassword] != "secret" {
		t.Fatalf("expected credentials in the invocation environment, got %v", env)
	}
}

func TestCampaignsListFilterRunningAsJSON(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{campaigns.LabelFetch: {Stdout: campaignsJSON}}}
	ctx, readStdout := newTestContext(t, runner)

	cmd := &CampaignsListCommand{Filter: "running", JSON: true}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("CampaignsListCommand.Run returned error: %v", err)
	}

	var res controlapi.ListCampaignsResponse
	if err := json.Unmarshal([]byte(readStdout()), &res); err != nil {
		t.Fatalf("decode json output: %v", err)
	}
	if len(res.Campaigns) != 1 || res.Campaigns[0].Name != "A" {
		t.Fatalf("expected only campaign A, got %+v", res.Campaigns)
	}
	if res.Filter != "running" {
		t.Fatalf("expected filter running, got %q", res.Filter)
	}
}

func TestCampaignsListEmpty(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{campaigns.LabelFetch: {Stdout: ""}}}
	ctx, readStdout := newTestContext(t, runner)

	if err := (&CampaignsListCommand{Filter: "all"}).Run(ctx); err != nil {
		t.Fatalf("CampaignsListCommand.Run returned error: %v", err)
	}
	if got, want := readStdout(), "No campaigns returned.\n"; got != want {
		t.Fatalf("unexpected output: got %q want %q", got, want)
	}
}

func TestCampaignsListMissingCredentials(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{}}
	ctx, _ := newTestContext(t, runner)
	t.Setenv(campaigns.EnvPassword, "")
	var prompt string
	ctx.ReadPassword = func(p string) (string, error) {
		prompt = p
		return "", nil
	}

	err := (&CampaignsListCommand{Filter: "all"}).Run(ctx)
	if !errors.Is(err, campaigns.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if !strings.Contains(prompt, "admin") {
		t.Fatalf("expected a password prompt for admin, got %q", prompt)
	}
	if calls := runner.calls(); len(calls) != 0 {
		t.Fatalf("expected no powershell calls, got %v", calls)
	}
}

func TestCampaignsStopRequiresConfirmation(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{campaigns.LabelFetch: {Stdout: campaignsJSON}}}
	ctx, _ := newTestContext(t, runner)

	cmd := &CampaignsStopCommand{CampaignActionFlags{Names: []string{"A"}}}
	err := cmd.Run(ctx)
	if !errors.Is(err, session.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected hint about --yes, got %v", err)
	}
	if calls := runner.calls(); len(calls) != 0 {
		t.Fatalf("expected no powershell calls, got %v", calls)
	}
}

func TestCampaignsStartRequiresNames(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{}}
	ctx, _ := newTestContext(t, runner)

	cmd := &CampaignsStartCommand{CampaignActionFlags{Yes: true, Names: []string{" ", ""}}}
	if err := cmd.Run(ctx); !errors.Is(err, session.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestCampaignsStopAppliesAndRefreshes(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{
		campaigns.LabelFetch:  {Stdout: campaignsJSON},
		campaigns.LabelAction: {Stdout: `{"Name":"A","Success":true,"Error":null}`},
	}}
	ctx, readStdout := newTestContext(t, runner)

	cmd := &CampaignsStopCommand{CampaignActionFlags{Yes: true, Names: []string{"a"}}}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("CampaignsStopCommand.Run returned error: %v", err)
	}

	out := readStdout()
	for _, want := range []string{"CAMPAIGN", "stop", "success", "summary: 1 succeeded, 0 failed", "campaigns after refresh:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	want := []string{campaigns.LabelFetch, campaigns.LabelAction, campaigns.LabelFetch}
	if got := runner.calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected invocations: got %v want %v", got, want)
	}
}

func TestCampaignsStartPartialFailureExitsNonZero(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{
		campaigns.LabelFetch: {Stdout: campaignsJSON},
		campaigns.LabelAction: {Stdout: `[
			{"Name":"B","Success":true,"Error":null},
			{"Name":"C","Success":false,"Error":"Campaign is stopping"}
		]`},
	}}
	ctx, readStdout := newTestContext(t, runner)

	cmd := &CampaignsStartCommand{CampaignActionFlags{Yes: true, NoRefresh: true, JSON: true, Names: []string{"B", "C"}}}
	err := cmd.Run(ctx)
	if got := ExitCode(err); err == nil || got != 1 {
		t.Fatalf("expected exit code 1, got err=%v code=%d", err, got)
	}

	var res controlapi.ApplyCampaignActionResponse
	if err := json.Unmarshal([]byte(readStdout()), &res); err != nil {
		t.Fatalf("decode json output: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", res)
	}
	if got := res.Results[1]; got.CampaignID != "C" || got.Message != "Campaign is stopping" {
		t.Fatalf("unexpected failure result: %+v", got)
	}
	if len(res.Campaigns) != 0 {
		t.Fatalf("expected no refresh with --no-refresh, got %+v", res.Campaigns)
	}
	if calls := runner.calls(); len(calls) != 2 {
		t.Fatalf("expected fetch and action only, got %v", calls)
	}
}

func TestCampaignsStopRejectsCampaignThatIsNotRunning(t *testing.T) {
	runner := &fakeRunner{results: map[string]pwsh.Result{campaigns.LabelFetch: {Stdout: campaignsJSON}}}
	ctx, _ := newTestContext(t, runner)

	cmd := &CampaignsStopCommand{CampaignActionFlags{Yes: true, Names: []string{"B"}}}
	if err := cmd.Run(ctx); err == nil {
		t.Fatal("expected stopping a campaign that is not running to fail")
	}
	for _, label := range runner.calls() {
		if label == campaigns.LabelAction {
			t.Fatal("expected the action script not to run")
		}
	}
}
