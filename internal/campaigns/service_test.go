package campaigns

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ccops/five9cm/internal/credentials"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/google/go-cmp/cmp"
)

var testCreds = credentials.Credentials{Username: "admin@example.com", Password: "p@ss'word"}

type fakeRunner struct {
	result pwsh.Result
	err    error
	calls  []pwsh.Request
}

func (f *fakeRunner) Run(_ context.Context, req pwsh.Request) (pwsh.Result, error) {
	f.calls = append(f.calls, req)
	return f.result, f.err
}

func TestFetchZeroRowsIsEmptyNotError(t *testing.T) {
	t.Parallel()

	for _, stdout := range []string{"", "[]"} {
		runner := &fakeRunner{result: pwsh.Result{Stdout: stdout}}
		svc := &QueryService{Runner: runner, Module: "PSFive9Admin"}
		got, err := svc.Fetch(context.Background(), testCreds)
		if err != nil {
			t.Fatalf("Fetch(%q) returned error: %v", stdout, err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("Fetch(%q) = %#v, want empty slice", stdout, got)
		}
	}
}

func TestFetchKeepsCredentialsOutOfScript(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{Stdout: `[{"Name":"A","State":"Running","Type":"Inbound"}]`}}
	svc := &QueryService{Runner: runner, Module: "PSFive9Admin"}
	if _, err := svc.Fetch(context.Background(), testCreds); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one invocation, got %d", len(runner.calls))
	}
	req := runner.calls[0]
	if strings.Contains(req.Script, testCreds.Password) || strings.Contains(req.Script, testCreds.Username) {
		t.Fatal("credentials leaked into script text")
	}
	if got := req.Env[EnvUsername]; got != testCreds.Username {
		t.Fatalf("unexpected username env: got %q", got)
	}
	if got := req.Env[EnvPassword]; got != testCreds.Password {
		t.Fatal("password env not passed through")
	}
	for _, want := range []string{"Connect-Five9AdminWebService", "Get-Five9Campaign -Type $t", "'Inbound','Outbound','AutoDial'", "Import-Module 'PSFive9Admin'"} {
		if !strings.Contains(req.Script, want) {
			t.Fatalf("expected script to contain %q:\n%s", want, req.Script)
		}
	}
	if !strings.HasSuffix(req.Script, "}\n\n") {
		t.Fatal("expected script to end with a terminated block")
	}
}

func TestFetchAuthenticationFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{
		ExitCode: 1,
		Stderr:   "Connect-Five9AdminWebService : (401) Unauthorized\nAt line:12 char:1",
	}}
	svc := &QueryService{Runner: runner}
	got, err := svc.Fetch(context.Background(), testCreds)
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no campaigns on auth failure, got %+v", got)
	}
	if authErr.Message != "Connect-Five9AdminWebService : (401) Unauthorized" {
		t.Fatalf("unexpected auth message %q", authErr.Message)
	}
}

func TestFetchClassifiesFailures(t *testing.T) {
	t.Parallel()

	timedOut := &QueryService{Runner: &fakeRunner{result: pwsh.Result{TimedOut: true, ExitCode: -1}}}
	if _, err := timedOut.Fetch(context.Background(), testCreds); !errors.Is(err, pwsh.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	generic := &QueryService{Runner: &fakeRunner{result: pwsh.Result{Stderr: "The term 'Get-Five9Campaign' is not recognized"}}}
	_, err := generic.Fetch(context.Background(), testCreds)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}

	launch := &QueryService{Runner: &fakeRunner{err: &pwsh.ProcessLaunchError{Binary: "pwsh", Err: errors.New("not found")}}}
	_, err = launch.Fetch(context.Background(), testCreds)
	var launchErr *pwsh.ProcessLaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected ProcessLaunchError, got %v", err)
	}

	malformed := &QueryService{Runner: &fakeRunner{result: pwsh.Result{Stdout: "WARNING: not json"}}}
	if _, err := malformed.Fetch(context.Background(), testCreds); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFetchRequiresCredentials(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc := &QueryService{Runner: runner}
	if _, err := svc.Fetch(context.Background(), credentials.Credentials{Username: "admin"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("expected no invocation without credentials")
	}
}

func TestApplyPartialFailurePreservesOrder(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{Stdout: `[
		{"Name":"D","Success":true,"Error":null},
		{"Name":"A","Success":true,"Error":null},
		{"Name":"B","Success":false,"Error":"Campaign is already running"}
	]`}}
	svc := &ActionService{Runner: runner, Module: "PSFive9Admin"}

	got, err := svc.Apply(context.Background(), testCreds, []string{"A", "B", "C", "D"}, ActionStart)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	want := []ActionResult{
		{CampaignID: "A", CampaignName: "A", Action: ActionStart, Outcome: OutcomeSuccess},
		{CampaignID: "B", CampaignName: "B", Action: ActionStart, Outcome: OutcomeFailure, Message: "Campaign is already running"},
		{CampaignID: "C", CampaignName: "C", Action: ActionStart, Outcome: OutcomeFailure, Message: missingResultMessage},
		{CampaignID: "D", CampaignName: "D", Action: ActionStart, Outcome: OutcomeSuccess},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected results (-want +got):\n%s", diff)
	}
	if ok, failed := Summarize(got); ok != 2 || failed != 2 {
		t.Fatalf("unexpected summary ok=%d failed=%d", ok, failed)
	}
}

func TestApplySingleResultObject(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{Stdout: `{"Name":"Sales","Success":true,"Error":null}`}}
	svc := &ActionService{Runner: runner}
	got, err := svc.Apply(context.Background(), testCreds, []string{"Sales"}, ActionStop)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(got) != 1 || !got[0].Succeeded() || got[0].Action != ActionStop {
		t.Fatalf("unexpected results %+v", got)
	}
	if !strings.Contains(runner.calls[0].Script, "Stop-Five9Campaign -Force $true -Name $campaign") {
		t.Fatalf("expected forced stop command in script:\n%s", runner.calls[0].Script)
	}
}

func TestApplyMatchesListValuedNames(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{Stdout: `{"Name":["A"],"Success":true,"Error":null}`}}
	svc := &ActionService{Runner: runner}
	got, err := svc.Apply(context.Background(), testCreds, []string{"A"}, ActionStart)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	want := []ActionResult{{CampaignID: "A", CampaignName: "A", Action: ActionStart, Outcome: OutcomeSuccess}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected results (-want +got):\n%s", diff)
	}
	script := runner.calls[0].Script
	if strings.Contains(script, "@(ConvertFrom-Json") {
		t.Fatalf("decoded campaign list must not be wrapped in an array:\n%s", script)
	}
	if !strings.Contains(script, "$campaigns = ConvertFrom-Json '[\"A\"]'") {
		t.Fatalf("expected campaign list assignment in script:\n%s", script)
	}
}

func TestApplyToKeysResultsBySnapshotID(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{Stdout: `[
		{"Name":"Support","Success":false,"Error":"Campaign is stopping"},
		{"Name":"Sales","Success":true,"Error":null}
	]`}}
	svc := &ActionService{Runner: runner}
	targets := []Campaign{
		{ID: "1001", Name: "Sales"},
		{ID: "1002", Name: "Support"},
		{ID: "1003"},
	}
	got, err := svc.ApplyTo(context.Background(), testCreds, targets, ActionStop)
	if err != nil {
		t.Fatalf("ApplyTo returned error: %v", err)
	}
	want := []ActionResult{
		{CampaignID: "1001", CampaignName: "Sales", Action: ActionStop, Outcome: OutcomeSuccess},
		{CampaignID: "1002", CampaignName: "Support", Action: ActionStop, Outcome: OutcomeFailure, Message: "Campaign is stopping"},
		{CampaignID: "1003", CampaignName: "1003", Action: ActionStop, Outcome: OutcomeFailure, Message: missingResultMessage},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected results (-want +got):\n%s", diff)
	}
	if got[1].DisplayName() != "Support" {
		t.Fatalf("expected display name Support, got %q", got[1].DisplayName())
	}
	if !strings.Contains(runner.calls[0].Script, `ConvertFrom-Json '["Sales","Support","1003"]'`) {
		t.Fatalf("expected campaign names in script:\n%s", runner.calls[0].Script)
	}
}

func TestApplyEscapesCampaignNames(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{Stdout: "[]"}}
	svc := &ActionService{Runner: runner}
	got, err := svc.Apply(context.Background(), testCreds, []string{"O'Brien Sales"}, ActionStart)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(got) != 1 || got[0].Outcome != OutcomeFailure {
		t.Fatalf("expected missing result to be a failure, got %+v", got)
	}
	if !strings.Contains(runner.calls[0].Script, `ConvertFrom-Json '["O''Brien Sales"]'`) {
		t.Fatalf("expected escaped campaign list in script:\n%s", runner.calls[0].Script)
	}
}

func TestApplyWholeBatchFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pwsh.Result{ExitCode: 1, Stderr: "Access is denied."}}
	svc := &ActionService{Runner: runner}
	_, err := svc.Apply(context.Background(), testCreds, []string{"A"}, ActionStop)
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}

func TestApplyEmptySelectionSkipsInvocation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc := &ActionService{Runner: runner}
	got, err := svc.Apply(context.Background(), testCreds, nil, ActionStart)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(got) != 0 || len(runner.calls) != 0 {
		t.Fatalf("expected no results and no invocation, got %+v calls=%d", got, len(runner.calls))
	}
}

func TestLooksLikeAuthFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stderr string
		want   bool
	}{
		{stderr: "The remote server returned an error: (401) Unauthorized.", want: true},
		{stderr: "Invalid username or password", want: true},
		{stderr: "User does not have permission to perform this operation", want: true},
		{stderr: "Response status code 401 returned by the admin web service", want: true},
		{stderr: "Permission denied for campaign Sales", want: true},
		{stderr: "Could not resolve host api.five9.com", want: false},
		{stderr: "Start-Five9Campaign : Campaign is already running\nAt line:401 char:5", want: false},
		{stderr: "Campaign Promo401 does not exist", want: false},
		{stderr: "Set-ExecutionPolicy: the permissions file is read-only", want: false},
		{stderr: "", want: false},
	}
	for _, tc := range tests {
		if got := looksLikeAuthFailure(tc.stderr); got != tc.want {
			t.Fatalf("looksLikeAuthFailure(%q) = %v, want %v", tc.stderr, got, tc.want)
		}
	}
}
