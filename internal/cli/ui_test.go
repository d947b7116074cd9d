package cli

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/controlservice"
	"github.com/ccops/five9cm/internal/endpoint"
)

func TestRenderStartupHeaderPlain(t *testing.T) {
	out := renderStartupHeader(startupHeader{
		Title: "five9cm dashboard",
		Fields: []startupField{
			{Key: "open", Value: "http://127.0.0.1:8501/"},
			{Key: "module", Value: "PSFive9Admin"},
		},
	}, false)

	want := "\n☎ five9cm dashboard\n   open: http://127.0.0.1:8501/\n   module: PSFive9Admin\n\n"
	if out != want {
		t.Fatalf("unexpected header output:\n--- got ---\n%s--- want ---\n%s", out, want)
	}
}

func TestRenderStartupHeaderColorSkipsEmptyFields(t *testing.T) {
	out := renderStartupHeader(startupHeader{
		Fields: []startupField{
			{Key: "listen", Value: "unix:///tmp/five9cm.sock"},
			{Key: "open", Value: ""},
			{Key: "", Value: "ignored"},
		},
	}, true)
	plain := stripANSI(out)

	if !strings.Contains(out, "\x1b[") {
		t.Fatalf("expected ANSI escapes in color output: %q", out)
	}
	if !strings.Contains(plain, "☎ five9cm\n") {
		t.Fatalf("expected default title: %q", plain)
	}
	if strings.Contains(plain, "open:") || strings.Contains(plain, "ignored") {
		t.Fatalf("expected empty fields to be omitted: %q", plain)
	}
}

func TestRenderDoctorReport(t *testing.T) {
	checks := []controlservice.DoctorCheck{
		{Name: "runtime_config", Status: "pass", Message: "using /tmp/config.yaml"},
		{Name: "module", Status: "warn", Message: "PSFive9Admin is not installed"},
		{Name: "powershell_binary", Status: "error", Message: "pwsh not found"},
	}

	plain := renderDoctorReport("PSFive9Admin", checks, false)
	for _, want := range []string{
		"doctor report (PSFive9Admin)",
		"✓ [pass] runtime_config: using /tmp/config.yaml",
		"! [warn] module: PSFive9Admin is not installed",
		"✗ [fail] powershell_binary: pwsh not found",
		"summary: 1 pass, 1 warn, 1 fail",
	} {
		if !strings.Contains(plain, want) {
			t.Fatalf("missing %q in report:\n%s", want, plain)
		}
	}
	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("plain output should not contain ANSI escapes: %q", plain)
	}

	colored := renderDoctorReport("", checks, true)
	if !strings.Contains(colored, "\x1b[") {
		t.Fatalf("expected ANSI escapes in color output: %q", colored)
	}
	if !strings.Contains(stripANSI(colored), "doctor report (unknown module)") {
		t.Fatalf("expected fallback module name: %q", colored)
	}
}

func TestRenderCampaignTable(t *testing.T) {
	out := renderCampaignTable([]controlapi.Campaign{
		{ID: "Sales", Name: "Sales", State: "Running", Type: "Outbound"},
		{ID: "Support", Name: "Support", State: "NotRunning", Type: "Inbound"},
	}, false)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	header, first, second := -1, -1, -1
	for i, line := range lines {
		switch {
		case strings.Contains(line, "NAME") && strings.Contains(line, "STATE") && strings.Contains(line, "TYPE"):
			header = i
		case strings.Contains(line, "Sales") && strings.Contains(line, "Running") && strings.Contains(line, "Outbound"):
			first = i
		case strings.Contains(line, "Support") && strings.Contains(line, "NotRunning") && strings.Contains(line, "Inbound"):
			second = i
		}
	}
	if header < 0 || first < 0 || second < 0 || !(header < first && first < second) {
		t.Fatalf("unexpected table layout:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain table should not contain ANSI escapes: %q", out)
	}
}

func TestRenderActionReport(t *testing.T) {
	out := renderActionReport(&controlapi.ApplyCampaignActionResponse{
		Results: []controlapi.ActionResult{
			{CampaignID: "1001", CampaignName: "Sales", Action: "stop", Outcome: "success"},
			{CampaignID: "Support", Action: "stop", Outcome: "failure", Message: "Campaign is stopping"},
		},
		Succeeded:    1,
		Failed:       1,
		RefreshError: "powershell invocation timed out",
	}, false)

	for _, want := range []string{
		"CAMPAIGN", "RESULT",
		"Sales", "Support",
		"Campaign is stopping",
		"summary: 1 succeeded, 1 failed",
		"refresh failed: powershell invocation timed out",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in report:\n%s", want, out)
		}
	}
	if strings.Contains(out, "campaigns after refresh") {
		t.Fatalf("expected no refreshed table when the refresh failed:\n%s", out)
	}
	if strings.Contains(out, "1001") {
		t.Fatalf("expected the campaign name instead of its ID:\n%s", out)
	}
}

func TestRenderInstallStatus(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out := renderInstallStatus(controlapi.InstallStatus{
		State:         "succeeded",
		JobID:         "install_01h455vb4pex5vsknk084sn02q",
		StartedAt:     started,
		FinishedAt:    started.Add(time.Minute),
		ModuleVersion: "2.4.1",
		Message:       "PSFive9Admin 2.4.1 installed",
	}, false)

	for _, want := range []string{
		"module install: Succeeded",
		"job: install_01h455vb4pex5vsknk084sn02q",
		"version: 2.4.1",
		"exit code: 0",
		"started: ",
		"finished: ",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in status:\n%s", want, out)
		}
	}
	if strings.Contains(out, "stderr") {
		t.Fatalf("expected no stderr block:\n%s", out)
	}
}

func TestEndpointDisplayAndDashboardURL(t *testing.T) {
	tests := []struct {
		name    string
		ep      endpoint.Endpoint
		display string
		open    string
	}{
		{
			name:    "http",
			ep:      endpoint.Endpoint{Scheme: "http", Address: "127.0.0.1:8501", BaseURL: "http://127.0.0.1:8501"},
			display: "http://127.0.0.1:8501",
			open:    "http://127.0.0.1:8501/",
		},
		{
			name:    "wildcard",
			ep:      endpoint.Endpoint{Scheme: "https", Address: "0.0.0.0:8443", BaseURL: "https://0.0.0.0:8443"},
			display: "https://0.0.0.0:8443",
			open:    "https://localhost:8443/",
		},
		{
			name:    "unix",
			ep:      endpoint.Endpoint{Scheme: "unix", Address: "/tmp/five9cm.sock", BaseURL: "http://unix"},
			display: "unix:///tmp/five9cm.sock",
		},
		{
			name:    "tsnet",
			ep:      endpoint.Endpoint{Scheme: "tsnet", TSNetPort: 80, BaseURL: "http://five9cm:80"},
			display: "tsnet://five9cm:80",
			open:    "http://five9cm:80/",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := endpointDisplay(tc.ep); got != tc.display {
				t.Fatalf("endpointDisplay: got %q want %q", got, tc.display)
			}
			if got := dashboardURL(tc.ep); got != tc.open {
				t.Fatalf("dashboardURL: got %q want %q", got, tc.open)
			}
		})
	}
}

func stripANSI(value string) string {
	ansi := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	return ansi.ReplaceAllString(value, "")
}
