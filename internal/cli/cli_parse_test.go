package cli

import (
	"strings"
	"testing"
)

func TestCampaignActionRequiresCampaignArgs(t *testing.T) {
	for _, cmd := range []string{"start", "stop"} {
		t.Run(cmd, func(t *testing.T) {
			c := &CLI{}
			parser, err := newParser(c)
			if err != nil {
				t.Fatalf("create parser: %v", err)
			}
			_, err = parser.Parse([]string{"campaigns", cmd})
			if err == nil {
				t.Fatalf("expected parse error for campaigns %s without names", cmd)
			}
			if !strings.Contains(err.Error(), "<campaign>") {
				t.Fatalf("expected missing campaign parse error, got %v", err)
			}
		})
	}
}

func TestCampaignsStopParsesNamesAndFlags(t *testing.T) {
	t.Setenv("FIVE9CM_USERNAME", "")
	c := &CLI{}
	parser, err := newParser(c)
	if err != nil {
		t.Fatalf("create parser: %v", err)
	}

	if _, err := parser.Parse([]string{"campaigns", "stop", "-y", "-u", "admin", "--host", "http://127.0.0.1:8501", "Sales", "Support"}); err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	stop := c.Campaigns.Stop
	if !stop.Yes || stop.Username != "admin" || stop.Host != "http://127.0.0.1:8501" {
		t.Fatalf("unexpected flags: %+v", stop.CampaignActionFlags)
	}
	if got := strings.Join(stop.Names, ","); got != "Sales,Support" {
		t.Fatalf("unexpected names: %q", got)
	}
}

func TestCampaignsListFilterIsValidated(t *testing.T) {
	c := &CLI{}
	parser, err := newParser(c)
	if err != nil {
		t.Fatalf("create parser: %v", err)
	}
	if _, err := parser.Parse([]string{"campaigns", "list"}); err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if got, want := c.Campaigns.List.Filter, "all"; got != want {
		t.Fatalf("expected default filter %q, got %q", want, got)
	}

	c = &CLI{}
	parser, err = newParser(c)
	if err != nil {
		t.Fatalf("create parser: %v", err)
	}
	if _, err := parser.Parse([]string{"campaigns", "list", "--filter", "paused"}); err == nil {
		t.Fatal("expected parse error for unknown filter")
	}
}

func TestTLSInitParsesHosts(t *testing.T) {
	c := &CLI{}
	parser, err := newParser(c)
	if err != nil {
		t.Fatalf("create parser: %v", err)
	}
	if _, err := parser.Parse([]string{"tls", "init", "--host", "dash.example.com", "--host", "10.0.0.5", "--force"}); err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if got := strings.Join(c.TLS.Init.Hosts, ","); got != "dash.example.com,10.0.0.5" {
		t.Fatalf("unexpected hosts: %q", got)
	}
	if !c.TLS.Init.Force {
		t.Fatal("expected --force to be set")
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(exitCodeError{code: 3}); got != 3 {
		t.Fatalf("expected exit code 3, got %d", got)
	}
	if got := ExitCode(errString("boom")); got != 1 {
		t.Fatalf("expected exit code 1, got %d", got)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
