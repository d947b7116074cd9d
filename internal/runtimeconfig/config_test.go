package runtimeconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("FIVE9CM_CONFIG", "")
	configPath := filepath.Join(tmp, "five9cm", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FIVE9CM_CONFIG", "")

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("five9cm", "config.yaml")) {
		t.Fatalf("unexpected config path %q", path)
	}
	if got, want := cfg.Listen, DefaultListen; got != want {
		t.Fatalf("unexpected listen: got %q want %q", got, want)
	}
	if got, want := cfg.PowerShell.Timeout(), 120*time.Second; got != want {
		t.Fatalf("unexpected timeout: got %s want %s", got, want)
	}
	if !cfg.Dashboard.AutoRefreshEnabled() {
		t.Fatal("expected auto refresh to default on")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	writeConfig(t, `listen: http://0.0.0.0:9000
powershell:
  binary: /usr/bin/pwsh
  timeout_seconds: 30
dashboard:
  auto_refresh: false
  rate_burst: 2
`)

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := cfg.Listen, "http://0.0.0.0:9000"; got != want {
		t.Fatalf("unexpected listen: got %q want %q", got, want)
	}
	if got, want := cfg.PowerShell.Binary, "/usr/bin/pwsh"; got != want {
		t.Fatalf("unexpected binary: got %q want %q", got, want)
	}
	if got, want := cfg.PowerShell.Timeout(), 30*time.Second; got != want {
		t.Fatalf("unexpected timeout: got %s want %s", got, want)
	}
	if got, want := cfg.PowerShell.InstallTimeoutSeconds, int64(DefaultInstallTimeoutSeconds); got != want {
		t.Fatalf("unexpected install timeout: got %d want %d", got, want)
	}
	if cfg.Dashboard.AutoRefreshEnabled() {
		t.Fatal("expected auto refresh to be disabled")
	}
	if got, want := cfg.Dashboard.RateBurst, 2; got != want {
		t.Fatalf("unexpected burst: got %d want %d", got, want)
	}
	if got, want := cfg.Module.Name, DefaultModuleName; got != want {
		t.Fatalf("unexpected module name: got %q want %q", got, want)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	writeConfig(t, "listen: [unterminated\n")

	if _, _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPathHonoursExplicitEnv(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv("FIVE9CM_CONFIG", explicit)

	got, err := Path()
	if err != nil {
		t.Fatalf("Path returned error: %v", err)
	}
	if got != explicit {
		t.Fatalf("unexpected path: got %q want %q", got, explicit)
	}
}

func TestWriteRefusesOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "five9cm", "config.yaml")
	if err := Write(path, Default(), false); err != nil {
		t.Fatalf("first Write returned error: %v", err)
	}
	if err := Write(path, Default(), false); err == nil {
		t.Fatal("expected second Write without force to fail")
	}
	if err := Write(path, Default(), true); err != nil {
		t.Fatalf("forced Write returned error: %v", err)
	}

	t.Setenv("FIVE9CM_CONFIG", path)
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := cfg.Module.InstallerURL, DefaultInstallerURL; got != want {
		t.Fatalf("unexpected installer url after round trip: got %q want %q", got, want)
	}
}

func TestResolveStateDB(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "empty", value: "", want: ":memory:"},
		{name: "memory", value: "memory", want: ":memory:"},
		{name: "state", value: "state", want: filepath.Join("/tmp/state", "five9cm", "installer.db")},
		{name: "explicit", value: "/var/lib/five9cm/installer.db", want: "/var/lib/five9cm/installer.db"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := InstallerConfig{StateDB: tc.value}.ResolveStateDB()
			if err != nil {
				t.Fatalf("ResolveStateDB returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ResolveStateDB(%q) = %q, want %q", tc.value, got, tc.want)
			}
		})
	}
}
