package runtimeconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccops/five9cm/internal/paths"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen                = "http://127.0.0.1:8501"
	DefaultModuleName            = "PSFive9Admin"
	DefaultInstallerURL          = "https://raw.githubusercontent.com/Five9DeveloperProgram/PSFive9Admin/main/installer.ps1"
	DefaultTimeoutSeconds        = 120
	DefaultInstallTimeoutSeconds = 900
	DefaultMaxOutputBytes        = 4 * 1024 * 1024
	DefaultSessionTTLMinutes     = 60
	DefaultDebugLogLimit         = 200
	DefaultRateLimit             = 1.0
	DefaultRateBurst             = 5
)

type Config struct {
	Listen     string           `yaml:"listen,omitempty"`
	LogLevel   string           `yaml:"log_level,omitempty"`
	PowerShell PowerShellConfig `yaml:"powershell"`
	Module     ModuleConfig     `yaml:"module"`
	Installer  InstallerConfig  `yaml:"installer"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

type PowerShellConfig struct {
	Binary                string `yaml:"binary,omitempty"`
	TimeoutSeconds        int64  `yaml:"timeout_seconds,omitempty"`
	InstallTimeoutSeconds int64  `yaml:"install_timeout_seconds,omitempty"`
	MaxOutputBytes        int    `yaml:"max_output_bytes,omitempty"`
}

type ModuleConfig struct {
	Name         string `yaml:"name,omitempty"`
	InstallerURL string `yaml:"installer_url,omitempty"`
}

type InstallerConfig struct {
	// StateDB is empty for an in-memory store, "state" for the XDG state
	// directory, or an explicit sqlite file path.
	StateDB string `yaml:"state_db,omitempty"`
}

type DashboardConfig struct {
	SessionTTLMinutes int64   `yaml:"session_ttl_minutes,omitempty"`
	DebugLogLimit     int     `yaml:"debug_log_limit,omitempty"`
	AutoRefresh       *bool   `yaml:"auto_refresh,omitempty"`
	RateLimit         float64 `yaml:"rate_limit,omitempty"`
	RateBurst         int     `yaml:"rate_burst,omitempty"`
}

// Default returns a config with every optional field populated.
func Default() Config {
	autoRefresh := true
	return Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		PowerShell: PowerShellConfig{
			TimeoutSeconds:        DefaultTimeoutSeconds,
			InstallTimeoutSeconds: DefaultInstallTimeoutSeconds,
			MaxOutputBytes:        DefaultMaxOutputBytes,
		},
		Module: ModuleConfig{
			Name:         DefaultModuleName,
			InstallerURL: DefaultInstallerURL,
		},
		Dashboard: DashboardConfig{
			SessionTTLMinutes: DefaultSessionTTLMinutes,
			DebugLogLimit:     DefaultDebugLogLimit,
			AutoRefresh:       &autoRefresh,
			RateLimit:         DefaultRateLimit,
			RateBurst:         DefaultRateBurst,
		},
	}
}

func Path() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("FIVE9CM_CONFIG")); explicit != "" {
		return explicit, nil
	}
	base, err := paths.ConfigBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

func Load() (Config, string, error) {
	path, err := Path()
	if err != nil {
		return Config{}, "", err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), path, nil
		}
		return Config{}, path, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, path, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.withDefaults(), path, nil
}

// Write stores cfg at path, refusing to replace an existing file unless force is set.
func Write(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (c Config) withDefaults() Config {
	def := Default()
	c.Listen = strings.TrimSpace(c.Listen)
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.PowerShell.Binary = strings.TrimSpace(c.PowerShell.Binary)
	if c.PowerShell.TimeoutSeconds <= 0 {
		c.PowerShell.TimeoutSeconds = def.PowerShell.TimeoutSeconds
	}
	if c.PowerShell.InstallTimeoutSeconds <= 0 {
		c.PowerShell.InstallTimeoutSeconds = def.PowerShell.InstallTimeoutSeconds
	}
	if c.PowerShell.MaxOutputBytes <= 0 {
		c.PowerShell.MaxOutputBytes = def.PowerShell.MaxOutputBytes
	}
	if strings.TrimSpace(c.Module.Name) == "" {
		c.Module.Name = def.Module.Name
	}
	if strings.TrimSpace(c.Module.InstallerURL) == "" {
		c.Module.InstallerURL = def.Module.InstallerURL
	}
	if c.Dashboard.SessionTTLMinutes <= 0 {
		c.Dashboard.SessionTTLMinutes = def.Dashboard.SessionTTLMinutes
	}
	if c.Dashboard.DebugLogLimit <= 0 {
		c.Dashboard.DebugLogLimit = def.Dashboard.DebugLogLimit
	}
	if c.Dashboard.AutoRefresh == nil {
		c.Dashboard.AutoRefresh = def.Dashboard.AutoRefresh
	}
	if c.Dashboard.RateLimit <= 0 {
		c.Dashboard.RateLimit = def.Dashboard.RateLimit
	}
	if c.Dashboard.RateBurst <= 0 {
		c.Dashboard.RateBurst = def.Dashboard.RateBurst
	}
	return c
}

func (c PowerShellConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c PowerShellConfig) InstallTimeout() time.Duration {
	return time.Duration(c.InstallTimeoutSeconds) * time.Second
}

func (c DashboardConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c DashboardConfig) AutoRefreshEnabled() bool {
	return c.AutoRefresh == nil || *c.AutoRefresh
}

// ResolveStateDB maps the installer.state_db setting to a sqlite DSN.
func (c InstallerConfig) ResolveStateDB() (string, error) {
	value := strings.TrimSpace(c.StateDB)
	switch value {
	case "", ":memory:", "memory":
		return ":memory:", nil
	case "state":
		return paths.InstallerDBPath()
	default:
		return value, nil
	}
}
