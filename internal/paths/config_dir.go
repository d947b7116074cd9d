package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfigBaseDir returns $XDG_CONFIG_HOME/five9cm or ~/.config/five9cm.
func ConfigBaseDir() (string, error) {
	if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
		return filepath.Join(configHome, appDir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDir), nil
}

// TLSDir returns the default directory for dashboard TLS material.
func TLSDir() (string, error) {
	base, err := ConfigBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "tls"), nil
}
