package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "five9cm"

// StateBaseDir resolves the default base directory for five9cm state.
// Preference order:
// 1. $XDG_STATE_HOME/five9cm
// 2. ~/.local/state/five9cm
// 3. $XDG_RUNTIME_DIR/five9cm
func StateBaseDir() (string, error) {
	if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
		return filepath.Join(stateHome, appDir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
			return filepath.Join(runtimeDir, appDir), nil
		}
		return "", err
	}
	if home != "" {
		return filepath.Join(home, ".local", "state", appDir), nil
	}
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, appDir), nil
	}
	return "", errors.New("unable to resolve state directory from XDG state/runtime or home")
}

// InstallerDBPath is the on-disk location used when the installer status store
// is configured as "state".
func InstallerDBPath() (string, error) {
	base, err := StateBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "installer.db"), nil
}

func TSNetStateDir() (string, error) {
	base, err := StateBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "tsnet"), nil
}
