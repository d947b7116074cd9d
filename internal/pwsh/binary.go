package pwsh

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveBinary returns the interpreter path Run would use.
func (p *Process) ResolveBinary() (string, error) {
	lookPath := p.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	stat := p.stat
	if stat == nil {
		stat = os.Stat
	}
	return resolveBinary(candidateBinaries(p.Binary, runtime.GOOS), lookPath, stat)
}

func candidateBinaries(configured, goos string) []string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return []string{trimmed}
	}
	if strings.EqualFold(strings.TrimSpace(goos), "windows") {
		return []string{"powershell.exe", "pwsh.exe"}
	}
	return []string{"pwsh", "powershell"}
}

func resolveBinary(
	candidates []string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
) (string, error) {
	if len(candidates) == 0 {
		return "", errors.New("no powershell binary candidates")
	}

	for _, candidate := range candidates {
		if filepath.IsAbs(candidate) {
			info, err := stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			return candidate, nil
		}
		if path, err := lookPath(candidate); err == nil {
			return path, nil
		}
	}

	if len(candidates) == 1 {
		return "", fmt.Errorf("%s not found", candidates[0])
	}
	return "", fmt.Errorf("none of %s found in PATH", strings.Join(candidates, ", "))
}
