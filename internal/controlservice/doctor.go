package controlservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ccops/five9cm/internal/installer"
	"github.com/ccops/five9cm/internal/pwsh"
)

type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // pass|warn|fail
	Message string `json:"message"`
}

type binaryResolver interface {
	ResolveBinary() (string, error)
}

const doctorProbeTimeout = 30 * time.Second

// Doctor checks the interpreter, the module and the install status.
func (s *Service) Doctor(ctx context.Context) []DoctorCheck {
	var checks []DoctorCheck

	if resolver, ok := s.Runner.(binaryResolver); ok {
		path, err := resolver.ResolveBinary()
		if err != nil {
			return append(checks, DoctorCheck{Name: "powershell_binary", Status: "fail", Message: err.Error()})
		}
		checks = append(checks, DoctorCheck{Name: "powershell_binary", Status: "pass", Message: path})
	}

	res, err := s.Runner.Run(ctx, pwsh.Request{
		Label:   "powershell version",
		Script:  pwsh.Block("$PSVersionTable.PSVersion.ToString()"),
		Timeout: doctorProbeTimeout,
	})
	switch {
	case err != nil:
		checks = append(checks, DoctorCheck{Name: "powershell_version", Status: "fail", Message: err.Error()})
		return checks
	case res.Failed():
		checks = append(checks, DoctorCheck{Name: "powershell_version", Status: "fail", Message: describeResult(res)})
		return checks
	default:
		checks = append(checks, DoctorCheck{Name: "powershell_version", Status: "pass", Message: "PowerShell " + strings.TrimSpace(res.Stdout)})
	}

	if s.Installer == nil {
		return checks
	}
	info, err := s.Installer.Probe(ctx)
	switch {
	case err != nil:
		checks = append(checks, DoctorCheck{Name: "module", Status: "fail", Message: err.Error()})
	case !info.Installed:
		checks = append(checks, DoctorCheck{Name: "module", Status: "warn", Message: fmt.Sprintf("%s is not installed; run `five9cm module install`", s.moduleName())})
	default:
		checks = append(checks, DoctorCheck{Name: "module", Status: "pass", Message: fmt.Sprintf("%s %s", info.Name, info.Version)})
	}

	st, err := s.Installer.Status(ctx)
	switch {
	case err != nil:
		checks = append(checks, DoctorCheck{Name: "install_status", Status: "warn", Message: err.Error()})
	case st.State == installer.StateFailed:
		checks = append(checks, DoctorCheck{Name: "install_status", Status: "warn", Message: "last install failed: " + st.Message})
	default:
		checks = append(checks, DoctorCheck{Name: "install_status", Status: "pass", Message: st.State.Label()})
	}
	return checks
}

func (s *Service) moduleName() string {
	if strings.TrimSpace(s.Module) == "" {
		return "PSFive9Admin"
	}
	return s.Module
}

func describeResult(res pwsh.Result) string {
	if res.TimedOut {
		return "timed out"
	}
	msg := strings.TrimSpace(res.Stderr)
	if idx := strings.IndexAny(msg, "\r\n"); idx >= 0 {
		msg = msg[:idx]
	}
	if msg == "" {
		return fmt.Sprintf("exit code %d", res.ExitCode)
	}
	return msg
}
