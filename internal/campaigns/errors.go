package campaigns

import (
	"fmt"
	"strings"

	"github.com/ccops/five9cm/internal/pwsh"
)

// AuthenticationError means Five9 rejected the credentials or the account
// lacks permission for the requested operation.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "five9 authentication failed"
	}
	return "five9 authentication failed: " + e.Message
}

// CommandError is any other failed invocation.
type CommandError struct {
	Label    string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := firstLine(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s failed with exit code %d", e.Label, e.ExitCode)
	}
	return fmt.Sprintf("%s failed (exit code %d): %s", e.Label, e.ExitCode, msg)
}

// authMarkers are matched case-insensitively against stderr. Status codes
// are anchored to how the web client prints them so that line numbers and
// campaign names containing the digits do not match.
var authMarkers = []string{
	"(401)",
	"401 unauthorized",
	"status code 401",
	"unauthorized",
	"invalid username or password",
	"login failed",
	"authentication failed",
	"access is denied",
	"not authorized",
	"does not have permission",
	"permission denied",
	"insufficient permission",
}

func looksLikeAuthFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classify turns a failed Result into an error.
func classify(label string, res pwsh.Result) error {
	if res.TimedOut {
		return fmt.Errorf("%s: %w", label, pwsh.ErrTimeout)
	}
	if looksLikeAuthFailure(res.Stderr) {
		return &AuthenticationError{Message: firstLine(res.Stderr)}
	}
	return &CommandError{Label: label, ExitCode: res.ExitCode, Stderr: res.Stderr}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	return s
}
