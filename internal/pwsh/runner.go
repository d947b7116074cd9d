// Package pwsh runs generated scripts through an external PowerShell
// interpreter and hands back the raw output. It does no parsing.
package pwsh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultTimeout        = 2 * time.Minute
	DefaultMaxOutputBytes = 4 * 1024 * 1024

	waitDelay = 2 * time.Second
)

// DefaultArgs runs the interpreter non-interactively and reads the script
// from stdin so neither the script nor its inputs show up in argv.
var DefaultArgs = []string{
	"-NoLogo",
	"-NoProfile",
	"-NonInteractive",
	"-ExecutionPolicy", "Bypass",
	"-Command", "-",
}

// ErrTimeout is returned by callers that convert a timed out Result into an error.
var ErrTimeout = errors.New("powershell invocation timed out")

// ProcessLaunchError means the interpreter itself could not be started.
type ProcessLaunchError struct {
	Binary string
	Err    error
}

func (e *ProcessLaunchError) Error() string {
	if e.Binary == "" {
		return fmt.Sprintf("start powershell: %v", e.Err)
	}
	return fmt.Sprintf("start powershell (%s): %v", e.Binary, e.Err)
}

func (e *ProcessLaunchError) Unwrap() error {
	return e.Err
}

type Request struct {
	// Label names the invocation in logs and the debug console.
	Label   string
	Script  string
	Env     map[string]string
	Timeout time.Duration
}

type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Failed reports whether the interpreter signalled failure through its exit
// status, stderr or a timeout.
func (r Result) Failed() bool {
	return r.TimedOut || r.ExitCode != 0 || strings.TrimSpace(r.Stderr) != ""
}

// Runner is the narrow seam between callers and the interpreter. A non-zero
// exit is a Result, not an error.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req Request) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Process runs scripts with a local interpreter binary.
type Process struct {
	// Binary overrides interpreter discovery when set.
	Binary         string
	Args           []string
	Timeout        time.Duration
	MaxOutputBytes int
	Logger         *log.Logger

	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
}

func (p *Process) Run(ctx context.Context, req Request) (Result, error) {
	binary, err := p.ResolveBinary()
	if err != nil {
		return Result{ExitCode: -1}, &ProcessLaunchError{Binary: strings.TrimSpace(p.Binary), Err: err}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := p.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	args := p.Args
	if args == nil {
		args = DefaultArgs
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: int64(maxOutput)}
	stderr := &limitedWriter{w: &stderrBuf, max: int64(maxOutput)}

	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Stdin = strings.NewReader(req.Script)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = mergeEnv(os.Environ(), req.Env)
	configureProcess(cmd)
	cmd.Cancel = func() error {
		return killProcessTree(cmd)
	}
	cmd.WaitDelay = waitDelay

	logger := p.Logger
	if logger != nil {
		logger.Debug("starting powershell", "label", req.Label, "binary", binary, "timeout", timeout)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return Result{ExitCode: -1}, ctx.Err()
		}
		return Result{ExitCode: -1}, &ProcessLaunchError{Binary: binary, Err: err}
	}
	waitErr := cmd.Wait()

	result := Result{
		Stdout:    strings.TrimSpace(stdoutBuf.String()),
		Stderr:    strings.TrimSpace(stderrBuf.String()),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(started),
	}

	switch {
	case ctx.Err() != nil:
		result.ExitCode = -1
		return result, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		result.TimedOut = true
		if logger != nil {
			logger.Warn("powershell timed out", "label", req.Label, "timeout", timeout)
		}
	case waitErr == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else if cmd.ProcessState != nil {
			result.ExitCode = cmd.ProcessState.ExitCode()
		} else {
			result.ExitCode = -1
			return result, fmt.Errorf("wait for %s: %w", binary, waitErr)
		}
	}

	if logger != nil {
		logger.Debug("powershell finished",
			"label", req.Label,
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut,
			"duration", result.Duration.Round(time.Millisecond),
		)
	}
	return result, nil
}

// EscapeLiteral escapes value for use inside a single-quoted PowerShell string.
func EscapeLiteral(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// Block wraps body in a script block invocation terminated by a blank line.
// The interpreter reading from stdin only executes a multi-line statement once
// it sees the blank line.
func Block(body string) string {
	return "& {\n" + strings.TrimRight(body, "\n") + "\n}\n\n"
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, override := extra[name]; override {
			continue
		}
		out = append(out, kv)
	}
	for _, key := range keys {
		out = append(out, key+"="+extra[key])
	}
	return out
}

type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
