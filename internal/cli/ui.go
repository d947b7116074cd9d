package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/controlservice"
	"github.com/ccops/five9cm/internal/endpoint"
	"github.com/ccops/five9cm/internal/installer"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

type startupHeader struct {
	Title  string
	Fields []startupField
}

type startupField struct {
	Key   string
	Value string
}

func renderStartupHeader(h startupHeader, color bool) string {
	title := strings.TrimSpace(h.Title)
	if title == "" {
		title = "five9cm"
	}

	var out strings.Builder
	icon := "☎"
	if color {
		icon = ansiWrap("1;33", icon)
		title = ansiWrap("1;36", title)
	}

	out.WriteByte('\n')
	out.WriteString(icon)
	out.WriteString(" ")
	out.WriteString(title)
	out.WriteByte('\n')

	for _, field := range h.Fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}

		line := fmt.Sprintf("%s: %s", key, value)
		if color {
			line = ansiWrap("38;5;252", line)
		}
		out.WriteString("   ")
		out.WriteString(line)
		out.WriteByte('\n')
	}
	out.WriteByte('\n')

	return out.String()
}

func renderDoctorReport(moduleName string, checks []controlservice.DoctorCheck, color bool) string {
	name := strings.TrimSpace(moduleName)
	if name == "" {
		name = "unknown module"
	}

	var out strings.Builder
	title := fmt.Sprintf("doctor report (%s)", name)
	if color {
		title = ansiWrap("1;36", title)
	}
	out.WriteString(title)
	out.WriteByte('\n')

	counts := map[string]int{}
	for _, check := range checks {
		status := normalizeDoctorStatus(check.Status)
		counts[status]++

		icon := "?"
		code := "1;37"
		switch status {
		case "pass":
			icon, code = "✓", "1;32"
		case "warn":
			icon, code = "!", "1;33"
		case "fail":
			icon, code = "✗", "1;31"
		}
		statusBlock := fmt.Sprintf("%s [%s]", icon, status)
		if color {
			statusBlock = ansiWrap(code, statusBlock)
		}

		checkName := strings.TrimSpace(check.Name)
		if checkName == "" {
			checkName = "unnamed_check"
		}
		message := strings.TrimSpace(check.Message)
		if message == "" {
			message = "(no message)"
		}
		fmt.Fprintf(&out, "%s %s: %s\n", statusBlock, checkName, message)
	}

	summary := fmt.Sprintf("summary: %d pass, %d warn, %d fail", counts["pass"], counts["warn"], counts["fail"])
	if color {
		summary = ansiWrap("38;5;246", summary)
	}
	out.WriteString(summary)
	out.WriteByte('\n')

	return out.String()
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	runningStyle = cellStyle.Foreground(lipgloss.Color("48"))
	stoppedStyle = cellStyle.Foreground(lipgloss.Color("246"))
	failedStyle  = cellStyle.Foreground(lipgloss.Color("203"))
)

func newTable(color bool, headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	if !color {
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Padding(0, 1)
			}
			return cellStyle
		})
	}
	return t
}

// renderCampaignTable prints Name, State and Type in snapshot order.
func renderCampaignTable(rows []controlapi.Campaign, color bool) string {
	t := newTable(color, "NAME", "STATE", "TYPE")
	for _, c := range rows {
		t.Row(c.Name, c.State, c.Type)
	}
	if color {
		t.StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1 && strings.EqualFold(rows[row].State, "running"):
				return runningStyle
			case col == 1:
				return stoppedStyle
			}
			return cellStyle
		})
	}
	return t.Render() + "\n"
}

func renderActionReport(res *controlapi.ApplyCampaignActionResponse, color bool) string {
	var out strings.Builder

	t := newTable(color, "CAMPAIGN", "ACTION", "RESULT", "MESSAGE")
	for _, r := range res.Results {
		name := r.CampaignName
		if name == "" {
			name = r.CampaignID
		}
		t.Row(name, r.Action, r.Outcome, r.Message)
	}
	if color {
		t.StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2 && res.Results[row].Outcome != "success":
				return failedStyle
			case col == 2:
				return runningStyle
			}
			return cellStyle
		})
	}
	out.WriteString(t.Render())
	out.WriteByte('\n')

	if msg := strings.TrimSpace(res.Message); msg != "" {
		out.WriteString(msg)
		out.WriteByte('\n')
	}
	summary := fmt.Sprintf("summary: %d succeeded, %d failed", res.Succeeded, res.Failed)
	if color {
		summary = ansiWrap("38;5;246", summary)
	}
	out.WriteString(summary)
	out.WriteByte('\n')

	if res.RefreshError != "" {
		fmt.Fprintf(&out, "refresh failed: %s\n", res.RefreshError)
	} else if len(res.Campaigns) > 0 {
		out.WriteString("\ncampaigns after refresh:\n")
		out.WriteString(renderCampaignTable(res.Campaigns, color))
	}
	return out.String()
}

func renderInstallStatus(st controlapi.InstallStatus, color bool) string {
	var out strings.Builder
	state := installer.State(st.State).Label()
	if color {
		code := "1;37"
		switch installer.State(st.State) {
		case installer.StateSucceeded:
			code = "1;32"
		case installer.StateFailed:
			code = "1;31"
		case installer.StateRunning:
			code = "1;33"
		}
		state = ansiWrap(code, state)
	}
	fmt.Fprintf(&out, "module install: %s\n", state)

	field := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(&out, "   %s: %s\n", key, value)
		}
	}
	field("job", st.JobID)
	field("started", formatStatusTime(st.StartedAt))
	field("finished", formatStatusTime(st.FinishedAt))
	field("version", st.ModuleVersion)
	field("message", st.Message)
	if installer.State(st.State).Terminal() {
		field("exit code", strconv.Itoa(st.ExitCode))
	}
	if stderr := strings.TrimSpace(st.Stderr); stderr != "" {
		out.WriteString("   stderr:\n")
		for _, line := range strings.Split(stderr, "\n") {
			fmt.Fprintf(&out, "     %s\n", strings.TrimRight(line, "\r"))
		}
	}
	return out.String()
}

func formatStatusTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func writeStartupHeader(w io.Writer, h startupHeader, color bool) error {
	if w == nil {
		return nil
	}
	_, err := io.WriteString(w, renderStartupHeader(h, color))
	return err
}

func shouldShowStartupHeader(stderr *os.File) bool {
	if stderr == nil {
		return false
	}
	return term.IsTerminal(int(stderr.Fd()))
}

func shouldUseANSI(f *os.File) bool {
	if noColorRequested() {
		return false
	}
	if forceColorRequested() {
		return true
	}
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func applyPolishedLoggerStyles(logger *log.Logger, color bool) {
	if logger == nil || !color {
		return
	}

	styles := log.DefaultStyles()
	styles.Message = styles.Message.Foreground(lipgloss.Color("252"))
	styles.Key = styles.Key.Bold(true).Foreground(lipgloss.Color("75"))
	styles.Value = styles.Value.Foreground(lipgloss.Color("255"))
	styles.Separator = styles.Separator.Foreground(lipgloss.Color("240"))
	styles.Levels[log.DebugLevel] = styles.Levels[log.DebugLevel].Bold(true).Foreground(lipgloss.Color("45"))
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].Bold(true).Foreground(lipgloss.Color("48"))
	styles.Levels[log.WarnLevel] = styles.Levels[log.WarnLevel].Bold(true).Foreground(lipgloss.Color("214"))
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].Bold(true).Foreground(lipgloss.Color("203"))
	logger.SetStyles(styles)
}

func endpointDisplay(ep endpoint.Endpoint) string {
	switch ep.Scheme {
	case "unix":
		return "unix://" + ep.Address
	case "tsnet":
		host := strings.TrimSpace(ep.TSNetHostname)
		if host == "" {
			host = endpoint.DefaultTSNetHostname
		}
		if ep.TSNetPort > 0 {
			return fmt.Sprintf("tsnet://%s:%d", host, ep.TSNetPort)
		}
		return "tsnet://" + host
	default:
		if ep.BaseURL != "" {
			return ep.BaseURL
		}
		return ep.Address
	}
}

// dashboardURL is the address to open in a browser, empty for unix sockets.
func dashboardURL(ep endpoint.Endpoint) string {
	if ep.Scheme == "unix" {
		return ""
	}
	base := strings.TrimRight(ep.BaseURL, "/")
	for _, wildcard := range []string{"0.0.0.0", "[::]"} {
		base = strings.Replace(base, "://"+wildcard+":", "://localhost:", 1)
	}
	return base + "/"
}

func effectiveLogLevel(rawLevel string) string {
	level := strings.TrimSpace(strings.ToLower(rawLevel))
	if level == "" {
		return "info"
	}
	return level
}

func noColorRequested() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return strings.TrimSpace(os.Getenv("CLICOLOR")) == "0"
}

func forceColorRequested() bool {
	value := strings.TrimSpace(os.Getenv("CLICOLOR_FORCE"))
	if value == "" {
		return false
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed != 0
	}
	return true
}

func ansiWrap(code, value string) string {
	return "\x1b[" + code + "m" + value + "\x1b[0m"
}

func normalizeDoctorStatus(raw string) string {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "pass", "ok", "success":
		return "pass"
	case "warn", "warning":
		return "warn"
	case "fail", "failed", "error":
		return "fail"
	default:
		return "unknown"
	}
}
