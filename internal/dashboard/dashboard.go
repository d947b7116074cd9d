// Package dashboard serves the single-page campaign manager UI.
package dashboard

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/controlservice"
	"github.com/ccops/five9cm/internal/credentials"
	"github.com/ccops/five9cm/internal/ids"
	"github.com/ccops/five9cm/internal/installer"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/ccops/five9cm/internal/session"
	"github.com/charmbracelet/log"
)

//go:embed templates/dashboard.gohtml
var templateFS embed.FS

const (
	CookieName  = "five9cm_session"
	csvFileName = "five9_campaigns_filtered.csv"
)

type Handler struct {
	service  *controlservice.Service
	sessions *session.Store
	logger   *log.Logger
	page     *template.Template
}

func New(service *controlservice.Service, sessions *session.Store, logger *log.Logger) (*Handler, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	page, err := template.New("dashboard.gohtml").Funcs(template.FuncMap{
		"duration": formatDuration,
		"when":     formatTime,
	}).ParseFS(templateFS, "templates/dashboard.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}
	return &Handler{service: service, sessions: sessions, logger: logger, page: page}, nil
}

// Register mounts the dashboard routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /campaigns.csv", h.handleCSV)
	mux.Handle("POST /view", h.mutating(h.handleView))
	mux.Handle("POST /credentials/clear", h.mutating(h.handleClearCredentials))
	mux.Handle("POST /fetch", h.mutating(h.handleFetch))
	mux.Handle("POST /action", h.mutating(h.handleAction))
	mux.Handle("POST /install", h.mutating(h.handleInstall))
	mux.Handle("POST /install/check", h.mutating(h.handleCheckInstall))
	mux.Handle("POST /install/reset", h.mutating(h.handleResetInstall))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// mutating resolves the session, applies its rate limit and saves the
// common form fields before calling next. Every mutating route ends in a
// redirect back to the page.
func (h *Handler) mutating(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := h.session(w, r)
		if ok, delay := sess.Reserve(); !ok {
			h.logger.Warn("rate limit exceeded", "session_id", sess.ID, "path", r.URL.Path)
			w.Header().Set("Retry-After", retryAfterSeconds(delay))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		next(w, r, sess)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

// sessionCookieID returns the session ID carried by r, or "" when the cookie
// is missing or was not minted as a session ID.
func sessionCookieID(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	id := strings.TrimSpace(c.Value)
	if !ids.HasPrefix(id, ids.PrefixSession) {
		return ""
	}
	return id
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, created := h.sessions.GetOrCreate(sessionCookieID(r))
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteStrictMode,
		})
	}
	return sess
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	data := h.buildPage(r, sess)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.page.Execute(w, data); err != nil {
		h.logger.Error("render dashboard", "err", err)
	}
}

// applyForm stores the view fields every form post carries.
func applyForm(r *http.Request, sess *session.Session) {
	sess.Credentials.SetRemember(r.PostForm.Get("remember") == "on")
	filter, err := campaigns.ParseFilter(r.PostForm.Get("filter"))
	if err != nil {
		filter = campaigns.FilterRunning
	}
	sess.UpdateView(func(v *session.View) {
		if v.Filter != filter {
			v.Selected = nil
		} else {
			v.Selected = append([]string(nil), r.PostForm["campaign"]...)
		}
		v.Filter = filter
		v.Confirmed = r.PostForm.Get("confirm") == "on"
		v.AutoRefresh = r.PostForm.Get("auto_refresh") == "on"
	})
}

// formCredentials resolves the pair for this request from the form or the
// session holder.
func formCredentials(r *http.Request, sess *session.Session) (credentials.Credentials, bool) {
	return sess.Credentials.Resolve(r.PostForm.Get("username"), r.PostForm.Get("password"))
}

func (h *Handler) handleView(_ http.ResponseWriter, r *http.Request, sess *session.Session) {
	applyForm(r, sess)
}

func (h *Handler) handleClearCredentials(_ http.ResponseWriter, r *http.Request, sess *session.Session) {
	applyForm(r, sess)
	sess.Credentials.Clear()
	sess.AddFlash(session.FlashInfo, "Cached credentials cleared.")
}

func (h *Handler) handleFetch(_ http.ResponseWriter, r *http.Request, sess *session.Session) {
	applyForm(r, sess)
	creds, ok := formCredentials(r, sess)
	if !ok {
		sess.AddFlash(session.FlashError, "Enter username and password before fetching campaigns.")
		return
	}
	defer sess.Credentials.Release()

	rows, err := h.service.FetchCampaigns(r.Context(), sess, creds)
	if err != nil {
		h.flashError(sess, "Failed to fetch campaigns.", err)
		return
	}
	if len(rows) == 0 {
		sess.AddFlash(session.FlashWarning, "No campaigns returned.")
		return
	}
	sess.AddFlash(session.FlashSuccess, fmt.Sprintf("Loaded %d campaigns.", len(rows)))
}

func (h *Handler) handleAction(_ http.ResponseWriter, r *http.Request, sess *session.Session) {
	applyForm(r, sess)
	action, err := campaigns.ParseAction(r.PostForm.Get("action"))
	if err != nil {
		sess.AddFlash(session.FlashError, err.Error())
		return
	}
	creds, ok := formCredentials(r, sess)
	if !ok {
		sess.AddFlash(session.FlashError, "Enter username and password before running actions.")
		return
	}
	defer sess.Credentials.Release()

	view := sess.View()
	outcome, err := h.service.ApplyAction(r.Context(), sess, creds, session.ActionRequest{
		Filter:    view.Filter,
		Action:    action,
		Selected:  view.Selected,
		Confirmed: view.Confirmed,
	}, view.AutoRefresh)
	if err != nil {
		h.flashError(sess, "Action failed.", err)
		return
	}

	sess.UpdateView(func(v *session.View) {
		v.Selected = nil
		v.Confirmed = false
	})
	updated, failures := controlservice.Describe(outcome.Results)
	if updated != "" {
		sess.AddFlash(session.FlashSuccess, updated)
	}
	if len(failures) > 0 {
		sess.AddFlash(session.FlashError, "Failed campaigns:\n"+strings.Join(failures, "\n"))
	}
	if outcome.RefreshErr != nil {
		h.flashError(sess, "Refresh after action failed.", outcome.RefreshErr)
	}
}

func (h *Handler) handleInstall(_ http.ResponseWriter, r *http.Request, sess *session.Session) {
	applyForm(r, sess)
	_, err := h.service.StartInstall(r.Context())
	switch {
	case errors.Is(err, installer.ErrInstallRunning):
		sess.AddFlash(session.FlashWarning, "Install already in progress.")
	case errors.Is(err, installer.ErrResetRequired):
		sess.AddFlash(session.FlashWarning, "Install already finished. Clear the install status to run it again.")
	case err != nil:
		h.flashError(sess, "Could not start the module install.", err)
	default:
		sess.AddFlash(session.FlashInfo, "Install started in background. Click 'Check Installer Status' to view results.")
	}
}

func (h *Handler) handleCheckInstall(_ http.ResponseWriter, r *http.Request, sess *session.Session) {
	applyForm(r, sess)
	st, err := h.service.CheckInstall(r.Context(), sess)
	if err != nil {
		h.flashError(sess, "Could not check the installer status.", err)
		return
	}
	switch st.State {
	case installer.StateRunning:
		sess.AddFlash(session.FlashInfo, "Install still running...")
	case installer.StateSucceeded:
		sess.AddFlash(session.FlashSuccess, "Module installed/updated. Check Debug Console for details.")
	case installer.StateFailed:
		sess.AddFlash(session.FlashError, "Module install failed. Check Debug Console.")
	default:
		sess.AddFlash(session.FlashInfo, "No install has been started.")
	}
}

func (h *Handler) handleResetInstall(_ http.ResponseWriter, r *http.Request, sess *session.Session) {
	applyForm(r, sess)
	if _, err := h.service.ResetInstall(r.Context()); err != nil {
		if errors.Is(err, installer.ErrInstallRunning) {
			sess.AddFlash(session.FlashWarning, "Install still running; it cannot be cleared yet.")
			return
		}
		h.flashError(sess, "Could not clear the install status.", err)
		return
	}
	sess.AddFlash(session.FlashInfo, "Install status cleared.")
}

// flashError turns err into a user-facing message. Raw output stays in the
// debug console.
func (h *Handler) flashError(sess *session.Session, prefix string, err error) {
	var (
		authErr   *campaigns.AuthenticationError
		launchErr *pwsh.ProcessLaunchError
		cmdErr    *campaigns.CommandError
	)
	switch {
	case errors.Is(err, session.ErrBusy):
		sess.AddFlash(session.FlashWarning, "Another operation is still running. Wait for it to finish.")
	case errors.Is(err, campaigns.ErrMissingCredentials):
		sess.AddFlash(session.FlashError, "Enter username and password first.")
	case errors.Is(err, session.ErrNotConfirmed),
		errors.Is(err, session.ErrEmptySelection),
		errors.Is(err, session.ErrActionFilterMismatch),
		errors.Is(err, session.ErrUnknownCampaign):
		sess.AddFlash(session.FlashWarning, capitalize(err.Error())+".")
	case errors.As(err, &authErr):
		sess.AddFlash(session.FlashError, prefix+" Five9 rejected the credentials or the account lacks permission. Check Debug Console.")
	case errors.Is(err, pwsh.ErrTimeout):
		sess.AddFlash(session.FlashError, prefix+" PowerShell timed out; try again.")
	case errors.As(err, &launchErr):
		sess.AddFlash(session.FlashError, prefix+" PowerShell could not be started: "+launchErr.Err.Error())
	case errors.As(err, &cmdErr):
		sess.AddFlash(session.FlashError, prefix+" Check Debug Console.")
	default:
		sess.AddFlash(session.FlashError, prefix+" "+err.Error())
	}
	h.logger.Warn(strings.TrimSuffix(prefix, "."), "session_id", sess.ID, "err", err)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
