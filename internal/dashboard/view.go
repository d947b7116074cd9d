package dashboard

import (
	"net/http"
	"time"

	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/installer"
	"github.com/ccops/five9cm/internal/session"
)

// debugHistoryLimit caps the entries rendered in the debug console.
const debugHistoryLimit = 25

type pageData struct {
	Username       string
	HasCredentials bool
	Remember       bool

	Install installView
	Flashes []session.Flash

	HasSnapshot bool
	FetchedAt   time.Time
	All         []campaigns.Campaign
	Filters     []filterOption
	Filter      string
	Rows        []rowView
	Selected    int

	Confirmed     bool
	AutoRefresh   bool
	Action        string
	ActionLabel   string
	ActionEnabled bool

	LastStdout string
	LastStderr string
	History    []session.Entry
}

type installView struct {
	State     string
	Label     string
	Message   string
	JobID     string
	Running   bool
	Finished  bool
	StartedAt time.Time
	Version   string
	Error     string
}

type filterOption struct {
	Value   string
	Label   string
	Checked bool
}

type rowView struct {
	campaigns.Campaign
	Selected bool
}

func (h *Handler) buildPage(r *http.Request, sess *session.Session) pageData {
	view := sess.View()
	snapshot, fetchedAt, hasSnapshot := sess.Snapshot()

	data := pageData{
		Remember:    sess.Credentials.Remember(),
		Flashes:     sess.TakeFlashes(),
		HasSnapshot: hasSnapshot,
		FetchedAt:   fetchedAt,
		All:         snapshot,
		Filter:      string(view.Filter),
		Confirmed:   view.Confirmed,
		AutoRefresh: view.AutoRefresh,
		Action:      string(view.Filter.Action()),
		ActionLabel: view.Filter.Action().Label() + " Selected Campaigns",
	}
	if creds, ok := sess.Credentials.Get(); ok {
		data.Username = creds.Username
		data.HasCredentials = creds.Complete()
	}

	for _, f := range []campaigns.Filter{campaigns.FilterRunning, campaigns.FilterOtherwise} {
		data.Filters = append(data.Filters, filterOption{Value: string(f), Label: f.Label(), Checked: f == view.Filter})
	}

	selected := make(map[string]struct{}, len(view.Selected))
	for _, id := range view.Selected {
		selected[id] = struct{}{}
	}
	for _, c := range view.Filter.Apply(snapshot) {
		_, isSelected := selected[c.ID]
		if isSelected {
			data.Selected++
		}
		data.Rows = append(data.Rows, rowView{Campaign: c, Selected: isSelected})
	}
	data.ActionEnabled = session.ActionEnabled(session.ActionRequest{
		Filter:    view.Filter,
		Action:    view.Filter.Action(),
		Selected:  view.Selected,
		Confirmed: view.Confirmed,
	}) && data.Selected > 0

	data.Install = h.installView(r, sess)

	history := sess.DebugLog()
	if n := len(history); n > 0 {
		data.LastStdout = history[n-1].Stdout
		data.LastStderr = history[n-1].Stderr
	}
	for i := len(history) - 1; i >= 0 && len(data.History) < debugHistoryLimit; i-- {
		data.History = append(data.History, history[i])
	}
	return data
}

func (h *Handler) installView(r *http.Request, sess *session.Session) installView {
	st, err := h.service.InstallStatus(r.Context())
	if err != nil {
		h.logger.Warn("load install status", "session_id", sess.ID, "err", err)
		return installView{State: string(installer.StateNotStarted), Label: "Unknown", Error: err.Error()}
	}
	return installView{
		State:     string(st.State),
		Label:     st.State.Label(),
		Message:   st.Message,
		JobID:     st.JobID,
		Running:   st.State == installer.StateRunning,
		Finished:  st.State.Terminal(),
		StartedAt: st.StartedAt,
		Version:   st.ModuleVersion,
	}
}
