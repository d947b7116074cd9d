package dashboard

import (
	"encoding/csv"
	"net/http"

	"github.com/ccops/five9cm/internal/campaigns"
)

// handleCSV downloads the rows visible under the requested (or current)
// filter.
func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	filter := sess.View().Filter
	if raw := r.URL.Query().Get("filter"); raw != "" {
		parsed, err := campaigns.ParseFilter(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = parsed
	}
	snapshot, _, _ := sess.Snapshot()
	if err := writeCSV(w, filter.Apply(snapshot)); err != nil {
		h.logger.Warn("write campaign csv", "session_id", sess.ID, "err", err)
	}
}

func writeCSV(w http.ResponseWriter, rows []campaigns.Campaign) error {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+csvFileName+`"`)

	out := csv.NewWriter(w)
	if err := out.Write([]string{"Name", "State", "Type"}); err != nil {
		return err
	}
	for _, c := range rows {
		if err := out.Write([]string{c.Name, c.State, c.Type}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
