package app

import (
	"net/http"

	"go.uber.org/zap"

	"LocMock/internal/debuglog"
)

// handleLogs returns ring entries filtered by level, tag and q. With
// format=text the entries are rendered one per line.
func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries := a.opts.Logs.Query(q.Get("level"), q.Get("tag"), q.Get("q"))
	if q.Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, e := range entries {
			_, _ = w.Write([]byte(e.Format() + "\n"))
		}
		return
	}
	if entries == nil {
		entries = []debuglog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *App) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	a.opts.Logs.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Logs.Stats())
}

// handleSaveLogs appends the ring to the dated debug file.
func (a *App) handleSaveLogs(w http.ResponseWriter, r *http.Request) {
	path, err := a.opts.Logs.Save(a.opts.LogDir)
	if err != nil {
		a.logger.Error("saving debug log failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	a.logger.Info("debug log saved", zap.String("path", path))
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}
