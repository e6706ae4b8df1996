package app

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"LocMock/internal/model"
)

type statusResponse struct {
	model.Status
	Line string `json:"line"`
}

func (a *App) writeStatus(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status: a.opts.Simulator.Status(),
		Line:   a.opts.Simulator.StatusLine(),
	})
}

// handleStatus returns the simulation snapshot.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeStatus(w)
}

// handleSessions lists finished sessions, newest first.
func (a *App) handleSessions(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		writeJSON(w, http.StatusOK, []model.Session{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	sessions, err := a.opts.History.History(limit)
	if err != nil {
		a.logger.Error("reading session history failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read sessions"})
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}
