package app

import "net/http"

type permissionResponse struct {
	Granted bool   `json:"granted"`
	Hint    string `json:"hint,omitempty"`
}

// handlePermission probes the providers for the access they need to mock
// locations and returns the steps to grant it when missing.
func (a *App) handlePermission(w http.ResponseWriter, r *http.Request) {
	resp := permissionResponse{Granted: a.opts.Simulator.CheckPermission(r.Context())}
	if !resp.Granted {
		resp.Hint = a.opts.Simulator.PermissionHint()
	}
	writeJSON(w, http.StatusOK, resp)
}
