package app

import (
	"net/http"
	"sort"
)

// registerRoutes sets up all HTTP handlers for the application.
func (a *App) registerRoutes() {
	// Status and session history
	a.Mux.HandleFunc("GET /api/status", a.handleStatus)
	a.Mux.HandleFunc("GET /api/sessions", a.handleSessions)
	a.Mux.HandleFunc("GET /api/permission", a.handlePermission)

	// Simulation control
	a.Mux.HandleFunc("POST /api/mock/start", a.handleStart)
	a.Mux.HandleFunc("POST /api/mock/stop", a.handleStop)
	a.Mux.HandleFunc("POST /api/mock/mode", a.handleMode)
	a.Mux.HandleFunc("POST /api/mock/target", a.handleTarget)

	// Debug log ring
	a.Mux.HandleFunc("GET /api/logs", a.handleLogs)
	a.Mux.HandleFunc("DELETE /api/logs", a.handleClearLogs)
	a.Mux.HandleFunc("GET /api/logs/stats", a.handleLogStats)
	a.Mux.HandleFunc("POST /api/logs/save", a.handleSaveLogs)

	// Live fixes: /ws serves the first hub by name, /ws/{name} a specific one.
	if len(a.opts.Streams) == 0 {
		return
	}
	names := make([]string, 0, len(a.opts.Streams))
	for name := range a.opts.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	a.Mux.Handle("GET /ws", a.opts.Streams[names[0]])
	a.Mux.HandleFunc("GET /ws/{name}", func(w http.ResponseWriter, r *http.Request) {
		h, ok := a.opts.Streams[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}
