package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"LocMock/internal/mock"
	"LocMock/internal/model"
	"LocMock/internal/parser"
	"LocMock/internal/provider"
)

// teardownTimeout bounds provider removal once it no longer follows the request.
const teardownTimeout = 10 * time.Second

// teardownContext outlives the client so a disconnect cannot leave a test
// provider registered on the device.
func teardownContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), teardownTimeout)
}

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// targetRequest accepts either lat/lon or a free-form "lat, lon" string.
type targetRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Coords   string   `json:"coords"`
	Enhanced *bool    `json:"enhanced"`
	Mode     string   `json:"mode"`
}

func (t targetRequest) target() (model.Coordinate, error) {
	if t.Coords != "" {
		c, err := parser.ParseCoordinates(t.Coords)
		if err != nil {
			return model.Coordinate{}, fmt.Errorf("%w: %v", mock.ErrInvalidCoordinate, err)
		}
		return c, nil
	}
	if t.Lat == nil || t.Lon == nil {
		return model.Coordinate{}, fmt.Errorf("%w: lat and lon are required", mock.ErrInvalidCoordinate)
	}
	return model.Coordinate{Lat: *t.Lat, Lon: *t.Lon}, nil
}

func (t targetRequest) mode(current model.Mode) (model.Mode, error) {
	switch {
	case t.Enhanced != nil && *t.Enhanced:
		return model.ModeEnhanced, nil
	case t.Enhanced != nil:
		return model.ModeStandard, nil
	case t.Mode != "":
		return model.ParseMode(t.Mode)
	}
	return current, nil
}

func decodeTarget(r *http.Request) (targetRequest, error) {
	var req targetRequest
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// handleStart starts a simulation at the requested target.
func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTarget(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	target, err := req.target()
	if err != nil {
		a.writeError(w, err)
		return
	}
	mode, err := req.mode(a.opts.Simulator.Status().Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := a.opts.Simulator.Start(r.Context(), target, mode); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeStatus(w)
}

// handleStop stops the running simulation.
func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := teardownContext(r)
	defer cancel()
	if err := a.opts.Simulator.Stop(ctx); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeStatus(w)
}

// handleMode toggles between standard and enhanced mode.
func (a *App) handleMode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := teardownContext(r)
	defer cancel()
	if _, err := a.opts.Simulator.ToggleMode(ctx); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeStatus(w)
}

// handleTarget moves the running simulation.
func (a *App) handleTarget(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTarget(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	target, err := req.target()
	if err == nil {
		err = a.opts.Simulator.Retarget(r.Context(), target)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeStatus(w)
}

// writeError maps simulation errors to HTTP status codes.
func (a *App) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, mock.ErrInvalidCoordinate):
		code = http.StatusBadRequest
	case errors.Is(err, mock.ErrAlreadyRunning), errors.Is(err, mock.ErrNotRunning):
		code = http.StatusConflict
	case errors.Is(err, provider.ErrPermissionDenied):
		code = http.StatusForbidden
		body.Hint = a.opts.Simulator.PermissionHint()
	}
	if code == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
