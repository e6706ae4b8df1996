// Package app implements the HTTP control API of the LocMock daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"LocMock/internal/debuglog"
	"LocMock/internal/model"
)

// Simulator is the mock location control surface served by the API.
type Simulator interface {
	Start(ctx context.Context, target model.Coordinate, mode model.Mode) error
	Stop(ctx context.Context) error
	ToggleMode(ctx context.Context) (model.Mode, error)
	Retarget(ctx context.Context, target model.Coordinate) error
	Status() model.Status
	StatusLine() string
	CheckPermission(ctx context.Context) bool
	PermissionHint() string
}

// SessionHistory lists finished simulation sessions, newest first.
type SessionHistory interface {
	History(limit int) ([]model.Session, error)
}

// Options wires the API to the rest of the daemon.
type Options struct {
	Simulator Simulator
	Logs      *debuglog.Ring
	LogDir    string
	History   SessionHistory
	// Streams maps websocket provider names to their hubs.
	Streams map[string]http.Handler
	// Token, when set, is required as a bearer token on every request.
	Token  string
	Logger *zap.Logger
}

type App struct {
	opts    Options
	logger  *zap.Logger
	Mux     *http.ServeMux
	handler http.Handler

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewApp builds the API routes and middleware chain.
func NewApp(opts Options) (*App, error) {
	if opts.Simulator == nil {
		return nil, errors.New("[app] no simulator configured")
	}
	if opts.Logs == nil {
		opts.Logs = debuglog.New(debuglog.DefaultSize)
	}
	if opts.LogDir == "" {
		opts.LogDir = "logs"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	a := &App{
		opts:   opts,
		logger: opts.Logger.Named("app"),
		Mux:    http.NewServeMux(),
	}
	a.registerRoutes()
	a.handler = a.logRequests(a.requireToken(a.Mux))
	return a, nil
}

// Handler returns the routed handler with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Start launches the web server and blocks until stopped.
func (a *App) Start(addr string) error {
	if addr == "" {
		a.logger.Info("app server not started (empty address)")
		return nil
	}

	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.server = srv
	a.mu.Unlock()

	a.logger.Info("control API listening", zap.String("addr", addr))

	// Run server until Shutdown() is called
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("[app] HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the web server. A later Start does nothing.
func (a *App) Stop() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.stopped = true
	srv := a.server
	a.mu.Unlock()
	if srv == nil {
		return
	}
	a.logger.Info("shutting down web server")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
		return
	}
	a.logger.Info("web server stopped cleanly")
}
