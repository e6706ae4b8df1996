// Package core is the orchestration layer of the LocMock daemon. It turns
// the YAML configuration into providers, the mock engine and manager, the
// session store and the control API, and manages their lifecycle.
package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"LocMock/internal/app"
	"LocMock/internal/debuglog"
	"LocMock/internal/mock"
	"LocMock/internal/model"
	"LocMock/internal/parser"
	"LocMock/internal/provider"
	"LocMock/internal/store"
)

// stopTimeout bounds provider teardown on shutdown.
const stopTimeout = 5 * time.Second

// LoadConfig reads the YAML configuration at cfgPath, fills in defaults and
// validates it.
func LoadConfig(cfgPath string) (*model.Config, error) {
	b, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	var cfg model.Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return &cfg, nil
}

// System manages lifecycle of the daemon components.
type System struct {
	cfg    *model.Config
	logger *zap.Logger

	Ring      *debuglog.Ring
	Providers []provider.Provider
	Streams   map[string]*provider.WebSocket
	Engine    *mock.Engine
	Manager   *mock.Manager
	Store     *store.Store
	App       *app.App

	started   bool
	startLock sync.Mutex
	serveErr  chan error
}

// NewSystem constructs every component described by cfg. Nothing is started.
func NewSystem(cfg *model.Config, logger *zap.Logger, ring *debuglog.Ring) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ring == nil {
		ring = debuglog.New(cfg.Global.Log.RingSize)
	}
	s := &System{
		cfg:     cfg,
		logger:  logger.Named("system"),
		Ring:    ring,
		Streams: make(map[string]*provider.WebSocket),
	}

	for _, pc := range cfg.Providers {
		p, err := s.buildProvider(pc, logger)
		if err != nil {
			return nil, err
		}
		s.Providers = append(s.Providers, p)
	}

	mode, err := model.ParseMode(cfg.Global.Mode)
	if err != nil {
		return nil, err
	}

	if cfg.Global.StatePath != "" {
		st, err := store.Open(cfg.Global.StatePath)
		if err != nil {
			s.closeProviders()
			return nil, err
		}
		s.Store = st
	}

	s.Engine = mock.NewEngine(s.Providers, mock.WithLogger(logger))
	var sessions mock.SessionStore
	var history app.SessionHistory
	if s.Store != nil {
		sessions, history = s.Store, s.Store
	}
	s.Manager = mock.NewManager(s.Engine, sessions, mode, logger)

	streams := make(map[string]http.Handler, len(s.Streams))
	for name, hub := range s.Streams {
		streams[name] = hub
	}
	s.App, err = app.NewApp(app.Options{
		Simulator: s.Manager,
		Logs:      ring,
		LogDir:    cfg.Global.Log.SaveDir,
		History:   history,
		Streams:   streams,
		Token:     cfg.Global.APIToken,
		Logger:    logger,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *System) buildProvider(pc model.ProviderConfig, logger *zap.Logger) (provider.Provider, error) {
	identity, err := model.ParseIdentity(pc.Identity)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
	}
	switch pc.Kind {
	case model.KindADB:
		return provider.NewADB(pc.Name, identity, provider.ExecRunner(pc.ADBPath, pc.Serial), logger), nil
	case model.KindNMEA:
		return provider.NewNMEA(pc, logger), nil
	case model.KindWebSocket:
		p, err := parser.New(pc.Format)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		hub := provider.NewWebSocket(pc.Name, identity, p, logger)
		s.Streams[pc.Name] = hub
		return hub, nil
	case model.KindTile38:
		return provider.NewTile38(pc, logger), nil
	case model.KindLog:
		return provider.NewLog(pc.Name, identity, logger), nil
	}
	return nil, fmt.Errorf("provider %s: unknown kind %q", pc.Name, pc.Kind)
}

// StartAll starts the control API in the background and, when configured,
// resumes the session left active by the previous run.
func (s *System) StartAll() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}

	s.serveErr = make(chan error, 1)
	go func() {
		if err := s.App.Start(s.cfg.Global.HTTPAddr); err != nil {
			s.logger.Error("control API stopped", zap.Error(err))
			s.serveErr <- err
		}
	}()

	if s.cfg.Global.Resume {
		if s.Manager.Resume(context.Background()) {
			s.logger.Info("previous session resumed", zap.String("status", s.Manager.StatusLine()))
		}
	}

	s.logger.Info("system started",
		zap.Strings("providers", provider.Names(s.Providers)),
		zap.Stringer("mode", s.Manager.Mode()))
	s.started = true
	return nil
}

// Errors reports a control API failure after StartAll.
func (s *System) Errors() <-chan error { return s.serveErr }

// StopAll stops the simulation, the control API and releases every resource.
// The persisted session is kept when resume is enabled so the next run picks
// it up again.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		s.close()
		return
	}

	if s.Manager.IsRunning() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		var err error
		if s.cfg.Global.Resume {
			// Stop the engine only; the manager would end the stored session.
			err = s.Engine.Stop(ctx)
		} else {
			err = s.Manager.Stop(ctx)
		}
		cancel()
		if err != nil {
			s.logger.Warn("stopping simulation failed", zap.Error(err))
		}
	}
	s.App.Stop()
	s.close()
	s.started = false
	s.logger.Info("system stopped")
}

func (s *System) close() {
	s.closeProviders()
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.logger.Warn("closing store failed", zap.Error(err))
		}
		s.Store = nil
	}
}

// closeProviders releases connections held by providers outside a session.
func (s *System) closeProviders() {
	var err error
	for _, p := range s.Providers {
		switch c := p.(type) {
		case *provider.WebSocket:
			c.Close()
		case *provider.Tile38:
			err = multierr.Append(err, c.Close())
		}
	}
	if err != nil {
		s.logger.Warn("closing providers failed", zap.Error(err))
	}
}
