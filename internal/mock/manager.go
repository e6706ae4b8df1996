package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"LocMock/internal/model"
	"LocMock/internal/parser"
	"LocMock/internal/provider"
)

// ErrInvalidCoordinate is returned for a target outside the WGS84 range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// SessionStore persists the active session so it can be resumed after a
// daemon restart.
type SessionStore interface {
	SaveSession(model.Session) error
	ActiveSession() (model.Session, bool, error)
	EndSession(stopped model.Session) error
}

// Manager guards the engine with state checks, the permission probe and
// session persistence.
type Manager struct {
	engine *Engine
	store  SessionStore
	logger *zap.Logger

	mu   sync.Mutex
	mode model.Mode
}

// NewManager creates a manager over engine. store may be nil.
func NewManager(engine *Engine, store SessionStore, mode model.Mode, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		engine: engine,
		store:  store,
		logger: logger.Named("manager"),
		mode:   mode,
	}
}

// Mode returns the mode used by the running loop, or the next start when idle.
func (m *Manager) Mode() model.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// IsRunning reports whether a simulation is active.
func (m *Manager) IsRunning() bool { return m.engine.Running() }

// permission probes every provider able to check its own access.
func (m *Manager) permission(ctx context.Context) error {
	var err error
	for _, p := range m.engine.Providers() {
		pc, ok := p.(provider.PermissionChecker)
		if !ok {
			continue
		}
		if perr := pc.CheckPermission(ctx); perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", p.Name(), perr))
		}
	}
	return err
}

// CheckPermission reports whether every provider may be driven.
func (m *Manager) CheckPermission(ctx context.Context) bool {
	if err := m.permission(ctx); err != nil {
		m.logger.Warn("permission check failed", zap.Error(err))
		return false
	}
	return true
}

// PermissionHint returns the steps that grant the missing permissions.
func (m *Manager) PermissionHint() string {
	return provider.PermissionHint(m.engine.Providers())
}

// Start validates target, checks permission and starts the engine.
func (m *Manager) Start(ctx context.Context, target model.Coordinate, mode model.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start(ctx, target, mode)
}

func (m *Manager) start(ctx context.Context, target model.Coordinate, mode model.Mode) error {
	if !parser.ValidateCoordinates(target.Lat, target.Lon) {
		m.logger.Error("invalid coordinates", zap.Float64("lat", target.Lat), zap.Float64("lon", target.Lon))
		return fmt.Errorf("%w: %s", ErrInvalidCoordinate, parser.FormatCoordinates(target.Lat, target.Lon))
	}
	if m.engine.Running() {
		m.logger.Warn("simulation already running")
		return ErrAlreadyRunning
	}
	if err := m.permission(ctx); err != nil {
		m.logger.Error("no mock location permission", zap.Error(err))
		return err
	}
	if err := m.engine.Start(ctx, target, mode); err != nil {
		return err
	}
	m.mode = mode
	m.save()
	m.logger.Info("simulation started",
		zap.String("target", parser.FormatCoordinates(target.Lat, target.Lon)),
		zap.Stringer("mode", mode))
	return nil
}

// StartMock is Start reduced to a success flag.
func (m *Manager) StartMock(ctx context.Context, lat, lon float64, enhanced bool) bool {
	mode := model.ModeStandard
	if enhanced {
		mode = model.ModeEnhanced
	}
	return m.Start(ctx, model.Coordinate{Lat: lat, Lon: lon}, mode) == nil
}

// Stop stops the engine and ends the persisted session. Unregister failures
// are logged; the simulation counts as stopped.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop(ctx)
}

func (m *Manager) stop(ctx context.Context) error {
	session := m.engine.Session()
	if err := m.engine.Stop(ctx); err != nil {
		if errors.Is(err, ErrNotRunning) {
			return err
		}
		m.logger.Warn("providers not removed cleanly", zap.Error(err))
	}
	if m.store != nil {
		session.StoppedAt = m.engine.clock.Now()
		if err := m.store.EndSession(session); err != nil {
			m.logger.Warn("ending session failed", zap.String("session", session.ID), zap.Error(err))
		}
	}
	m.logger.Info("simulation stopped", zap.String("session", session.ID))
	return nil
}

// StopMock is Stop reduced to a success flag.
func (m *Manager) StopMock(ctx context.Context) bool {
	return m.Stop(ctx) == nil
}

// ToggleMode flips the mode. A running simulation is restarted at the same
// target in the new mode.
func (m *Manager) ToggleMode(ctx context.Context) (model.Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.mode.Toggle()
	if !m.engine.Running() {
		m.mode = next
		m.logger.Info("mode changed", zap.Stringer("mode", next))
		return next, nil
	}
	target := m.engine.Session().Target
	if err := m.stop(ctx); err != nil {
		return m.mode, err
	}
	if err := m.start(ctx, target, next); err != nil {
		return m.mode, fmt.Errorf("restart in %s mode: %w", next, err)
	}
	return next, nil
}

// Retarget moves the running simulation to target.
func (m *Manager) Retarget(ctx context.Context, target model.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !parser.ValidateCoordinates(target.Lat, target.Lon) {
		return fmt.Errorf("%w: %s", ErrInvalidCoordinate, parser.FormatCoordinates(target.Lat, target.Lon))
	}
	if err := m.engine.Retarget(target); err != nil {
		return err
	}
	m.save()
	return nil
}

// Status returns the engine snapshot. When idle the mode is the one the next
// start will use.
func (m *Manager) Status() model.Status {
	st := m.engine.Status()
	if !st.Running {
		st.Mode = m.Mode()
	}
	return st
}

// StatusLine renders the status for humans.
func (m *Manager) StatusLine() string {
	st := m.Status()
	if !st.Running || st.Target == nil {
		return "not simulating"
	}
	return fmt.Sprintf("simulating: %s (%s mode)", parser.FormatCoordinates(st.Target.Lat, st.Target.Lon), st.Mode)
}

// Resume restarts the session left active by a previous run and moves that
// session into the history. It returns false when there was nothing to
// resume or the restart failed; the old session then stays active.
func (m *Manager) Resume(ctx context.Context) bool {
	if m.store == nil {
		return false
	}
	s, ok, err := m.store.ActiveSession()
	if err != nil {
		m.logger.Warn("loading session failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	m.logger.Info("resuming session", zap.String("session", s.ID),
		zap.String("target", parser.FormatCoordinates(s.Target.Lat, s.Target.Lon)))

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.start(ctx, s.Target, s.Mode); err != nil {
		m.logger.Warn("resume failed", zap.Error(err))
		return false
	}
	// the interrupted session ends where the resumed one begins
	s.StoppedAt = m.engine.Session().StartedAt
	if err := m.store.EndSession(s); err != nil {
		m.logger.Warn("ending session failed", zap.String("session", s.ID), zap.Error(err))
	}
	m.save()
	return true
}

func (m *Manager) save() {
	if m.store == nil {
		return
	}
	s := m.engine.Session()
	if err := m.store.SaveSession(s); err != nil {
		m.logger.Warn("saving session failed", zap.String("session", s.ID), zap.Error(err))
	}
}
