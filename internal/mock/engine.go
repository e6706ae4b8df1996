// Package mock implements the location-mock execution engine and the
// manager that guards it.
//
// The Engine registers every configured provider, then pushes a synthetic fix
// to all of them on a fixed cadence until stopped. At most one loop runs at a
// time.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	geo "github.com/kellydunn/golang-geo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"LocMock/internal/model"
	"LocMock/internal/provider"
)

var (
	// ErrAlreadyRunning is returned by Start while a loop is active.
	ErrAlreadyRunning = errors.New("location mock already running")
	// ErrNotRunning is returned by Stop and Retarget while no loop is active.
	ErrNotRunning = errors.New("location mock not running")
)

// Fix construction constants.
const (
	// JitterDegrees bounds the enhanced-mode offset on each axis (about 5 m of latitude).
	JitterDegrees = 0.000045
	// StandardAccuracy is the accuracy reported in standard mode, in metres.
	StandardAccuracy = 10.0
	// MinEnhancedAccuracy and MaxEnhancedAccuracy bound the enhanced-mode accuracy, [min, max).
	MinEnhancedAccuracy = 5.0
	MaxEnhancedAccuracy = 15.0
	// NetworkAccuracyPenalty is added to the accuracy of network fixes.
	NetworkAccuracyPenalty = 5.0
)

// failures are logged on the first occurrence and then every logEvery ticks.
const logEvery = 100

// Engine runs the mock location loop.
type Engine struct {
	providers []provider.Provider
	clock     clock.Clock
	logger    *zap.Logger
	epoch     time.Time

	// life serializes Start and Stop; mu guards the state read by the loop.
	life sync.Mutex
	mu   sync.Mutex

	rng     *rand.Rand
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	session model.Session
	emitted uint64
	failed  uint64
	lastFix *model.Fix
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock driving the update ticker and fix timestamps.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithRand sets the jitter source.
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// NewEngine creates an idle engine feeding providers.
func NewEngine(providers []provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		providers: providers,
		clock:     clock.New(),
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	e.logger = e.logger.Named("engine")
	e.epoch = e.clock.Now()
	return e
}

// Providers returns the providers the engine feeds.
func (e *Engine) Providers() []provider.Provider { return e.providers }

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start registers all providers and starts the update loop for target.
// On a registration failure every provider registered so far is removed
// again and the error is returned; permission failures wrap
// provider.ErrPermissionDenied.
func (e *Engine) Start(ctx context.Context, target model.Coordinate, mode model.Mode) error {
	e.life.Lock()
	defer e.life.Unlock()

	if e.Running() {
		e.logger.Warn("location mock already running")
		return ErrAlreadyRunning
	}

	for i, p := range e.providers {
		if err := p.Register(ctx); err != nil {
			for _, r := range e.providers[:i] {
				if uerr := r.Unregister(ctx); uerr != nil {
					e.logger.Debug("rollback unregister failed", zap.String("provider", r.Name()), zap.Error(uerr))
				}
			}
			if errors.Is(err, provider.ErrPermissionDenied) {
				e.logger.Error("registering mock providers failed, check mock location permission",
					zap.String("provider", p.Name()), zap.Error(err))
			} else {
				e.logger.Error("registering mock providers failed", zap.String("provider", p.Name()), zap.Error(err))
			}
			return fmt.Errorf("register %s: %w", p.Name(), err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	// The ticker is created before the loop goroutine so no tick can be missed.
	ticker := e.clock.Ticker(mode.Interval())
	done := make(chan struct{})

	e.mu.Lock()
	e.session = model.Session{
		ID:        uuid.NewString(),
		Target:    target,
		Mode:      mode,
		StartedAt: e.clock.Now(),
	}
	e.running = true
	e.cancel = cancel
	e.done = done
	e.emitted = 0
	e.failed = 0
	e.lastFix = nil
	e.mu.Unlock()

	go e.loop(loopCtx, ticker, done)

	e.logger.Info("location mock started",
		zap.Float64("lat", target.Lat), zap.Float64("lon", target.Lon),
		zap.Stringer("mode", mode), zap.Duration("interval", mode.Interval()))
	return nil
}

// Stop cancels the loop, waits for it to exit and unregisters all providers.
// The engine is stopped even when unregistering fails; the returned error
// then reports those failures.
func (e *Engine) Stop(ctx context.Context) error {
	e.life.Lock()
	defer e.life.Unlock()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.logger.Warn("location mock not running")
		return ErrNotRunning
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done

	var err error
	for _, p := range e.providers {
		if uerr := p.Unregister(ctx); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("unregister %s: %w", p.Name(), uerr))
		}
	}

	e.mu.Lock()
	e.running = false
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("location mock stopped with unregister errors", zap.Error(err))
		return err
	}
	e.logger.Info("location mock stopped")
	return nil
}

// Retarget moves the target of the running loop. The next tick uses it.
func (e *Engine) Retarget(target model.Coordinate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.session.Target = target
	e.logger.Info("target moved", zap.Float64("lat", target.Lat), zap.Float64("lon", target.Lon))
	return nil
}

// Session returns the current (or last) session.
func (e *Engine) Session() model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() model.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := model.Status{
		Running:   e.running,
		Mode:      e.session.Mode,
		Emitted:   e.emitted,
		Failed:    e.failed,
		Providers: provider.Names(e.providers),
	}
	if !e.running {
		return st
	}
	target := e.session.Target
	st.SessionID = e.session.ID
	st.Target = &target
	st.StartedAt = e.session.StartedAt
	if e.lastFix != nil {
		last := *e.lastFix
		st.LastFix = &last
		st.DriftM = geo.NewPoint(target.Lat, target.Lon).GreatCircleDistance(geo.NewPoint(last.Lat, last.Lon)) * 1000
	}
	return st
}

func (e *Engine) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	failures := map[string]int{}
	e.emit(ctx, failures)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emit(ctx, failures)
		}
	}
}

// emit builds one fix and pushes it to every provider. A provider that lost
// its registration is registered again before the fix is retried once.
func (e *Engine) emit(ctx context.Context, failures map[string]int) {
	e.mu.Lock()
	base := e.nextFix(e.session.Target, e.session.Mode)
	e.mu.Unlock()

	var failed uint64
	for _, p := range e.providers {
		fix := ForIdentity(base, p.Identity())
		err := p.SetLocation(ctx, fix)
		if errors.Is(err, provider.ErrNotRegistered) && ctx.Err() == nil {
			e.logger.Info("provider dropped, registering again", zap.String("provider", p.Name()))
			if err = p.Register(ctx); err == nil {
				err = p.SetLocation(ctx, fix)
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failed++
			failures[p.Name()]++
			if n := failures[p.Name()]; n == 1 || n%logEvery == 0 {
				e.logger.Warn("set mock location failed",
					zap.String("provider", p.Name()), zap.Int("consecutive", n), zap.Error(err))
			}
			continue
		}
		failures[p.Name()] = 0
	}

	e.mu.Lock()
	e.emitted++
	e.failed += failed
	e.lastFix = &base
	e.mu.Unlock()
}

// nextFix builds the gps fix for the current tick. Callers hold e.mu.
func (e *Engine) nextFix(target model.Coordinate, mode model.Mode) model.Fix {
	now := e.clock.Now()
	f := model.Fix{
		Identity: model.IdentityGPS,
		Lat:      target.Lat,
		Lon:      target.Lon,
		Accuracy: StandardAccuracy,
		Time:     now,
		Elapsed:  now.Sub(e.epoch),
	}
	if mode == model.ModeEnhanced {
		f.Lat = clampLat(f.Lat + e.jitter())
		f.Lon = wrapLon(f.Lon + e.jitter())
		f.Accuracy = MinEnhancedAccuracy + e.rng.Float64()*(MaxEnhancedAccuracy-MinEnhancedAccuracy)
	}
	return f
}

// jitter returns an offset in [-JitterDegrees, JitterDegrees).
func (e *Engine) jitter() float64 {
	return (e.rng.Float64() - 0.5) * 2 * JitterDegrees
}

// ForIdentity derives the fix reported by a provider of the given identity.
// Network fixes are less accurate and carry no altitude, bearing or speed.
func ForIdentity(f model.Fix, id model.Identity) model.Fix {
	if id != model.IdentityNetwork {
		return f
	}
	f.Identity = model.IdentityNetwork
	f.Accuracy += NetworkAccuracyPenalty
	f.Altitude, f.Bearing, f.Speed = 0, 0, 0
	return f
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	if lon < -180 {
		return lon + 360
	}
	return lon
}
