package provider

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"LocMock/internal/model"
)

// logFixEvery is how many fixes pass between two debug lines.
const logFixEvery = 100

// Log is a dry-run provider: it records fixes and logs the first one after
// each registration, then one line every logFixEvery fixes.
type Log struct {
	name     string
	identity model.Identity
	logger   *zap.Logger

	mu         sync.Mutex
	registered bool
	count      uint64
	since      uint64
	last       model.Fix
}

// NewLog creates a logging provider.
func NewLog(name string, identity model.Identity, logger *zap.Logger) *Log {
	return &Log{name: name, identity: identity, logger: logger.Named("log").With(zap.String("provider", name))}
}

// Name implements Provider.
func (l *Log) Name() string { return l.name }

// Identity implements Provider.
func (l *Log) Identity() model.Identity { return l.identity }

// Register implements Provider.
func (l *Log) Register(ctx context.Context) error {
	l.mu.Lock()
	l.registered = true
	l.since = 0
	l.mu.Unlock()
	return nil
}

// SetLocation implements Provider.
func (l *Log) SetLocation(ctx context.Context, fix model.Fix) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.registered {
		return ErrNotRegistered
	}
	l.count++
	l.since++
	l.last = fix
	if l.since == 1 || l.since%logFixEvery == 0 {
		l.logger.Debug("fix", zap.Float64("lat", fix.Lat), zap.Float64("lon", fix.Lon),
			zap.Float64("accuracy", fix.Accuracy), zap.Uint64("count", l.count))
	}
	return nil
}

// Unregister implements Provider.
func (l *Log) Unregister(ctx context.Context) error {
	l.mu.Lock()
	l.registered = false
	l.mu.Unlock()
	return nil
}

// Last returns the most recent fix and how many fixes were received.
func (l *Log) Last() (model.Fix, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.count
}
