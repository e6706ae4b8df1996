package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"LocMock/internal/model"
)

// Tile38 writes every fix as a POINT object into a Tile38 collection, so
// geofences and NEARBY queries see the mocked device.
type Tile38 struct {
	name     string
	identity model.Identity
	key      string
	id       string
	pool     *redis.Pool
	logger   *zap.Logger

	mu         sync.Mutex
	registered bool
}

// Tile38Option customizes a Tile38 provider.
type Tile38Option func(*redis.Pool)

// WithDial replaces the pool's dial function.
func WithDial(dial func() (redis.Conn, error)) Tile38Option {
	return func(p *redis.Pool) { p.Dial = dial }
}

// NewTile38 creates a Tile38 provider from its configuration.
func NewTile38(cfg model.ProviderConfig, logger *zap.Logger, opts ...Tile38Option) *Tile38 {
	timeout := cfg.Timeout()
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Addr,
				redis.DialPassword(cfg.Password),
				redis.DialConnectTimeout(timeout),
				redis.DialReadTimeout(timeout),
				redis.DialWriteTimeout(timeout))
		},
	}
	for _, o := range opts {
		o(pool)
	}
	return &Tile38{
		name:     cfg.Name,
		identity: model.Identity(cfg.Identity),
		key:      cfg.Key,
		id:       cfg.ObjectID,
		pool:     pool,
		logger:   logger.Named("tile38").With(zap.String("provider", cfg.Name)),
	}
}

// Name implements Provider.
func (t *Tile38) Name() string { return t.name }

// Identity implements Provider.
func (t *Tile38) Identity() model.Identity { return t.identity }

// Register verifies the server is reachable and accepts our credentials.
func (t *Tile38) Register(ctx context.Context) error {
	if err := t.ping(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.registered = true
	t.mu.Unlock()
	t.logger.Info("tile38 object registered", zap.String("key", t.key), zap.String("id", t.id))
	return nil
}

// SetLocation stores the fix as SET key id FIELD accuracy <m> POINT lat lon.
func (t *Tile38) SetLocation(ctx context.Context, fix model.Fix) error {
	t.mu.Lock()
	registered := t.registered
	t.mu.Unlock()
	if !registered {
		return ErrNotRegistered
	}
	_, err := t.do(ctx, "SET", t.key, t.id, "FIELD", "accuracy", fix.Accuracy, "POINT", fix.Lat, fix.Lon)
	return err
}

// Unregister deletes the object.
func (t *Tile38) Unregister(ctx context.Context) error {
	t.mu.Lock()
	t.registered = false
	t.mu.Unlock()
	_, err := t.do(ctx, "DEL", t.key, t.id)
	return err
}

// CheckPermission pings the server.
func (t *Tile38) CheckPermission(ctx context.Context) error {
	return t.ping(ctx)
}

// PermissionHint implements Hinter.
func (t *Tile38) PermissionHint() string {
	return "Check the tile38 password in the provider configuration"
}

// Close releases pooled connections.
func (t *Tile38) Close() error {
	return t.pool.Close()
}

func (t *Tile38) ping(ctx context.Context) error {
	_, err := t.do(ctx, "PING")
	return err
}

func (t *Tile38) do(ctx context.Context, cmd string, args ...any) (any, error) {
	conn, err := t.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("tile38 connect: %w", authErr(err))
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			t.logger.Debug("close tile38 conn", zap.Error(cerr))
		}
	}()
	reply, err := conn.Do(cmd, args...)
	if err != nil {
		return nil, fmt.Errorf("tile38 %s: %w", cmd, authErr(err))
	}
	return reply, nil
}

func authErr(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "NOAUTH") || strings.Contains(msg, "invalid password") || strings.Contains(msg, "WRONGPASS") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}
