// Package provider implements the mock-location back-ends the engine feeds.
// Each provider impersonates one location source identity (gps or network)
// towards some consumer: an Android device, a serial NMEA reader, websocket
// clients or a Tile38 server.
package provider

import (
	"context"
	"errors"
	"strings"

	"LocMock/internal/model"
)

var (
	// ErrPermissionDenied is returned when the consumer refuses mock locations
	// from this process (e.g. the mock location app is not selected on Android).
	ErrPermissionDenied = errors.New("mock location permission denied")
	// ErrNotRegistered is returned by SetLocation when the provider is not
	// (or no longer) registered with its consumer.
	ErrNotRegistered = errors.New("provider not registered")
)

// Provider is a test location provider registered with some consumer.
type Provider interface {
	// Name is the configured, unique provider name.
	Name() string
	// Identity is the location source this provider impersonates.
	Identity() model.Identity
	// Register installs the test provider. It is safe to call again after a
	// provider was dropped by the consumer.
	Register(ctx context.Context) error
	// SetLocation pushes one fix.
	SetLocation(ctx context.Context, fix model.Fix) error
	// Unregister removes the test provider.
	Unregister(ctx context.Context) error
}

// PermissionChecker is implemented by providers that can probe whether the
// consumer will accept mock locations without disturbing a running session.
type PermissionChecker interface {
	CheckPermission(ctx context.Context) error
}

// Hinter is implemented by providers that know how the user can grant the
// permission they need.
type Hinter interface {
	PermissionHint() string
}

// PermissionHint collects the distinct hints of ps, one per line.
func PermissionHint(ps []Provider) string {
	seen := map[string]bool{}
	var hints []string
	for _, p := range ps {
		h, ok := p.(Hinter)
		if !ok {
			continue
		}
		if s := h.PermissionHint(); s != "" && !seen[s] {
			seen[s] = true
			hints = append(hints, s)
		}
	}
	return strings.Join(hints, "\n")
}

// Names returns the provider names in order.
func Names(ps []Provider) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name()
	}
	return names
}
