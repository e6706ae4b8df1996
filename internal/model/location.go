package model

import (
	"fmt"
	"strings"
	"time"
)

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Mode selects how the engine builds fixes and how often it pushes them.
type Mode int

const (
	// ModeStandard pushes the exact target every 100ms.
	ModeStandard Mode = iota
	// ModeEnhanced pushes a jittered target with dynamic accuracy every 50ms.
	ModeEnhanced
)

// Interval is the update cadence of the mode.
func (m Mode) Interval() time.Duration {
	if m == ModeEnhanced {
		return 50 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeEnhanced {
		return ModeStandard
	}
	return ModeEnhanced
}

func (m Mode) String() string {
	if m == ModeEnhanced {
		return "enhanced"
	}
	return "standard"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode parses "standard" or "enhanced" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "":
		return ModeStandard, nil
	case "enhanced":
		return ModeEnhanced, nil
	}
	return ModeStandard, fmt.Errorf("unknown mode %q", s)
}

// Identity names the kind of location source a provider impersonates.
type Identity string

// The two provider identities driven by the engine.
const (
	IdentityGPS     Identity = "gps"
	IdentityNetwork Identity = "network"
)

// ParseIdentity validates an identity string.
func ParseIdentity(s string) (Identity, error) {
	switch Identity(strings.ToLower(s)) {
	case IdentityGPS:
		return IdentityGPS, nil
	case IdentityNetwork:
		return IdentityNetwork, nil
	}
	return "", fmt.Errorf("unknown provider identity %q", s)
}

// Fix is one synthetic location report pushed to a provider.
type Fix struct {
	Identity Identity      `json:"provider"`
	Lat      float64       `json:"lat"`
	Lon      float64       `json:"lon"`
	Accuracy float64       `json:"accuracy"` // horizontal, metres
	Altitude float64       `json:"altitude"`
	Bearing  float64       `json:"bearing"`
	Speed    float64       `json:"speed"`
	Time     time.Time     `json:"time"`
	Elapsed  time.Duration `json:"elapsed_ns"` // monotonic time since the engine was created
}

// Coordinate returns the position of the fix.
func (f Fix) Coordinate() Coordinate { return Coordinate{Lat: f.Lat, Lon: f.Lon} }

// Status is a snapshot of the engine state.
type Status struct {
	Running   bool        `json:"running"`
	SessionID string      `json:"session_id,omitempty"`
	Target    *Coordinate `json:"target,omitempty"`
	Mode      Mode        `json:"mode"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	Emitted   uint64      `json:"emitted"`
	Failed    uint64      `json:"failed"`
	LastFix   *Fix        `json:"last_fix,omitempty"`
	DriftM    float64     `json:"drift_m"` // great-circle distance of LastFix from Target
	Providers []string    `json:"providers"`
}

// Session is the persisted description of a running simulation.
type Session struct {
	ID        string     `json:"id"`
	Target    Coordinate `json:"target"`
	Mode      Mode       `json:"mode"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt time.Time  `json:"stopped_at,omitempty"`
}
