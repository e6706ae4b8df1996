// Package model defines shared configuration structures used to initialize the LocMock daemon.
// It includes global settings and the list of mock-location providers to drive.
package model

import (
	"fmt"
	"time"
)

// Provider kinds understood by core.NewSystem.
const (
	KindADB       = "adb"
	KindNMEA      = "nmea"
	KindWebSocket = "websocket"
	KindTile38    = "tile38"
	KindLog       = "log"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Global    GlobalConfig     `yaml:"global"`
	Providers []ProviderConfig `yaml:"providers"`
}

// GlobalConfig defines daemon-wide settings.
type GlobalConfig struct {
	HTTPAddr  string    `yaml:"http_addr"`  // control API address (e.g. ":8765")
	APIToken  string    `yaml:"api_token"`  // optional bearer token for the control API
	Mode      string    `yaml:"mode"`       // initial mode (standard/enhanced)
	StatePath string    `yaml:"state_path"` // bbolt file holding the last session
	Resume    bool      `yaml:"resume"`     // restart the last session on boot
	Log       LogConfig `yaml:"log"`
}

// LogConfig controls the zap logger, its rotating file sink and the debug ring.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	RingSize   int    `yaml:"ring_size"`
	SaveDir    string `yaml:"save_dir"` // destination of POST /api/logs/save
}

// ProviderConfig defines a single mock-location provider back-end.
// Only the fields relevant to Kind are read.
type ProviderConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Identity string `yaml:"identity"` // gps or network

	// adb
	ADBPath string `yaml:"adb_path"`
	Serial  string `yaml:"serial"`

	// nmea
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`
	Virtual bool   `yaml:"virtual"` // create Device via socat, paired with Peer
	Peer    string `yaml:"peer"`

	// websocket
	Format string `yaml:"format"` // json or csv

	// tile38
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	Key       string `yaml:"key"`
	ObjectID  string `yaml:"object_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the tile38 dial/read timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// ApplyDefaults fills unset fields. With no providers configured a pair of
// log providers is installed so the engine still has a gps and a network sink.
func (c *Config) ApplyDefaults() {
	if c.Global.HTTPAddr == "" {
		c.Global.HTTPAddr = ":8765"
	}
	if c.Global.Mode == "" {
		c.Global.Mode = ModeStandard.String()
	}
	if c.Global.StatePath == "" {
		c.Global.StatePath = "tmp/locmock.db"
	}
	if c.Global.Log.Level == "" {
		c.Global.Log.Level = "info"
	}
	if c.Global.Log.MaxSizeMB <= 0 {
		c.Global.Log.MaxSizeMB = 10
	}
	if c.Global.Log.MaxBackups <= 0 {
		c.Global.Log.MaxBackups = 3
	}
	if c.Global.Log.RingSize <= 0 {
		c.Global.Log.RingSize = 200
	}
	if c.Global.Log.SaveDir == "" {
		c.Global.Log.SaveDir = "logs"
	}
	if len(c.Providers) == 0 {
		c.Providers = []ProviderConfig{
			{Name: "log-gps", Kind: KindLog, Identity: string(IdentityGPS)},
			{Name: "log-network", Kind: KindLog, Identity: string(IdentityNetwork)},
		}
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Identity == "" {
			p.Identity = string(IdentityGPS)
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("%s-%s", p.Kind, p.Identity)
		}
		if p.Baud == 0 {
			p.Baud = 9600
		}
		if p.Format == "" {
			p.Format = "json"
		}
		if p.Key == "" {
			p.Key = "locmock"
		}
		if p.ObjectID == "" {
			p.ObjectID = p.Name
		}
	}
}

// Validate reports configuration errors that would prevent the system from starting.
func (c *Config) Validate() error {
	if _, err := ParseMode(c.Global.Mode); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
		if _, err := ParseIdentity(p.Identity); err != nil {
			return fmt.Errorf("provider %s: %w", p.Name, err)
		}
		switch p.Kind {
		case KindADB, KindWebSocket, KindLog:
		case KindNMEA:
			if p.Device == "" {
				return fmt.Errorf("provider %s: nmea requires device", p.Name)
			}
			if p.Virtual && p.Peer == "" {
				return fmt.Errorf("provider %s: virtual nmea requires peer", p.Name)
			}
		case KindTile38:
			if p.Addr == "" {
				return fmt.Errorf("provider %s: tile38 requires addr", p.Name)
			}
		default:
			return fmt.Errorf("provider %s: unknown kind %q", p.Name, p.Kind)
		}
	}
	return nil
}
