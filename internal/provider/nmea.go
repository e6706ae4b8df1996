package provider

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"LocMock/internal/device"
	"LocMock/internal/model"
	"LocMock/internal/parser"
	"LocMock/internal/util"
)

// NMEA acts as a GPS receiver: every fix is written to a serial device as a
// $GPRMC/$GPGGA pair. With Virtual set the device is one end of a socat PTY
// pair and consumers read from Peer.
type NMEA struct {
	name     string
	identity model.Identity
	dev      string
	peer     string
	baud     int
	virtual  bool
	open     device.Opener
	logger   *zap.Logger

	mu    sync.Mutex
	d     device.Device
	socat *util.SocatManager
}

// NMEAOption customizes an NMEA provider.
type NMEAOption func(*NMEA)

// WithOpener replaces the serial opener (tests use an in-memory device).
func WithOpener(open device.Opener) NMEAOption {
	return func(n *NMEA) { n.open = open }
}

// NewNMEA creates an NMEA provider from its configuration.
func NewNMEA(cfg model.ProviderConfig, logger *zap.Logger, opts ...NMEAOption) *NMEA {
	n := &NMEA{
		name:     cfg.Name,
		identity: model.Identity(cfg.Identity),
		dev:      cfg.Device,
		peer:     cfg.Peer,
		baud:     cfg.Baud,
		virtual:  cfg.Virtual,
		open:     device.OpenSerial,
		logger:   logger.Named("nmea").With(zap.String("provider", cfg.Name)),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Name implements Provider.
func (n *NMEA) Name() string { return n.name }

// Identity implements Provider.
func (n *NMEA) Identity() model.Identity { return n.identity }

// Register opens the serial device, creating the virtual pair first if configured.
func (n *NMEA) Register(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.d != nil {
		return nil
	}
	if n.virtual && n.socat == nil {
		socat := util.NewSocatManager(n.logger)
		if err := socat.CreatePair(n.dev, n.peer); err != nil {
			socat.Cleanup()
			return err
		}
		n.socat = socat
	}
	d, err := n.open(n.dev, n.baud)
	if err != nil {
		if device.IsPermissionDenied(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return err
	}
	n.d = d
	n.logger.Info("virtual receiver attached", zap.String("device", n.dev), zap.Int("baud", n.baud))
	return nil
}

// SetLocation writes the fix as NMEA sentences.
func (n *NMEA) SetLocation(ctx context.Context, fix model.Fix) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.d == nil {
		return ErrNotRegistered
	}
	for _, s := range parser.NMEASentences(fix) {
		if err := n.d.WriteLine(s); err != nil {
			return fmt.Errorf("write nmea: %w", err)
		}
	}
	return nil
}

// Unregister closes the device and tears down the virtual pair.
func (n *NMEA) Unregister(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.d != nil {
		err = n.d.Close()
		n.d = nil
	}
	if n.socat != nil {
		n.socat.Cleanup()
		n.socat = nil
	}
	return err
}

// CheckPermission verifies the device can be opened, or that socat is
// available for a virtual pair. A registered provider is assumed fine.
func (n *NMEA) CheckPermission(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.d != nil {
		return nil
	}
	if n.virtual {
		if _, err := exec.LookPath("socat"); err != nil {
			return fmt.Errorf("virtual nmea needs socat: %w", err)
		}
		return nil
	}
	d, err := n.open(n.dev, n.baud)
	if err != nil {
		if device.IsPermissionDenied(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return err
	}
	return d.Close()
}

// PermissionHint implements Hinter.
func (n *NMEA) PermissionHint() string {
	return fmt.Sprintf("Grant this user access to %s (e.g. add it to the dialout group)", n.dev)
}
