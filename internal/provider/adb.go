package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"LocMock/internal/model"
)

// probeProvider is the throwaway test provider used by CheckPermission.
const probeProvider = "test_provider"

// Android Criteria.POWER_MEDIUM.
const powerMedium = "2"

// Runner runs an adb command and returns its combined output.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// ExecRunner runs the adb binary at adbPath against the device with the given
// serial. An empty adbPath resolves adb from ANDROID_HOME or PATH; an empty
// serial lets adb pick the only attached device.
func ExecRunner(adbPath, serial string) Runner {
	if adbPath == "" {
		adbPath = "adb"
		if home := os.Getenv("ANDROID_HOME"); home != "" {
			adbPath = filepath.Join(home, "platform-tools", "adb")
		}
	}
	return func(ctx context.Context, args ...string) ([]byte, error) {
		if serial != "" {
			args = append([]string{"-s", serial}, args...)
		}
		return exec.CommandContext(ctx, adbPath, args...).CombinedOutput()
	}
}

// ADB drives an Android test location provider through the platform's
// "cmd location providers" shell interface (Android 12+).
type ADB struct {
	name     string
	identity model.Identity
	run      Runner
	logger   *zap.Logger

	mu         sync.Mutex
	registered bool
}

// NewADB creates an adb-backed provider impersonating identity. The Android
// provider name equals the identity ("gps" or "network").
func NewADB(name string, identity model.Identity, run Runner, logger *zap.Logger) *ADB {
	return &ADB{name: name, identity: identity, run: run, logger: logger.Named("adb").With(zap.String("provider", name))}
}

// Name implements Provider.
func (a *ADB) Name() string { return a.name }

// Identity implements Provider.
func (a *ADB) Identity() model.Identity { return a.identity }

// Register adds the test provider and enables it.
func (a *ADB) Register(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := string(a.identity)
	if err := a.locationCmd(ctx, "add-test-provider", p,
		"--supportsAltitude", "--supportsSpeed", "--supportsBearing",
		"--powerRequirement", powerMedium); err != nil {
		return fmt.Errorf("add test provider %s: %w", p, err)
	}
	if err := a.locationCmd(ctx, "set-test-provider-enabled", p, "true"); err != nil {
		return fmt.Errorf("enable test provider %s: %w", p, err)
	}
	a.registered = true
	a.logger.Info("test provider registered")
	return nil
}

// SetLocation pushes fix to the test provider.
func (a *ADB) SetLocation(ctx context.Context, fix model.Fix) error {
	a.mu.Lock()
	registered := a.registered
	a.mu.Unlock()
	if !registered {
		return ErrNotRegistered
	}
	err := a.locationCmd(ctx, "set-test-provider-location", string(a.identity),
		"--location", strconv.FormatFloat(fix.Lat, 'f', 7, 64)+","+strconv.FormatFloat(fix.Lon, 'f', 7, 64),
		"--accuracy", strconv.FormatFloat(fix.Accuracy, 'f', 1, 64),
		"--time", strconv.FormatInt(fix.Time.UnixMilli(), 10))
	if errors.Is(err, ErrNotRegistered) {
		a.mu.Lock()
		a.registered = false
		a.mu.Unlock()
	}
	return err
}

// Unregister disables and removes the test provider. Both steps are attempted.
func (a *ADB) Unregister(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := string(a.identity)
	err := multierr.Append(
		a.locationCmd(ctx, "set-test-provider-enabled", p, "false"),
		a.locationCmd(ctx, "remove-test-provider", p),
	)
	a.registered = false
	a.logger.Info("test provider removed")
	return err
}

// CheckPermission adds and removes a throwaway test provider.
func (a *ADB) CheckPermission(ctx context.Context) error {
	if err := a.locationCmd(ctx, "add-test-provider", probeProvider, "--powerRequirement", "1"); err != nil {
		a.logger.Warn("mock location permission check failed", zap.Error(err))
		return err
	}
	return a.locationCmd(ctx, "remove-test-provider", probeProvider)
}

// PermissionHint implements Hinter.
func (a *ADB) PermissionHint() string {
	return "On the device enable Developer options > Select mock location app, " +
		"or run: adb shell appops set com.android.shell android:mock_location allow"
}

func (a *ADB) locationCmd(ctx context.Context, args ...string) error {
	full := append([]string{"shell", "cmd", "location", "providers"}, args...)
	out, err := a.run(ctx, full...)
	return classify(out, err)
}

// classify maps adb output to provider errors. adb shell does not always
// propagate the remote exit status, so the output is inspected as well.
func classify(out []byte, err error) error {
	text := string(bytes.TrimSpace(out))
	switch {
	case strings.Contains(text, "SecurityException"),
		strings.Contains(text, "MOCK_LOCATION"),
		strings.Contains(text, "mock_location"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, firstLine(text))
	case strings.Contains(text, "not a test provider"),
		strings.Contains(text, "unknown provider"):
		return ErrNotRegistered
	case err != nil:
		if text != "" {
			return fmt.Errorf("%w: %s", err, firstLine(text))
		}
		return err
	case strings.Contains(text, "Exception"):
		return fmt.Errorf("adb: %s", firstLine(text))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
