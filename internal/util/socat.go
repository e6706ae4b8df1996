package util

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SocatManager manages lifecycle of socat-created virtual serial pairs.
// A pair lets the NMEA provider write to one PTY while a consumer reads the other.
type SocatManager struct {
	mu     sync.Mutex
	logger *zap.Logger
	cmds   []*exec.Cmd
	links  []string
	closed bool

	command func(name string, args ...string) *exec.Cmd
}

// NewSocatManager initializes an empty manager.
func NewSocatManager(logger *zap.Logger) *SocatManager {
	return &SocatManager{logger: logger.Named("virt-serial"), command: exec.Command}
}

// CreatePair starts a socat process that links two PTYs (bidirectional) and
// waits until the left link appears.
func (m *SocatManager) CreatePair(left, right string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("socat manager closed")
	}

	cmd := m.command(
		"socat", "-d", "-d",
		fmt.Sprintf("pty,raw,echo=0,link=%s", left),
		fmt.Sprintf("pty,raw,echo=0,link=%s", right),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start socat: %w", err)
	}

	m.logger.Info("started socat", zap.Int("pid", cmd.Process.Pid), zap.String("left", left), zap.String("right", right))

	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, left, right)
	return waitForLink(left, 2*time.Second)
}

func waitForLink(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Lstat(path); err == nil {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("socat link %s did not appear within %s", path, timeout)
}

// Cleanup stops all socat processes and removes created links. It is idempotent.
func (m *SocatManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			m.logger.Debug("killing socat", zap.Int("pid", cmd.Process.Pid))
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	}

	for _, path := range m.links {
		if _, err := os.Lstat(path); err == nil {
			_ = os.Remove(path)
			m.logger.Debug("removed link", zap.String("path", path))
		}
	}

	m.logger.Info("cleanup complete", zap.Int("pairs", len(m.links)/2))
}
