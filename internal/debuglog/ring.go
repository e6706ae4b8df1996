// Package debuglog keeps a bounded, newest-first buffer of recent log entries
// so the control API can serve a live debug panel without reading log files.
package debuglog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// DefaultSize is the number of entries kept when no size is configured.
const DefaultSize = 200

// Entry is one captured log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Tag     string    `json:"tag"`
	Message string    `json:"message"`
}

// Format renders the entry as "[15:04:05.000] [LEVEL] [tag] message".
func (e Entry) Format() string {
	return fmt.Sprintf("[%s] [%s] [%s] %s",
		e.Time.Format("15:04:05.000"), strings.ToUpper(e.Level), e.Tag, e.Message)
}

// Ring is a fixed-capacity log buffer. The zero value is not usable; use New.
type Ring struct {
	mu      sync.RWMutex
	size    int
	entries []Entry // newest first
	now     func() time.Time
}

// New creates a ring holding at most size entries.
func New(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{size: size, now: time.Now}
}

// Hook returns a zap hook feeding every logged entry into the ring.
func (r *Ring) Hook() func(zapcore.Entry) error {
	return func(e zapcore.Entry) error {
		r.add(Entry{Time: e.Time, Level: e.Level.String(), Tag: e.LoggerName, Message: e.Message})
		return nil
	}
}

// Add records an entry stamped with the current time.
func (r *Ring) Add(level, tag, message string) {
	r.add(Entry{Time: r.now(), Level: strings.ToLower(level), Tag: tag, Message: message})
}

func (r *Ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{})
	copy(r.entries[1:], r.entries)
	r.entries[0] = e
	if len(r.entries) > r.size {
		r.entries = r.entries[:r.size]
	}
}

// Entries returns a copy of all entries, newest first.
func (r *Ring) Entries() []Entry {
	return r.filter(func(Entry) bool { return true })
}

// Clear drops every entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// ByLevel returns entries logged at level (e.g. "warn").
func (r *Ring) ByLevel(level string) []Entry {
	level = strings.ToLower(level)
	return r.filter(func(e Entry) bool { return e.Level == level })
}

// ByTag returns entries from the named logger.
func (r *Ring) ByTag(tag string) []Entry {
	return r.filter(func(e Entry) bool { return e.Tag == tag })
}

// Search returns entries whose message or tag contains q, ignoring case.
func (r *Ring) Search(q string) []Entry {
	q = strings.ToLower(q)
	return r.filter(func(e Entry) bool {
		return strings.Contains(strings.ToLower(e.Message), q) ||
			strings.Contains(strings.ToLower(e.Tag), q)
	})
}

// Query combines the level, tag and search filters; empty arguments match
// everything.
func (r *Ring) Query(level, tag, q string) []Entry {
	level, q = strings.ToLower(level), strings.ToLower(q)
	return r.filter(func(e Entry) bool {
		if level != "" && e.Level != level {
			return false
		}
		if tag != "" && e.Tag != tag {
			return false
		}
		return q == "" || strings.Contains(strings.ToLower(e.Message), q) ||
			strings.Contains(strings.ToLower(e.Tag), q)
	})
}

func (r *Ring) filter(keep func(Entry) bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Stats counts entries per level; the "total" key holds the overall count.
func (r *Ring) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := map[string]int{"total": len(r.entries)}
	for _, e := range r.entries {
		stats[e.Level]++
	}
	return stats
}

// Formatted renders all entries newest first, one per line.
func (r *Ring) Formatted() string {
	entries := r.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Format()
	}
	return strings.Join(lines, "\n")
}

// Save appends the buffer, oldest first, to a dated file under dir and
// returns the file path.
func (r *Ring) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	now := r.now()
	path := filepath.Join(dir, now.Format("2006-01-02")+"_locmock_debug.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== locmock debug log ===\ngenerated: %s\n\n", now.Format("2006-01-02 15:04:05.000"))
	entries := r.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		b.WriteString(entries[i].Format())
		b.WriteByte('\n')
	}
	b.WriteString("=== end ===\n")

	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}
