package debuglog

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRingKeepsNewestFirstAndBounded(t *testing.T) {
	r := New(3)
	for _, m := range []string{"a", "b", "c", "d"} {
		r.Add("info", "engine", m)
	}
	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "d", entries[0].Message)
	assert.Equal(t, "b", entries[2].Message)
}

func TestRingFilters(t *testing.T) {
	r := New(10)
	r.Add("INFO", "engine", "mock started")
	r.Add("warn", "manager", "already running")
	r.Add("error", "adb", "SecurityException from shell")

	assert.Len(t, r.ByLevel("warn"), 1)
	assert.Len(t, r.ByTag("adb"), 1)
	assert.Len(t, r.Search("MOCK"), 1)
	assert.Len(t, r.Search("mana"), 1)

	stats := r.Stats()
	assert.Equal(t, 3, stats["total"])
	assert.Equal(t, 1, stats["info"])
	assert.Equal(t, 1, stats["error"])

	r.Clear()
	assert.Empty(t, r.Entries())
}

func TestRingHookCapturesZapEntries(t *testing.T) {
	r := New(10)
	core, _ := observer.New(zapcore.DebugLevel)
	logger := zap.New(zapcore.RegisterHooks(core, r.Hook())).Named("engine")

	logger.Warn("tick failed")

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "engine", entries[0].Tag)
	assert.True(t, strings.HasSuffix(entries[0].Format(), "[WARN] [engine] tick failed"))
}

func TestRingSave(t *testing.T) {
	r := New(10)
	r.now = func() time.Time { return time.Date(2025, 10, 24, 12, 0, 0, 0, time.UTC) }
	r.Add("info", "engine", "first")
	r.Add("info", "engine", "second")

	path, err := r.Save(t.TempDir())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "2025-10-24_locmock_debug.log"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(b)
	assert.Less(t, strings.Index(content, "first"), strings.Index(content, "second"))
	assert.Contains(t, r.Formatted(), "[INFO] [engine] second")
}

func TestRingQueryCombinesFilters(t *testing.T) {
	r := New(10)
	r.Add("warn", "adb", "device offline")
	r.Add("warn", "nmea", "device busy")
	r.Add("info", "adb", "device attached")

	assert.Len(t, r.Query("", "", ""), 3)
	assert.Len(t, r.Query("WARN", "", "device"), 2)
	got := r.Query("warn", "adb", "")
	require.Len(t, got, 1)
	assert.Equal(t, "device offline", got[0].Message)
	assert.Empty(t, r.Query("info", "nmea", ""))
}
