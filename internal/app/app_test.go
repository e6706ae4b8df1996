package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LocMock/internal/debuglog"
	"LocMock/internal/mock"
	"LocMock/internal/model"
	"LocMock/internal/parser"
	"LocMock/internal/provider"
)

const token = "s3cret"

type fixture struct {
	srv     *httptest.Server
	manager *mock.Manager
	hub     *provider.WebSocket
	ring    *debuglog.Ring
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ring := debuglog.New(50)
	hub := provider.NewWebSocket("ws-gps", model.IdentityGPS, parser.NewJSONParser(), zap.NewNop())
	providers := []provider.Provider{
		hub,
		provider.NewLog("log-network", model.IdentityNetwork, zap.NewNop()),
	}
	manager := mock.NewManager(mock.NewEngine(providers), nil, model.ModeStandard, zap.NewNop())

	a, err := NewApp(Options{
		Simulator: manager,
		Logs:      ring,
		LogDir:    t.TempDir(),
		Streams:   map[string]http.Handler{hub.Name(): hub},
		Token:     token,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		_ = manager.Stop(context.Background())
		hub.Close()
		srv.Close()
	})
	return &fixture{srv: srv, manager: manager, hub: hub, ring: ring}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestTokenRequired(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, body := f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, "not simulating", body["line"])
	assert.Equal(t, "standard", body["mode"])
}

func TestMockLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/mock/start", `{"coords":"39.9087, 116.3975","enhanced":true}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "enhanced", body["mode"])
	assert.Equal(t, "simulating: 39.908700, 116.397500 (enhanced mode)", body["line"])

	code, body = f.do(t, http.MethodPost, "/api/mock/start", `{"lat":1,"lon":1}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "already running")

	code, _ = f.do(t, http.MethodPost, "/api/mock/target", `{"lat":48.8566,"lon":2.3522}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodPost, "/api/mock/target", `{"lat":148.8566,"lon":2.3522}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/api/mock/mode", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "standard", body["mode"])
	assert.Equal(t, "simulating: 48.856600, 2.352200 (standard mode)", body["line"])

	code, body = f.do(t, http.MethodPost, "/api/mock/stop", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["running"])

	code, _ = f.do(t, http.MethodPost, "/api/mock/stop", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestStartRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"lat":91,"lon":0}`, `{"coords":"north"}`, `{"lat":1}`, `{}`} {
		code, _ := f.do(t, http.MethodPost, "/api/mock/start", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
	}
	code, _ := f.do(t, http.MethodPost, "/api/mock/start", `{"lat":1,`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/mock/start", `{"lat":1,"lon":2,"mode":"turbo"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, f.manager.IsRunning())

	code, _ = f.do(t, http.MethodGet, "/api/mock/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	code, _ := f.do(t, http.MethodPost, "/api/mock/start", `{"lat":39.9087,"lon":116.3975}`)
	require.Equal(t, http.StatusOK, code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	fix, err := parser.NewJSONParser().DecodeFix(string(msg))
	require.NoError(t, err)
	assert.Equal(t, model.IdentityGPS, fix.Identity)
	assert.Equal(t, model.Coordinate{Lat: 39.9087, Lon: 116.3975}, fix.Coordinate())

	resp, err := http.Get(f.srv.URL + "/ws/unknown?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogEndpoints(t *testing.T) {
	f := newFixture(t)
	f.ring.Add("info", "engine", "location mock started")
	f.ring.Add("warn", "adb", "set mock location failed")
	f.ring.Add("warn", "nmea", "device busy")

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/logs?level=warn&tag=adb", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var entries []debuglog.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	resp.Body.Close()
	require.Len(t, entries, 1)
	assert.Equal(t, "set mock location failed", entries[0].Message)

	code, stats := f.do(t, http.MethodGet, "/api/logs/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, stats["total"])
	assert.EqualValues(t, 2, stats["warn"])

	code, saved := f.do(t, http.MethodPost, "/api/logs/save", "")
	require.Equal(t, http.StatusOK, code)
	data, err := os.ReadFile(fmt.Sprint(saved["path"]))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[WARN] [nmea] device busy")

	code, _ = f.do(t, http.MethodDelete, "/api/logs", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Empty(t, f.ring.Entries())
}

// deniedSim refuses every start for lack of permission.
type deniedSim struct{}

func (deniedSim) Start(context.Context, model.Coordinate, model.Mode) error {
	return fmt.Errorf("android-gps: %w", provider.ErrPermissionDenied)
}
func (deniedSim) Stop(context.Context) error { return mock.ErrNotRunning }
func (deniedSim) ToggleMode(context.Context) (model.Mode, error) { return model.ModeEnhanced, nil }
func (deniedSim) Retarget(context.Context, model.Coordinate) error { return mock.ErrNotRunning }
func (deniedSim) Status() model.Status { return model.Status{} }
func (deniedSim) StatusLine() string { return "not simulating" }
func (deniedSim) CheckPermission(context.Context) bool { return false }
func (deniedSim) PermissionHint() string { return "enable mock locations" }

// ctxSim records the context state each teardown call sees.
type ctxSim struct {
	deniedSim
	errs      []error
	deadlines []bool
}

func (s *ctxSim) record(ctx context.Context) {
	_, ok := ctx.Deadline()
	s.errs = append(s.errs, ctx.Err())
	s.deadlines = append(s.deadlines, ok)
}

func (s *ctxSim) Stop(ctx context.Context) error {
	s.record(ctx)
	return nil
}

func (s *ctxSim) ToggleMode(ctx context.Context) (model.Mode, error) {
	s.record(ctx)
	return model.ModeStandard, nil
}

func TestTeardownSurvivesClientDisconnect(t *testing.T) {
	sim := &ctxSim{}
	a, err := NewApp(Options{Simulator: sim})
	require.NoError(t, err)

	for _, path := range []string{"/api/mock/stop", "/api/mock/mode"} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, path, nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	assert.Equal(t, []error{nil, nil}, sim.errs)
	assert.Equal(t, []bool{true, true}, sim.deadlines)
}

func TestPermissionDenied(t *testing.T) {
	a, err := NewApp(Options{Simulator: deniedSim{}})
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/mock/start", "application/json", strings.NewReader(`{"lat":1,"lon":2}`))
	require.NoError(t, err)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "enable mock locations", body.Hint)

	resp, err = http.Get(srv.URL + "/api/permission")
	require.NoError(t, err)
	var perm permissionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&perm))
	resp.Body.Close()
	assert.False(t, perm.Granted)
	assert.Equal(t, "enable mock locations", perm.Hint)

	resp, err = http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	var sessions []model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	resp.Body.Close()
	assert.Empty(t, sessions)
}

func TestNewAppNeedsSimulator(t *testing.T) {
	_, err := NewApp(Options{})
	assert.Error(t, err)
}

func TestServerStartStop(t *testing.T) {
	a, err := NewApp(Options{Simulator: deniedSim{}})
	require.NoError(t, err)
	assert.NoError(t, a.Start(""))

	done := make(chan error, 1)
	go func() { done <- a.Start("127.0.0.1:0") }()
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.server != nil
	}, time.Second, 5*time.Millisecond)

	a.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	// Stopped apps refuse to serve again.
	assert.NoError(t, a.Start("127.0.0.1:0"))
}
