package mock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"LocMock/internal/model"
	"LocMock/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var beijing = model.Coordinate{Lat: 39.9087, Lon: 116.3975}

// recorder is an in-memory provider that keeps every fix it receives.
type recorder struct {
	name     string
	identity model.Identity

	mu          sync.Mutex
	registered  bool
	registers   int
	unregisters int
	fixes       []model.Fix
	registerErr error
	setErr      error
	permErr     error
}

func newRecorder(name string, id model.Identity) *recorder {
	return &recorder{name: name, identity: id}
}

func (r *recorder) Name() string             { return r.name }
func (r *recorder) Identity() model.Identity { return r.identity }

func (r *recorder) Register(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return r.registerErr
	}
	r.registered = true
	r.registers++
	return nil
}

func (r *recorder) SetLocation(ctx context.Context, fix model.Fix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registered {
		return provider.ErrNotRegistered
	}
	if r.setErr != nil {
		return r.setErr
	}
	r.fixes = append(r.fixes, fix)
	return nil
}

func (r *recorder) Unregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = false
	r.unregisters++
	return nil
}

func (r *recorder) CheckPermission(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permErr
}

func (r *recorder) PermissionHint() string { return "grant " + r.name }

// drop simulates the OS forgetting the test provider.
func (r *recorder) drop() {
	r.mu.Lock()
	r.registered = false
	r.mu.Unlock()
}

func (r *recorder) received() []model.Fix {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Fix(nil), r.fixes...)
}

func (r *recorder) counts() (registers, unregisters int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registers, r.unregisters
}

func waitFixes(t *testing.T, r *recorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.received()) >= n }, time.Second, time.Millisecond,
		"want %d fixes on %s", n, r.name)
}

func newTestEngine(ps ...provider.Provider) (*Engine, *clock.Mock) {
	mock := clock.NewMock()
	e := NewEngine(ps,
		WithClock(mock),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithLogger(zap.NewNop()))
	return e, mock
}

func TestStartStopRegistersAndUnregisters(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	network := newRecorder("network", model.IdentityNetwork)
	e, _ := newTestEngine(gps, network)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	assert.True(t, e.Running())
	waitFixes(t, gps, 1)
	waitFixes(t, network, 1)

	require.NoError(t, e.Stop(context.Background()))
	assert.False(t, e.Running())
	for _, r := range []*recorder{gps, network} {
		reg, unreg := r.counts()
		assert.Equal(t, 1, reg, r.name)
		assert.Equal(t, 1, unreg, r.name)
	}
}

func TestStartTwiceKeepsOneLoop(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	e, mock := newTestEngine(gps)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	first := e.Session().ID
	err := e.Start(context.Background(), model.Coordinate{Lat: 1, Lon: 1}, model.ModeEnhanced)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, first, e.Session().ID)

	waitFixes(t, gps, 1)
	mock.Add(model.ModeStandard.Interval())
	waitFixes(t, gps, 2)
	// A second loop would have pushed twice per tick.
	assert.Never(t, func() bool { return len(gps.received()) > 2 }, 20*time.Millisecond, time.Millisecond)

	reg, _ := gps.counts()
	assert.Equal(t, 1, reg)
	for _, f := range gps.received() {
		assert.Equal(t, beijing, f.Coordinate())
	}
	require.NoError(t, e.Stop(context.Background()))
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	e, _ := newTestEngine(gps)

	assert.ErrorIs(t, e.Stop(context.Background()), ErrNotRunning)
	assert.ErrorIs(t, e.Stop(context.Background()), ErrNotRunning)
	_, unreg := gps.counts()
	assert.Zero(t, unreg)
	assert.False(t, e.Running())
}

func TestStandardFixesAreExact(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	network := newRecorder("network", model.IdentityNetwork)
	e, mock := newTestEngine(gps, network)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	waitFixes(t, gps, 1)
	for i := 2; i <= 5; i++ {
		mock.Add(100 * time.Millisecond)
		waitFixes(t, gps, i)
	}
	waitFixes(t, network, 5)
	require.NoError(t, e.Stop(context.Background()))

	for _, f := range gps.received() {
		assert.Equal(t, beijing, f.Coordinate())
		assert.Equal(t, StandardAccuracy, f.Accuracy)
		assert.Equal(t, model.IdentityGPS, f.Identity)
		assert.Zero(t, f.Altitude)
		assert.Zero(t, f.Speed)
		assert.Zero(t, f.Bearing)
	}
	for _, f := range network.received() {
		assert.Equal(t, beijing, f.Coordinate())
		assert.Equal(t, StandardAccuracy+NetworkAccuracyPenalty, f.Accuracy)
		assert.Equal(t, model.IdentityNetwork, f.Identity)
	}
}

func TestEnhancedFixesStayWithinJitterAndAccuracy(t *testing.T) {
	e, _ := newTestEngine()
	for i := 0; i < 10000; i++ {
		f := e.nextFix(beijing, model.ModeEnhanced)
		assert.LessOrEqual(t, abs(f.Lat-beijing.Lat), JitterDegrees+1e-12)
		assert.LessOrEqual(t, abs(f.Lon-beijing.Lon), JitterDegrees+1e-12)
		assert.GreaterOrEqual(t, f.Accuracy, MinEnhancedAccuracy)
		assert.Less(t, f.Accuracy, MaxEnhancedAccuracy)
	}
}

func TestEnhancedLoopJitters(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	network := newRecorder("network", model.IdentityNetwork)
	e, mock := newTestEngine(gps, network)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeEnhanced))
	waitFixes(t, gps, 1)
	for i := 2; i <= 20; i++ {
		mock.Add(model.ModeEnhanced.Interval())
		waitFixes(t, gps, i)
	}
	waitFixes(t, network, 20)
	require.NoError(t, e.Stop(context.Background()))

	moved := false
	for _, f := range gps.received() {
		assert.LessOrEqual(t, abs(f.Lat-beijing.Lat), JitterDegrees+1e-12)
		assert.LessOrEqual(t, abs(f.Lon-beijing.Lon), JitterDegrees+1e-12)
		assert.GreaterOrEqual(t, f.Accuracy, MinEnhancedAccuracy)
		assert.Less(t, f.Accuracy, MaxEnhancedAccuracy)
		if f.Coordinate() != beijing {
			moved = true
		}
	}
	assert.True(t, moved, "enhanced fixes should not all sit on the target")

	// Both identities get the same position on a tick, network with worse accuracy.
	g, n := gps.received()[3], network.received()[3]
	assert.Equal(t, g.Coordinate(), n.Coordinate())
	assert.InDelta(t, g.Accuracy+NetworkAccuracyPenalty, n.Accuracy, 1e-9)
}

func TestCadenceFollowsMode(t *testing.T) {
	for _, mode := range []model.Mode{model.ModeStandard, model.ModeEnhanced} {
		t.Run(mode.String(), func(t *testing.T) {
			gps := newRecorder("gps", model.IdentityGPS)
			e, mock := newTestEngine(gps)
			interval := mode.Interval()

			require.NoError(t, e.Start(context.Background(), beijing, mode))
			waitFixes(t, gps, 1)

			mock.Add(interval - time.Millisecond)
			assert.Never(t, func() bool { return len(gps.received()) > 1 }, 20*time.Millisecond, time.Millisecond)
			mock.Add(time.Millisecond)
			waitFixes(t, gps, 2)

			for i := 3; i <= 10; i++ {
				mock.Add(interval)
				waitFixes(t, gps, i)
			}
			require.NoError(t, e.Stop(context.Background()))

			fixes := gps.received()
			require.Len(t, fixes, 10)
			for i := 1; i < len(fixes); i++ {
				assert.Equal(t, interval, fixes[i].Time.Sub(fixes[i-1].Time), "fix %d", i)
				assert.Equal(t, interval, fixes[i].Elapsed-fixes[i-1].Elapsed, "fix %d", i)
			}
		})
	}
}

func TestNoFixesAfterStop(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	e, mock := newTestEngine(gps)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	waitFixes(t, gps, 1)
	require.NoError(t, e.Stop(context.Background()))

	n := len(gps.received())
	mock.Add(time.Second)
	assert.Never(t, func() bool { return len(gps.received()) != n }, 20*time.Millisecond, time.Millisecond)
}

func TestPermissionDeniedRollsBack(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	network := newRecorder("network", model.IdentityNetwork)
	network.registerErr = provider.ErrPermissionDenied
	e, _ := newTestEngine(gps, network)

	err := e.Start(context.Background(), beijing, model.ModeStandard)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrPermissionDenied)
	assert.False(t, e.Running())

	reg, unreg := gps.counts()
	assert.Equal(t, 1, reg)
	assert.Equal(t, 1, unreg, "registered providers are rolled back")
	assert.Empty(t, gps.received())

	// The engine can be started again once the permission is granted.
	network.mu.Lock()
	network.registerErr = nil
	network.mu.Unlock()
	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	require.NoError(t, e.Stop(context.Background()))
}

func TestSetterErrorsAreCountedNotFatal(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	broken := newRecorder("broken", model.IdentityNetwork)
	broken.setErr = errors.New("device gone")
	e, mock := newTestEngine(gps, broken)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	waitFixes(t, gps, 1)
	mock.Add(100 * time.Millisecond)
	waitFixes(t, gps, 2)

	require.Eventually(t, func() bool { return e.Status().Emitted == 2 }, time.Second, time.Millisecond)
	st := e.Status()
	assert.True(t, st.Running)
	assert.Equal(t, uint64(2), st.Failed)
	require.NoError(t, e.Stop(context.Background()))
}

func TestDroppedProviderIsRegisteredAgain(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	e, mock := newTestEngine(gps)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	waitFixes(t, gps, 1)

	gps.drop()
	mock.Add(100 * time.Millisecond)
	waitFixes(t, gps, 2)

	reg, _ := gps.counts()
	assert.Equal(t, 2, reg)
	assert.Zero(t, e.Status().Failed)
	require.NoError(t, e.Stop(context.Background()))
}

func TestRetargetAndStatus(t *testing.T) {
	gps := newRecorder("gps", model.IdentityGPS)
	e, mock := newTestEngine(gps)

	st := e.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.Target)
	assert.Equal(t, []string{"gps"}, st.Providers)
	assert.ErrorIs(t, e.Retarget(beijing), ErrNotRunning)

	require.NoError(t, e.Start(context.Background(), beijing, model.ModeStandard))
	waitFixes(t, gps, 1)

	st = e.Status()
	assert.True(t, st.Running)
	assert.NotEmpty(t, st.SessionID)
	require.NotNil(t, st.Target)
	assert.Equal(t, beijing, *st.Target)
	require.NotNil(t, st.LastFix)
	assert.InDelta(t, 0, st.DriftM, 1e-6)

	shanghai := model.Coordinate{Lat: 31.2304, Lon: 121.4737}
	require.NoError(t, e.Retarget(shanghai))

	// Until the next tick the last fix is still in Beijing, about 1067 km away.
	assert.InDelta(t, 1067, e.Status().DriftM/1000, 10)

	mock.Add(100 * time.Millisecond)
	waitFixes(t, gps, 2)
	assert.Equal(t, shanghai, gps.received()[1].Coordinate())
	reg, _ := gps.counts()
	assert.Equal(t, 1, reg, "retarget needs no re-registration")

	require.NoError(t, e.Stop(context.Background()))
	assert.Nil(t, e.Status().Target)
}

func TestForIdentityClearsNetworkMotion(t *testing.T) {
	f := model.Fix{Identity: model.IdentityGPS, Lat: 1, Lon: 2, Accuracy: 7, Altitude: 30, Speed: 2, Bearing: 90}
	assert.Equal(t, f, ForIdentity(f, model.IdentityGPS))

	n := ForIdentity(f, model.IdentityNetwork)
	assert.Equal(t, model.IdentityNetwork, n.Identity)
	assert.Equal(t, 12.0, n.Accuracy)
	assert.Zero(t, n.Altitude)
	assert.Zero(t, n.Speed)
	assert.Zero(t, n.Bearing)
}

func TestJitterNearPoleAndAntimeridian(t *testing.T) {
	assert.Equal(t, 90.0, clampLat(90.00003))
	assert.Equal(t, -90.0, clampLat(-90.00003))
	assert.InDelta(t, -179.99997, wrapLon(180.00003), 1e-9)
	assert.InDelta(t, 179.99997, wrapLon(-180.00003), 1e-9)
	assert.Equal(t, 12.5, wrapLon(12.5))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
