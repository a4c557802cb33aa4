package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"wakeproxy/types"
)

type monitorFixture struct {
	sm      *StateManager
	rt      *fakeRuntime
	clock   *testclock.FakeClock
	tracker *AccessTracker
	monitor *IdleMonitor
}

func newMonitorFixture(t *testing.T, routes []types.RouteConfig, threshold time.Duration) *monitorFixture {
	t.Helper()
	sm := NewStateManager(routes)
	rt := &fakeRuntime{}
	clk := testclock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, err := NewAccessTracker(t.TempDir(), sm, clk)
	require.NoError(t, err)
	cm := newTestContainerManager(rt)
	cm.stateManager = sm

	return &monitorFixture{
		sm:      sm,
		rt:      rt,
		clock:   clk,
		tracker: tracker,
		monitor: NewIdleMonitor(sm, tracker, cm, clk, threshold, 5*time.Minute),
	}
}

func TestSweepThresholdRoundTrip(t *testing.T) {
	routes := []types.RouteConfig{{Route: "app", Target: "http://127.0.0.1:3000", ComposeDir: "/srv/app", ComposeFile: "docker-compose.yml"}}
	f := newMonitorFixture(t, routes, 600*time.Second)

	require.NoError(t, f.tracker.Touch("app"))

	f.clock.Step(500 * time.Second)
	results := f.monitor.Sweep(context.Background())
	require.Len(t, results, 1)
	assert.False(t, results[0].Stopped)
	assert.Equal(t, SourceRecord, results[0].Source)
	_, stops, _ := f.rt.calls()
	assert.Empty(t, stops, "T+500s is inside the threshold")

	f.clock.Step(200 * time.Second)
	results = f.monitor.Sweep(context.Background())
	assert.True(t, results[0].Stopped)
	assert.Equal(t, 700*time.Second, results[0].IdleFor)
	_, stops, _ = f.rt.calls()
	assert.Equal(t, []string{"/srv/app"}, stops, "T+700s is past the threshold")
}

func TestSweepExactlyAtThresholdDoesNotStop(t *testing.T) {
	f := newMonitorFixture(t, testRoutes(), time.Minute)
	require.NoError(t, f.tracker.Touch("app"))
	require.NoError(t, f.tracker.Touch("wiki"))

	f.clock.Step(time.Minute)
	f.monitor.Sweep(context.Background())
	_, stops, _ := f.rt.calls()
	assert.Empty(t, stops)

	f.clock.Step(time.Millisecond)
	f.monitor.Sweep(context.Background())
	_, stops, _ = f.rt.calls()
	assert.ElementsMatch(t, []string{"/srv/app", "/srv/wiki"}, stops)
}

func TestSweepFallbacks(t *testing.T) {
	f := newMonitorFixture(t, testRoutes(), time.Hour)
	// wiki has no record but its container started two hours ago; app is unknown.
	f.rt.startTimes = map[string]time.Time{"wiki-web": f.clock.Now().Add(-2 * time.Hour)}

	results := f.monitor.Sweep(context.Background())
	require.Len(t, results, 2)

	assert.Equal(t, SourceNow, results[0].Source)
	assert.False(t, results[0].Stopped, "unknown backends are treated as just activated")

	assert.Equal(t, SourceContainerStart, results[1].Source)
	assert.True(t, results[1].Stopped)
}

func TestSweepStopFailureDoesNotBlockOthers(t *testing.T) {
	f := newMonitorFixture(t, testRoutes(), time.Minute)
	require.NoError(t, f.tracker.Touch("app"))
	require.NoError(t, f.tracker.Touch("wiki"))
	f.rt.stopErrs = map[string]error{"/srv/app": errors.New("exit status 1")}

	f.clock.Step(2 * time.Minute)
	results := f.monitor.Sweep(context.Background())

	require.Error(t, results[0].Err)
	assert.False(t, results[0].Stopped)
	assert.True(t, results[1].Stopped)

	state, _ := f.sm.GetState("app")
	assert.Contains(t, state.LastStopError, "failed to stop route 'app'")
}

func TestSweepSkipsRouteWithWakeInFlight(t *testing.T) {
	f := newMonitorFixture(t, testRoutes(), time.Minute)
	require.NoError(t, f.tracker.Touch("app"))
	f.clock.Step(time.Hour)

	ok, _, err := f.sm.TryBeginWake("app", f.clock.Now(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	results := f.monitor.Sweep(context.Background())
	assert.True(t, results[0].Skipped)
	_, stops, _ := f.rt.calls()
	assert.NotContains(t, stops, "/srv/app")
}

func TestRunSweepsOnTick(t *testing.T) {
	f := newMonitorFixture(t, testRoutes(), time.Minute)
	require.NoError(t, f.tracker.Touch("app"))
	require.NoError(t, f.tracker.Touch("wiki"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.monitor.Run(ctx)
		close(done)
	}()

	require.Eventually(t, f.clock.HasWaiters, time.Second, time.Millisecond)
	f.clock.Step(5 * time.Minute)

	require.Eventually(t, func() bool {
		_, stops, _ := f.rt.calls()
		return len(stops) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}
