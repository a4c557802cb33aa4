package manager

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakeproxy/types"
)

func testRoutes() []types.RouteConfig {
	return []types.RouteConfig{
		{Route: "app", Target: "http://127.0.0.1:3000", ComposeDir: "/srv/app", ComposeFile: "docker-compose.yml"},
		{Route: "wiki", Target: "http://127.0.0.1:3001", ComposeDir: "/srv/wiki", ComposeFile: "docker-compose.yml", Container: "wiki-web"},
	}
}

func TestStateManagerRoutes(t *testing.T) {
	sm := NewStateManager(append(testRoutes(), types.RouteConfig{Route: "app", Target: "http://dup"}))

	routes := sm.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "app", routes[0].Route)
	assert.Equal(t, "http://127.0.0.1:3000", routes[0].Target, "first definition of a duplicated route wins")
	assert.Equal(t, "wiki", routes[1].Route)

	_, ok := sm.GetRoute("missing")
	assert.False(t, ok)

	state, ok := sm.GetState("app")
	require.True(t, ok)
	assert.True(t, state.CooldownUntil.IsZero(), "cooldowns start cleared")
	assert.False(t, state.WakeInFlight)
}

func TestTryBeginWakeCooldown(t *testing.T) {
	sm := NewStateManager(testRoutes())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	ok, until, err := sm.TryBeginWake("app", now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), until)
	assert.True(t, sm.IsWakeInFlight("app"))

	ok, until, err = sm.TryBeginWake("app", now.Add(59*time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second attempt inside the window is suppressed")
	assert.Equal(t, now.Add(time.Minute), until)

	sm.FinishWake("app", types.WakeFailed, errors.New("compose up failed"))
	assert.False(t, sm.IsWakeInFlight("app"))

	ok, _, err = sm.TryBeginWake("app", now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a failed attempt still holds the cooldown")

	ok, _, err = sm.TryBeginWake("app", now.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window is half-open at cooldownUntil")

	state, _ := sm.GetState("app")
	assert.Equal(t, 2, state.WakeAttempts)

	_, _, err = sm.TryBeginWake("missing", now, time.Minute)
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestTryBeginWakeConcurrent(t *testing.T) {
	sm := NewStateManager(testRoutes())
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := sm.TryBeginWake("app", now, time.Minute); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestRecordAccessNeverRegresses(t *testing.T) {
	sm := NewStateManager(testRoutes())
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, sm.RecordAccess("app", t0))
	assert.False(t, sm.RecordAccess("app", t0.Add(-time.Second)))
	assert.Equal(t, t0, sm.LastAccess("app"))

	assert.True(t, sm.RecordAccess("app", t0.Add(time.Second)))
	assert.Equal(t, t0.Add(time.Second), sm.LastAccess("app"))

	assert.False(t, sm.RecordAccess("missing", t0))
	assert.True(t, sm.LastAccess("missing").IsZero())
}

func TestSnapshot(t *testing.T) {
	sm := NewStateManager(testRoutes())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sm.RecordAccess("wiki", now)
	sm.RecordStop("app", now, errors.New("stop failed"))

	snapshot := sm.Snapshot()
	require.Len(t, snapshot, 2)

	assert.Nil(t, snapshot[0].LastAccess)
	require.NotNil(t, snapshot[0].LastStop)
	assert.Equal(t, "stop failed", snapshot[0].LastStopError)

	require.NotNil(t, snapshot[1].LastAccess)
	assert.Equal(t, now, *snapshot[1].LastAccess)
	assert.Nil(t, snapshot[1].CooldownUntil)
}
