package manager

import (
	"errors"
	"sync"
	"time"

	"wakeproxy/types"
)

// ErrUnknownRoute is returned for a route name that is not configured.
var ErrUnknownRoute = errors.New("unknown route")

// routeEntry pairs a route's static config with its runtime state.
// mu guards state; config never changes after construction.
type routeEntry struct {
	mu     sync.Mutex
	config types.RouteConfig
	state  types.RouteRuntimeState
}

// StateManager is the process-wide registry of per-route runtime state.
// The set of routes is fixed at construction, so lookups need no global lock;
// every read-modify-write of a route's state happens under that route's mutex.
type StateManager struct {
	routes map[string]*routeEntry
	order  []string
}

// NewStateManager creates a registry with one cleared RouteRuntimeState per route.
func NewStateManager(routes []types.RouteConfig) *StateManager {
	sm := &StateManager{
		routes: make(map[string]*routeEntry, len(routes)),
		order:  make([]string, 0, len(routes)),
	}
	for _, rc := range routes {
		if _, exists := sm.routes[rc.Route]; exists {
			continue
		}
		sm.routes[rc.Route] = &routeEntry{config: rc}
		sm.order = append(sm.order, rc.Route)
	}
	return sm
}

func (sm *StateManager) entry(route string) (*routeEntry, error) {
	e, ok := sm.routes[route]
	if !ok {
		return nil, ErrUnknownRoute
	}
	return e, nil
}

// GetRoute returns the static config for a route.
func (sm *StateManager) GetRoute(route string) (types.RouteConfig, bool) {
	e, ok := sm.routes[route]
	if !ok {
		return types.RouteConfig{}, false
	}
	return e.config, true
}

// Routes returns all route configs in configuration order.
func (sm *StateManager) Routes() []types.RouteConfig {
	out := make([]types.RouteConfig, 0, len(sm.order))
	for _, name := range sm.order {
		out = append(out, sm.routes[name].config)
	}
	return out
}

// GetState returns a copy of a route's runtime state.
func (sm *StateManager) GetState(route string) (types.RouteRuntimeState, bool) {
	e, ok := sm.routes[route]
	if !ok {
		return types.RouteRuntimeState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// TryBeginWake is the per-route cooldown gate. If now is before the route's
// cooldownUntil it returns false and the current deadline. Otherwise it sets
// cooldownUntil = now + cooldown, marks a wake in flight and returns true.
func (sm *StateManager) TryBeginWake(route string, now time.Time, cooldown time.Duration) (bool, time.Time, error) {
	e, err := sm.entry(route)
	if err != nil {
		return false, time.Time{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CooldownUntil.IsZero() && now.Before(e.state.CooldownUntil) {
		return false, e.state.CooldownUntil, nil
	}
	e.state.CooldownUntil = now.Add(cooldown)
	e.state.WakeInFlight = true
	e.state.WakeAttempts++
	return true, e.state.CooldownUntil, nil
}

// FinishWake clears the in-flight flag and records the attempt's outcome.
func (sm *StateManager) FinishWake(route string, outcome types.WakeOutcome, wakeErr error) {
	e, err := sm.entry(route)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.WakeInFlight = false
	e.state.LastWakeOutcome = outcome
	e.state.LastWakeError = ""
	if wakeErr != nil {
		e.state.LastWakeError = wakeErr.Error()
	}
}

// IsWakeInFlight reports whether a start+probe sequence is running for the route.
func (sm *StateManager) IsWakeInFlight(route string) bool {
	e, err := sm.entry(route)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.WakeInFlight
}

// RecordAccess moves the route's lastAccess forward to t. It never moves it
// back and reports whether the value changed.
func (sm *StateManager) RecordAccess(route string, t time.Time) bool {
	e, err := sm.entry(route)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !t.After(e.state.LastAccess) {
		return false
	}
	e.state.LastAccess = t
	return true
}

// LastAccess returns the route's lastAccess, zero if nothing was recorded.
func (sm *StateManager) LastAccess(route string) time.Time {
	e, err := sm.entry(route)
	if err != nil {
		return time.Time{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.LastAccess
}

// RecordStop notes a stop attempt by the idle monitor or the admin API.
func (sm *StateManager) RecordStop(route string, t time.Time, stopErr error) {
	e, err := sm.entry(route)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.LastStop = t
	e.state.LastStopError = ""
	if stopErr != nil {
		e.state.LastStopError = stopErr.Error()
	}
}

// Snapshot returns the admin view of every route in configuration order.
func (sm *StateManager) Snapshot() []types.RouteStatus {
	out := make([]types.RouteStatus, 0, len(sm.order))
	for _, name := range sm.order {
		status, _ := sm.Status(name)
		out = append(out, status)
	}
	return out
}

// Status returns the admin view of a single route.
func (sm *StateManager) Status(route string) (types.RouteStatus, bool) {
	e, ok := sm.routes[route]
	if !ok {
		return types.RouteStatus{}, false
	}
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	return types.RouteStatus{
		Route:           e.config.Route,
		Target:          e.config.Target,
		ComposeDir:      e.config.ComposeDir,
		LastAccess:      timePtr(state.LastAccess),
		CooldownUntil:   timePtr(state.CooldownUntil),
		WakeInFlight:    state.WakeInFlight,
		WakeAttempts:    state.WakeAttempts,
		LastWakeOutcome: state.LastWakeOutcome,
		LastWakeError:   state.LastWakeError,
		LastStop:        timePtr(state.LastStop),
		LastStopError:   state.LastStopError,
	}, true
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
