package types

import "time"

// WakeOutcome is the result of a wake attempt for a route.
type WakeOutcome string

const (
	WakeAlreadyUp WakeOutcome = "already_up" // Backend answered before anything was started
	WakeCooldown  WakeOutcome = "cooldown"   // A recent attempt suppressed this one
	WakeStarted   WakeOutcome = "started"    // Backend started and probed ready
	WakeFailed    WakeOutcome = "error"      // Start or readiness probe failed
)

// RouteRuntimeState holds the mutable per-route state for the process lifetime.
type RouteRuntimeState struct {
	LastAccess    time.Time // Last successfully proxied request, zero if none seen
	CooldownUntil time.Time // Wake attempts are suppressed until this instant
	WakeInFlight  bool      // True while a start+probe sequence runs

	WakeAttempts    int
	LastWakeOutcome WakeOutcome
	LastWakeError   string
	LastStop        time.Time
	LastStopError   string
}

// RouteStatus is the admin view of a route.
type RouteStatus struct {
	Route           string      `json:"route"`
	Target          string      `json:"target"`
	ComposeDir      string      `json:"compose_dir"`
	LastAccess      *time.Time  `json:"last_access,omitempty"`
	CooldownUntil   *time.Time  `json:"cooldown_until,omitempty"`
	WakeInFlight    bool        `json:"wake_in_flight"`
	WakeAttempts    int         `json:"wake_attempts"`
	LastWakeOutcome WakeOutcome `json:"last_wake_outcome,omitempty"`
	LastWakeError   string      `json:"last_wake_error,omitempty"`
	LastStop        *time.Time  `json:"last_stop,omitempty"`
	LastStopError   string      `json:"last_stop_error,omitempty"`
}
