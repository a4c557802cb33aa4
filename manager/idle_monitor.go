package manager

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"wakeproxy/logging"
	"wakeproxy/metrics"
)

// Where an effective last-access time came from.
const (
	SourceRecord         = "record"
	SourceContainerStart = "container_start"
	SourceNow            = "now"
)

const defaultSweepConcurrency = 4

// LastAccessSource supplies recorded per-route activity.
type LastAccessSource interface {
	LastAccess(route string) (time.Time, bool)
}

// Lifecycle is the part of the lifecycle controller the monitor uses.
type Lifecycle interface {
	Stop(ctx context.Context, route string) error
	StartTime(ctx context.Context, route string) (time.Time, error)
}

// SweepResult describes what one sweep decided for one route.
type SweepResult struct {
	Route   string
	IdleFor time.Duration
	Source  string
	Stopped bool
	Skipped bool // wake in flight
	Err     error
}

// IdleMonitor periodically stops routes that have been idle past a threshold.
type IdleMonitor struct {
	stateManager *StateManager
	tracker      LastAccessSource
	lifecycle    Lifecycle
	clock        clock.WithTicker
	threshold    time.Duration
	interval     time.Duration
	concurrency  int
}

// NewIdleMonitor creates a monitor that sweeps every interval.
func NewIdleMonitor(sm *StateManager, tracker LastAccessSource, lifecycle Lifecycle, clk clock.WithTicker, threshold, interval time.Duration) *IdleMonitor {
	return &IdleMonitor{
		stateManager: sm,
		tracker:      tracker,
		lifecycle:    lifecycle,
		clock:        clk,
		threshold:    threshold,
		interval:     interval,
		concurrency:  defaultSweepConcurrency,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (m *IdleMonitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	logging.Info("IdleMonitor", "Idle monitor started (interval %s, threshold %s).", m.interval, m.threshold)

	for {
		select {
		case <-ctx.Done():
			logging.Info("IdleMonitor", "Idle monitor stopping.")
			return
		case <-ticker.C():
			m.Sweep(ctx)
		}
	}
}

// EffectiveLastAccess returns the recorded access if present, otherwise the
// container's start time if the runtime knows it, otherwise now.
func (m *IdleMonitor) EffectiveLastAccess(ctx context.Context, route string, now time.Time) (time.Time, string) {
	if ts, ok := m.tracker.LastAccess(route); ok {
		return ts, SourceRecord
	}
	ts, err := m.lifecycle.StartTime(ctx, route)
	if err == nil {
		return ts, SourceContainerStart
	}
	logging.Debug("IdleMonitor", "No start time for route '%s': %v", route, err)
	return now, SourceNow
}

// Sweep evaluates every route once. Routes are independent: a failed stop is
// recorded in its result and does not affect the others.
func (m *IdleMonitor) Sweep(ctx context.Context) []SweepResult {
	routes := m.stateManager.Routes()
	results := make([]SweepResult, len(routes))

	logging.Debug("IdleMonitor", "Running check for idle routes...")

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, rc := range routes {
		i, route := i, rc.Route
		g.Go(func() error {
			results[i] = m.evaluate(ctx, route)
			return nil
		})
	}
	_ = g.Wait()

	stopped := 0
	for _, r := range results {
		if r.Stopped {
			stopped++
		}
	}
	if stopped == 0 {
		logging.Debug("IdleMonitor", "No idle routes found.")
	}
	return results
}

func (m *IdleMonitor) evaluate(ctx context.Context, route string) SweepResult {
	result := SweepResult{Route: route}

	if m.stateManager.IsWakeInFlight(route) {
		result.Skipped = true
		logging.Debug("IdleMonitor", "Route '%s' is waking up, skipping.", route)
		return result
	}

	now := m.clock.Now()
	lastAccess, source := m.EffectiveLastAccess(ctx, route, now)
	result.IdleFor = now.Sub(lastAccess)
	result.Source = source

	if result.IdleFor <= m.threshold {
		logging.Debug("IdleMonitor", "Route '%s' is active (idle %s, source %s). Time until idle: %.0f seconds.",
			route, result.IdleFor.Truncate(time.Second), source, (m.threshold - result.IdleFor).Seconds())
		return result
	}

	logging.Info("IdleMonitor", "Route '%s' idle for %s (source %s), over %s. Attempting to stop...",
		route, result.IdleFor.Truncate(time.Second), source, m.threshold)

	err := m.lifecycle.Stop(ctx, route)
	m.stateManager.RecordStop(route, m.clock.Now(), err)
	metrics.RecordIdleStop(route, err)
	if err != nil {
		result.Err = err
		logging.Error("IdleMonitor", err, "Error stopping idle route '%s'", route)
		return result
	}

	result.Stopped = true
	logging.Info("IdleMonitor", "Stopped idle route '%s'.", route)
	return result
}
