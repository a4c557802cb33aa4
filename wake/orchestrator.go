package wake

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"wakeproxy/logging"
	"wakeproxy/manager"
	"wakeproxy/metrics"
	"wakeproxy/types"
)

// Starter brings a route's backend up.
type Starter interface {
	Start(ctx context.Context, route string) error
}

// Readiness checks whether a backend answers.
type Readiness interface {
	Ready(ctx context.Context, url string) bool
	WaitUntilReady(ctx context.Context, url string, timeout, interval time.Duration) error
}

// Options tune the wake sequence.
type Options struct {
	Cooldown      time.Duration
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
}

// Orchestrator gates and sequences wake attempts per route.
type Orchestrator struct {
	stateManager *manager.StateManager
	starter      Starter
	readiness    Readiness
	clock        clock.PassiveClock
	opts         Options

	group singleflight.Group
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(sm *manager.StateManager, starter Starter, readiness Readiness, clk clock.PassiveClock, opts Options) *Orchestrator {
	return &Orchestrator{
		stateManager: sm,
		starter:      starter,
		readiness:    readiness,
		clock:        clk,
		opts:         opts,
	}
}

type result struct {
	outcome types.WakeOutcome
	err     error
}

// Wake makes sure the route's backend is running. Callers arriving while an
// attempt for the same route is in flight wait for and share its result. A
// new attempt is refused with WakeCooldown until the cooldown set by the
// previous attempt has passed, whether that attempt succeeded or not.
//
// The attempt itself is detached from ctx so that one impatient client does
// not abort a start other clients are waiting on; ctx only bounds how long
// this caller waits.
func (o *Orchestrator) Wake(ctx context.Context, route string) (types.WakeOutcome, error) {
	if _, ok := o.stateManager.GetRoute(route); !ok {
		return types.WakeFailed, fmt.Errorf("wake %q: %w", route, manager.ErrUnknownRoute)
	}

	ch := o.group.DoChan(route, func() (interface{}, error) {
		r := o.attempt(context.WithoutCancel(ctx), route)
		return r, nil
	})

	select {
	case <-ctx.Done():
		return types.WakeFailed, ctx.Err()
	case res := <-ch:
		r := res.Val.(result)
		if res.Shared {
			logging.Debug("WakeOrchestrator", "Route '%s' shared an in-flight wake (outcome %s).", route, r.outcome)
		}
		return r.outcome, r.err
	}
}

func (o *Orchestrator) attempt(ctx context.Context, route string) result {
	rc, _ := o.stateManager.GetRoute(route)

	began, until, err := o.stateManager.TryBeginWake(route, o.clock.Now(), o.opts.Cooldown)
	if err != nil {
		return result{types.WakeFailed, err}
	}
	if !began {
		logging.Info("WakeOrchestrator", "Route '%s' is in cooldown until %s, not starting.", route, until.Format(time.RFC3339))
		metrics.RecordWake(route, string(types.WakeCooldown), 0)
		return result{outcome: types.WakeCooldown}
	}

	start := o.clock.Now()
	r := o.run(ctx, rc)
	o.stateManager.FinishWake(route, r.outcome, r.err)
	metrics.RecordWake(route, string(r.outcome), o.clock.Since(start))
	return r
}

func (o *Orchestrator) run(ctx context.Context, rc types.RouteConfig) result {
	if o.readiness.Ready(ctx, rc.Target) {
		logging.Info("WakeOrchestrator", "Route '%s' is already up.", rc.Route)
		return result{outcome: types.WakeAlreadyUp}
	}

	logging.Info("WakeOrchestrator", "Starting route '%s'...", rc.Route)
	if err := o.starter.Start(ctx, rc.Route); err != nil {
		logging.Error("WakeOrchestrator", err, "Failed to start route '%s'", rc.Route)
		return result{types.WakeFailed, err}
	}

	if err := o.readiness.WaitUntilReady(ctx, rc.Target, o.opts.ReadyTimeout, o.opts.ReadyInterval); err != nil {
		logging.Error("WakeOrchestrator", err, "Route '%s' started but did not become ready", rc.Route)
		return result{types.WakeFailed, fmt.Errorf("route '%s' not ready: %w", rc.Route, err)}
	}

	logging.Info("WakeOrchestrator", "Route '%s' is up.", rc.Route)
	return result{outcome: types.WakeStarted}
}
