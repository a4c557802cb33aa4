package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
	"k8s.io/utils/clock"

	"wakeproxy/logging"
)

const (
	lastAccessFilePrefix = "last_access_"

	// defaultPersistEvery coalesces disk writes for busy routes.
	defaultPersistEvery = time.Second
)

// AccessTracker records the last successful request per route in the
// StateManager and mirrors it to one file per route under dir, so idle
// detection survives a restart. Each file holds milliseconds since the epoch.
type AccessTracker struct {
	dir          string
	stateManager *StateManager
	clock        clock.PassiveClock
	persistEvery time.Duration

	mu        sync.Mutex
	persisted map[string]time.Time // last value written per route
}

// NewAccessTracker creates the state directory if needed.
func NewAccessTracker(dir string, sm *StateManager, clk clock.PassiveClock) (*AccessTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &AccessTracker{
		dir:          dir,
		stateManager: sm,
		clock:        clk,
		persistEvery: defaultPersistEvery,
		persisted:    make(map[string]time.Time),
	}, nil
}

// Load reads persisted records for every configured route into the StateManager.
// Missing files are normal; unreadable ones are logged and skipped.
func (t *AccessTracker) Load() {
	for _, rc := range t.stateManager.Routes() {
		ts, ok, err := t.readRecord(rc.Route)
		if err != nil {
			logging.Warn("AccessTracker", "Ignoring last access record for route '%s': %v", rc.Route, err)
			continue
		}
		if !ok {
			continue
		}
		t.stateManager.RecordAccess(rc.Route, ts)

		t.mu.Lock()
		t.persisted[rc.Route] = ts
		t.mu.Unlock()
		logging.Debug("AccessTracker", "Loaded last access for route '%s': %s", rc.Route, ts.Format(time.RFC3339))
	}
}

// Touch records now as the route's last access and persists it.
func (t *AccessTracker) Touch(route string) error {
	now := t.clock.Now()
	if !t.stateManager.RecordAccess(route, now) {
		return nil
	}

	t.mu.Lock()
	if last, ok := t.persisted[route]; ok && now.Sub(last) < t.persistEvery {
		t.mu.Unlock()
		return nil
	}
	t.persisted[route] = now
	t.mu.Unlock()

	if err := t.writeRecord(route, now); err != nil {
		t.mu.Lock()
		delete(t.persisted, route)
		t.mu.Unlock()
		logging.Error("AccessTracker", err, "Failed to write last access file for route '%s'", route)
		return err
	}
	return nil
}

// LastAccess returns the route's last recorded access, if any.
func (t *AccessTracker) LastAccess(route string) (time.Time, bool) {
	ts := t.stateManager.LastAccess(route)
	return ts, !ts.IsZero()
}

func (t *AccessTracker) recordPath(route string) string {
	return filepath.Join(t.dir, lastAccessFilePrefix+route)
}

func (t *AccessTracker) writeRecord(route string, ts time.Time) error {
	data := []byte(strconv.FormatInt(ts.UnixMilli(), 10))
	if err := atomicwriter.WriteFile(t.recordPath(route), data, 0o644); err != nil {
		return fmt.Errorf("failed to write last access record: %w", err)
	}
	return nil
}

func (t *AccessTracker) readRecord(route string) (time.Time, bool, error) {
	data, err := os.ReadFile(t.recordPath(route))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed timestamp: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}
