package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"wakeproxy/logging"
	"wakeproxy/types"
)

// DockerBinary is the executable the compose commands run through.
const DockerBinary = "docker"

// containerConflictPattern matches the daemon's name-collision message, e.g.
// `Conflict. The container name "/app" is already in use by container "3f2a..."`.
var containerConflictPattern = regexp.MustCompile(`container name "([^"]+)" is already in use`)

// PreconditionError reports a missing prerequisite detected before a start.
// It is distinct from a runtime failure of the start itself.
type PreconditionError struct {
	Route  string
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Route == "" {
		return "precondition failed: " + e.Reason
	}
	return fmt.Sprintf("precondition failed for route '%s': %s", e.Route, e.Reason)
}

// LifecycleError reports a failed start or stop of a route's container group.
type LifecycleError struct {
	Op    string // "start" or "stop"
	Route string
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("failed to %s route '%s': %v", e.Op, e.Route, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// ContainerManager starts and stops the compose project behind each route.
type ContainerManager struct {
	runtime      Runtime
	stateManager *StateManager
	lookPath     func(string) (string, error)
	statFile     func(string) (os.FileInfo, error)
}

// NewContainerManager creates a new ContainerManager.
func NewContainerManager(stateManager *StateManager, runtime Runtime) *ContainerManager {
	return &ContainerManager{
		runtime:      runtime,
		stateManager: stateManager,
		lookPath:     exec.LookPath,
		statFile:     os.Stat,
	}
}

// CheckPrerequisites verifies the docker executable is available.
func (cm *ContainerManager) CheckPrerequisites() error {
	if _, err := cm.lookPath(DockerBinary); err != nil {
		return &PreconditionError{Reason: fmt.Sprintf("%s executable not found: %v", DockerBinary, err)}
	}
	return nil
}

func (cm *ContainerManager) checkRoutePreconditions(rc types.RouteConfig) error {
	if err := cm.CheckPrerequisites(); err != nil {
		var pe *PreconditionError
		if errors.As(err, &pe) {
			pe.Route = rc.Route
		}
		return err
	}
	composePath := filepath.Join(rc.ComposeDir, rc.ComposeFile)
	if _, err := cm.statFile(composePath); err != nil {
		return &PreconditionError{Route: rc.Route, Reason: fmt.Sprintf("missing compose file at %s", composePath)}
	}
	return nil
}

// Start brings the route's compose project up. A container-name conflict is
// resolved by force-removing the conflicting container and retrying once.
func (cm *ContainerManager) Start(ctx context.Context, route string) error {
	rc, ok := cm.stateManager.GetRoute(route)
	if !ok {
		return ErrUnknownRoute
	}

	if err := cm.checkRoutePreconditions(rc); err != nil {
		logging.Error("ContainerManager", err, "Cannot start route '%s'", route)
		return err
	}

	logging.Info("ContainerManager", "Starting compose project for route '%s' in %s...", route, rc.ComposeDir)
	_, err := cm.runtime.ComposeUp(ctx, rc.ComposeDir, rc.ComposeFile)
	if err == nil {
		logging.Info("ContainerManager", "Compose project for route '%s' is up", route)
		return nil
	}

	name, conflict := conflictingContainer(err)
	if !conflict {
		logging.Error("ContainerManager", err, "Failed to start route '%s'", route)
		return &LifecycleError{Op: "start", Route: route, Err: err}
	}

	logging.Warn("ContainerManager", "Container conflict detected for route '%s': %s. Attempting to remove...", route, name)
	if rmErr := cm.runtime.RemoveContainer(ctx, name); rmErr != nil {
		logging.Error("ContainerManager", rmErr, "Failed to remove conflicting container '%s'", name)
		return &LifecycleError{Op: "start", Route: route, Err: fmt.Errorf("removing conflicting container %s: %w", name, rmErr)}
	}

	logging.Info("ContainerManager", "Removed %s. Retrying compose up for route '%s'...", name, route)
	if _, err := cm.runtime.ComposeUp(ctx, rc.ComposeDir, rc.ComposeFile); err != nil {
		logging.Error("ContainerManager", err, "Retry failed for route '%s'", route)
		return &LifecycleError{Op: "start", Route: route, Err: fmt.Errorf("retry after removing %s: %w", name, err)}
	}

	logging.Info("ContainerManager", "Compose project for route '%s' is up after conflict resolution", route)
	return nil
}

// Stop stops the route's compose project.
func (cm *ContainerManager) Stop(ctx context.Context, route string) error {
	rc, ok := cm.stateManager.GetRoute(route)
	if !ok {
		return ErrUnknownRoute
	}

	logging.Info("ContainerManager", "Stopping compose project for route '%s'...", route)
	if _, err := cm.runtime.ComposeStop(ctx, rc.ComposeDir, rc.ComposeFile); err != nil {
		logging.Error("ContainerManager", err, "Failed to stop route '%s'", route)
		return &LifecycleError{Op: "stop", Route: route, Err: err}
	}

	logging.Info("ContainerManager", "Stopped compose project for route '%s'", route)
	return nil
}

// StartTime reports when the route's container last started.
func (cm *ContainerManager) StartTime(ctx context.Context, route string) (time.Time, error) {
	rc, ok := cm.stateManager.GetRoute(route)
	if !ok {
		return time.Time{}, ErrUnknownRoute
	}
	return cm.runtime.ContainerStartTime(ctx, rc.ContainerName())
}

// conflictingContainer extracts the container name from a name-in-use failure.
func conflictingContainer(err error) (string, bool) {
	text := err.Error()
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		text = cmdErr.Stderr
	}
	match := containerConflictPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return strings.TrimPrefix(match[1], "/"), true
}
