package manager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Runtime is the container-group boundary the lifecycle controller drives.
type Runtime interface {
	// ComposeUp runs "up -d" for the compose project in dir and returns stdout.
	ComposeUp(ctx context.Context, dir, composeFile string) (string, error)
	// ComposeStop runs "stop" for the compose project in dir and returns stdout.
	ComposeStop(ctx context.Context, dir, composeFile string) (string, error)
	// RemoveContainer force-removes a container by name or ID.
	RemoveContainer(ctx context.Context, name string) error
	// ContainerStartTime reports when the container's process last started.
	ContainerStartTime(ctx context.Context, name string) (time.Time, error)
}

// CommandError carries the diagnostic output of a failed external command.
type CommandError struct {
	Args   []string
	Dir    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s (in %s) failed: %v", strings.Join(e.Args, " "), e.Dir, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// execCommandContext is replaced in tests.
var execCommandContext = exec.CommandContext

// DockerRuntime drives compose projects through the docker CLI and single
// containers through the Docker Engine API.
type DockerRuntime struct {
	dockerClient   *client.Client
	binary         string
	commandTimeout time.Duration
}

// NewDockerRuntime creates a Docker API client from the environment.
// commandTimeout bounds each compose invocation; zero means no bound.
func NewDockerRuntime(commandTimeout time.Duration) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{
		dockerClient:   cli,
		binary:         DockerBinary,
		commandTimeout: commandTimeout,
	}, nil
}

// Close releases the Docker API client.
func (d *DockerRuntime) Close() error {
	return d.dockerClient.Close()
}

func (d *DockerRuntime) ComposeUp(ctx context.Context, dir, composeFile string) (string, error) {
	return d.compose(ctx, dir, composeFile, "up", "-d")
}

func (d *DockerRuntime) ComposeStop(ctx context.Context, dir, composeFile string) (string, error) {
	return d.compose(ctx, dir, composeFile, "stop")
}

// compose runs a compose subcommand. Once issued it is not cancelled by the
// caller's context, only by commandTimeout.
func (d *DockerRuntime) compose(ctx context.Context, dir, composeFile string, args ...string) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if d.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.commandTimeout)
		defer cancel()
	}

	fullArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := execCommandContext(ctx, d.binary, fullArgs...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{
			Args:   append([]string{d.binary}, fullArgs...),
			Dir:    dir,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

func (d *DockerRuntime) RemoveContainer(ctx context.Context, name string) error {
	err := d.dockerClient.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) ContainerStartTime(ctx context.Context, name string) (time.Time, error) {
	info, err := d.dockerClient.ContainerInspect(ctx, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return time.Time{}, fmt.Errorf("container %s has no state", name)
	}
	startedAt, err := time.Parse(time.RFC3339Nano, info.State.StartedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse start time %q of container %s: %w", info.State.StartedAt, name, err)
	}
	if startedAt.IsZero() || startedAt.Year() <= 1 {
		return time.Time{}, fmt.Errorf("container %s has never started", name)
	}
	return startedAt, nil
}
