package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecCommand re-invokes the test binary as a stand-in for docker.
func fakeExecCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	return exec.CommandContext(ctx, os.Args[0], cs...)
}

// TestHelperProcess is not a real test; it plays the docker CLI for runtime tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("WAKEPROXY_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[1:]

	cwd, _ := os.Getwd()
	line := strings.Join(args, " ")
	switch {
	case strings.HasSuffix(line, "up -d") && strings.HasSuffix(cwd, "conflict"):
		fmt.Fprint(os.Stderr, `Error response from daemon: Conflict. The container name "/app" is already in use by container "abc".`)
		os.Exit(1)
	default:
		fmt.Fprint(os.Stdout, line)
		os.Exit(0)
	}
}

func TestDockerRuntimeCompose(t *testing.T) {
	t.Setenv("WAKEPROXY_WANT_HELPER_PROCESS", "1")
	execCommandContext = fakeExecCommand
	defer func() { execCommandContext = exec.CommandContext }()

	rt := &DockerRuntime{binary: DockerBinary}

	out, err := rt.ComposeUp(context.Background(), t.TempDir(), "docker-compose.yml")
	require.NoError(t, err)
	assert.Equal(t, "docker compose -f docker-compose.yml up -d", out)

	out, err = rt.ComposeStop(context.Background(), t.TempDir(), "compose.yaml")
	require.NoError(t, err)
	assert.Equal(t, "docker compose -f compose.yaml stop", out)
}

func TestDockerRuntimeComposeFailureCarriesStderr(t *testing.T) {
	t.Setenv("WAKEPROXY_WANT_HELPER_PROCESS", "1")
	execCommandContext = fakeExecCommand
	defer func() { execCommandContext = exec.CommandContext }()

	dir := t.TempDir() + "/conflict"
	require.NoError(t, os.MkdirAll(dir, 0o755))

	rt := &DockerRuntime{binary: DockerBinary}
	_, err := rt.ComposeUp(context.Background(), dir, "docker-compose.yml")

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, dir, cmdErr.Dir)
	assert.Contains(t, cmdErr.Stderr, "is already in use")

	name, ok := conflictingContainer(err)
	assert.True(t, ok)
	assert.Equal(t, "app", name)
}
