package docker_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/docker"
	"github.com/edvin/homeproxy/internal/docker/dockertest"
	"github.com/edvin/homeproxy/internal/shell"
	"github.com/edvin/homeproxy/internal/shell/shelltest"
)

func refuseAll(context.Context, string, string) (net.Conn, error) {
	return nil, errors.New("connection refused")
}

func newTestRuntime(engine *dockertest.Engine, runner *shelltest.Recorder) *docker.Runtime {
	return docker.NewRuntime(zerolog.Nop(), engine, runner).WithDialer(refuseAll)
}

func TestRuntime_Preflight(t *testing.T) {
	engine := dockertest.NewEngine()
	runner := shelltest.NewRecorder()
	rt := newTestRuntime(engine, runner)

	require.NoError(t, rt.Preflight(context.Background()))

	engine.PingErr = errors.New("cannot connect")
	assert.ErrorIs(t, rt.Preflight(context.Background()), docker.ErrNotRunning)

	runner.Missing["docker"] = true
	assert.ErrorIs(t, rt.Preflight(context.Background()), docker.ErrNotInstalled)
}

func TestRuntime_State(t *testing.T) {
	engine := dockertest.NewEngine().
		Add(docker.Container{Name: "traefik", Running: true, Ports: []docker.PortBinding{{80, 80}, {443, 443}}}).
		Add(docker.Container{Name: "half", Running: true, Ports: []docker.PortBinding{{80, 80}, {443, 0}}}).
		Add(docker.Container{Name: "old"})
	rt := newTestRuntime(engine, shelltest.NewRecorder())
	ctx := context.Background()

	assert.Equal(t, docker.ContainerState{Name: "traefik", Status: docker.StatusRunning, PortsBound: true}, rt.State(ctx, "traefik", 80, 443))
	assert.Equal(t, docker.ContainerState{Name: "half", Status: docker.StatusRunning}, rt.State(ctx, "half", 80, 443))
	assert.Equal(t, docker.ContainerState{Name: "old", Status: docker.StatusStopped}, rt.State(ctx, "old", 80))
	assert.Equal(t, docker.ContainerState{Name: "nope", Status: docker.StatusAbsent}, rt.State(ctx, "nope", 80))

	assert.True(t, rt.Exists(ctx, "old"))
	assert.False(t, rt.IsRunning(ctx, "old"))
	assert.True(t, rt.PortBound(ctx, "traefik", 80, 443))
	assert.False(t, rt.PortBound(ctx, "half", 80, 443))
	assert.False(t, rt.PortBound(ctx, "old", 80))
}

func TestRuntime_PortInUse(t *testing.T) {
	engine := dockertest.NewEngine().
		Add(docker.Container{Name: "web", Running: true, Ports: []docker.PortBinding{{80, 3000}}})
	rt := newTestRuntime(engine, shelltest.NewRecorder())
	ctx := context.Background()

	assert.True(t, rt.PortInUse(ctx, 3000))
	assert.False(t, rt.HostPortInUse(ctx, 3000))
	assert.Equal(t, []string{"web"}, rt.PublishedBy(ctx, 3000))
	assert.False(t, rt.PortInUse(ctx, 3001))
}

func TestRuntime_HostPortInUse_RealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	rt := docker.NewRuntime(zerolog.Nop(), dockertest.NewEngine(), shelltest.NewRecorder())
	ctx := context.Background()

	assert.True(t, rt.HostPortInUse(ctx, port))
	assert.True(t, rt.PortInUse(ctx, port))
}

func TestRuntime_HostPortInUse_PublishedByContainer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	engine := dockertest.NewEngine().Add(docker.Container{Name: "web", Running: true, Ports: []docker.PortBinding{{80, port}}})
	rt := docker.NewRuntime(zerolog.Nop(), engine, shelltest.NewRecorder())

	assert.False(t, rt.HostPortInUse(context.Background(), port))
}

func TestRuntime_StopAndRemove(t *testing.T) {
	engine := dockertest.NewEngine().Add(docker.Container{Name: "traefik", Running: true})
	rt := newTestRuntime(engine, shelltest.NewRecorder())
	ctx := context.Background()

	require.NoError(t, rt.StopAndRemove(ctx, "traefik"))
	assert.Equal(t, []string{"traefik"}, engine.Stopped)
	assert.Equal(t, []string{"traefik"}, engine.Removed)
	assert.False(t, rt.Exists(ctx, "traefik"))

	// Second call is a no-op.
	require.NoError(t, rt.StopAndRemove(ctx, "traefik"))
	assert.Len(t, engine.Removed, 1)
}

func TestRuntime_StopAndRemove_SkipsStopWhenExited(t *testing.T) {
	engine := dockertest.NewEngine().Add(docker.Container{Name: "old"})
	rt := newTestRuntime(engine, shelltest.NewRecorder())

	require.NoError(t, rt.StopAndRemove(context.Background(), "old"))
	assert.Empty(t, engine.Stopped)
	assert.Equal(t, []string{"old"}, engine.Removed)
}

func TestRuntime_EnsureNetwork(t *testing.T) {
	engine := dockertest.NewEngine()
	rt := newTestRuntime(engine, shelltest.NewRecorder())
	ctx := context.Background()

	name, err := rt.EnsureNetwork(ctx, "homeproxy")
	require.NoError(t, err)
	assert.Equal(t, "homeproxy", name)
	assert.True(t, engine.Networks["homeproxy"])

	name, err = rt.EnsureNetwork(ctx, "homeproxy")
	require.NoError(t, err)
	assert.Equal(t, "homeproxy", name)
}

func TestRuntime_Compose(t *testing.T) {
	runner := shelltest.NewRecorder()
	rt := newTestRuntime(dockertest.NewEngine(), runner)
	ctx := context.Background()

	require.NoError(t, rt.ComposeUp(ctx, "/tmp/proxy"))
	assert.True(t, runner.Ran("docker compose up -d"))
	assert.Equal(t, "/tmp/proxy", runner.Commands[0].Dir)

	runner.On("docker compose restart", &shell.Result{ExitCode: 1, Stderr: "no such service"})
	err := rt.ComposeRestart(ctx, "/tmp/proxy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such service")
}

func TestRuntime_RunContainerAndLogs(t *testing.T) {
	engine := dockertest.NewEngine()
	engine.LogOutput["welcome"] = "ready\n"
	rt := newTestRuntime(engine, shelltest.NewRecorder())
	ctx := context.Background()

	id, err := rt.RunContainer(ctx, docker.RunOptions{Name: "welcome", Image: "welcome:latest", Ports: []docker.PortBinding{{80, 3000}}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, rt.PortBound(ctx, "welcome", 80))
	assert.Equal(t, "ready\n", rt.Logs(ctx, "welcome", 20))
}

func TestRuntime_Report(t *testing.T) {
	engine := dockertest.NewEngine().
		Add(docker.Container{Name: "traefik"}).
		Add(docker.Container{Name: "nginx", Running: true, Ports: []docker.PortBinding{{80, 80}}})
	rt := newTestRuntime(engine, shelltest.NewRecorder())

	var buf bytes.Buffer
	st := rt.Report(context.Background(), console.New(&buf), "traefik", 80, 443)

	assert.Equal(t, docker.StatusStopped, st.Status)
	out := buf.String()
	assert.Contains(t, out, "traefik exists but is stopped")
	assert.Contains(t, out, "port 80 is published by nginx")
	assert.NotContains(t, out, "port 443")
}
