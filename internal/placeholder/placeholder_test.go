package placeholder

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/docker"
	"github.com/edvin/homeproxy/internal/docker/dockertest"
	"github.com/edvin/homeproxy/internal/shell/shelltest"
)

// freePort returns a port nothing listens on.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newService(t *testing.T, engine *dockertest.Engine, port int, out *console.Console) *Service {
	rt := docker.NewRuntime(zerolog.Nop(), engine, shelltest.NewRecorder())
	return NewService(zerolog.Nop(), rt, out, filepath.Join(t.TempDir(), "welcome"), port).WithSettleDelay(0)
}

func TestEnsureRunning_HostServiceWins(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	engine := dockertest.NewEngine().Add(docker.Container{Name: ContainerName})
	svc := newService(t, engine, port, console.Discard())

	outcome, err := svc.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeHostService, outcome)
	assert.Equal(t, []string{ContainerName}, engine.Removed)
	assert.Empty(t, engine.Built)
	assert.Empty(t, engine.Started)
}

func TestEnsureRunning_AppContainerWins(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	engine := dockertest.NewEngine().
		Add(docker.Container{Name: "myapp", Running: true, Ports: []docker.PortBinding{{ContainerPort: 8000, HostPort: port}}}).
		Add(docker.Container{Name: ContainerName})
	var buf bytes.Buffer
	svc := newService(t, engine, port, console.New(&buf))

	outcome, err := svc.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppContainer, outcome)
	assert.Equal(t, []string{ContainerName}, engine.Removed)
	assert.Empty(t, engine.Built)
	assert.Empty(t, engine.Started)
	assert.Contains(t, buf.String(), "myapp already serves port")
}

func TestEnsureRunning_ExistingPlaceholder(t *testing.T) {
	port := freePort(t)
	engine := dockertest.NewEngine().Add(docker.Container{
		Name:    ContainerName,
		Running: true,
		Ports:   []docker.PortBinding{{ContainerPort: 80, HostPort: port}},
	})
	svc := newService(t, engine, port, console.Discard())

	outcome, err := svc.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRunning, outcome)
	assert.Empty(t, engine.Built)
	assert.Empty(t, engine.Removed)
}

func TestEnsureRunning_StartsNewPlaceholder(t *testing.T) {
	port := freePort(t)
	engine := dockertest.NewEngine().Add(docker.Container{Name: ContainerName})
	var buf bytes.Buffer
	svc := newService(t, engine, port, console.New(&buf))

	outcome, err := svc.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, outcome)

	assert.Equal(t, []string{ImageTag}, engine.Built)
	assert.Equal(t, []string{ContainerName}, engine.Removed)
	assert.True(t, engine.Networks[NetworkName])
	require.Len(t, engine.Started, 1)
	started := engine.Started[0]
	assert.Equal(t, ContainerName, started.Name)
	assert.Equal(t, []docker.PortBinding{{ContainerPort: 80, HostPort: port}}, started.Ports)
	assert.True(t, started.RestartUnlessStopped)

	dockerfile, err := os.ReadFile(filepath.Join(svc.dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(dockerfile), "FROM nginx:alpine")
	assert.FileExists(t, filepath.Join(svc.dir, "index.html"))

	// Nothing really listens, so the health probe only warns.
	assert.Contains(t, buf.String(), "did not answer")
}

func TestEnsureRunning_BuildFailureIsError(t *testing.T) {
	engine := dockertest.NewEngine()
	engine.BuildErr = errors.New("pull access denied")
	svc := newService(t, engine, freePort(t), console.Discard())

	_, err := svc.EnsureRunning(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull access denied")
	assert.Empty(t, engine.Started)
}

func TestEnsureRunning_RunFailureIsError(t *testing.T) {
	engine := dockertest.NewEngine()
	engine.RunErr = errors.New("port is already allocated")
	svc := newService(t, engine, freePort(t), console.Discard())

	_, err := svc.EnsureRunning(context.Background())
	assert.ErrorContains(t, err, "port is already allocated")
}
