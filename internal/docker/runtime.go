package docker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/shell"
)

var (
	// ErrNotInstalled means the docker CLI is not on PATH.
	ErrNotInstalled = errors.New("docker is not installed")
	// ErrNotRunning means the engine did not answer a ping.
	ErrNotRunning = errors.New("docker engine is not running")
)

// Status is the lifecycle state of a named container.
type Status string

const (
	StatusAbsent  Status = "absent"
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// ContainerState summarizes a named container for status output.
type ContainerState struct {
	Name       string
	Status     Status
	PortsBound bool
}

// Dialer opens TCP connections; it is swapped out in tests.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Runtime wraps an Engine with the queries and lifecycle operations the
// proxy and placeholder setup need. Queries never fail: engine errors are
// logged at debug level and reported as a negative result.
type Runtime struct {
	engine Engine
	runner shell.Runner
	logger zerolog.Logger
	dial   Dialer
}

// NewRuntime creates a Runtime. runner executes the docker CLI for compose.
func NewRuntime(logger zerolog.Logger, engine Engine, runner shell.Runner) *Runtime {
	d := &net.Dialer{Timeout: 500 * time.Millisecond}
	return &Runtime{
		engine: engine,
		runner: runner,
		logger: logger.With().Str("component", "docker").Logger(),
		dial:   d.DialContext,
	}
}

// WithDialer replaces the dialer used for host port probing.
func (r *Runtime) WithDialer(d Dialer) *Runtime {
	r.dial = d
	return r
}

// Installed reports whether the docker CLI is on PATH.
func (r *Runtime) Installed() bool {
	_, err := r.runner.LookPath("docker")
	return err == nil
}

// Running reports whether the engine answers a ping.
func (r *Runtime) Running(ctx context.Context) bool {
	if err := r.engine.Ping(ctx); err != nil {
		r.logger.Debug().Err(err).Msg("engine ping failed")
		return false
	}
	return true
}

// Preflight returns ErrNotInstalled or ErrNotRunning when the engine is
// unusable.
func (r *Runtime) Preflight(ctx context.Context) error {
	if !r.Installed() {
		return ErrNotInstalled
	}
	if !r.Running(ctx) {
		return ErrNotRunning
	}
	return nil
}

func (r *Runtime) inspect(ctx context.Context, name string) *Container {
	c, err := r.engine.InspectContainer(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Debug().Err(err).Str("container", name).Msg("inspect failed")
		}
		return nil
	}
	return c
}

// Exists reports whether a container with this name exists in any state.
func (r *Runtime) Exists(ctx context.Context, name string) bool {
	return r.inspect(ctx, name) != nil
}

// IsRunning reports whether the named container is running.
func (r *Runtime) IsRunning(ctx context.Context, name string) bool {
	c := r.inspect(ctx, name)
	return c != nil && c.Running
}

// State returns the lifecycle state of name and whether all ports are bound.
func (r *Runtime) State(ctx context.Context, name string, ports ...int) ContainerState {
	st := ContainerState{Name: name, Status: StatusAbsent}
	c := r.inspect(ctx, name)
	if c == nil {
		return st
	}
	if !c.Running {
		st.Status = StatusStopped
		return st
	}
	st.Status = StatusRunning
	st.PortsBound = allBound(c, ports)
	return st
}

// PortBound reports whether the running container publishes every one of
// the given container ports on the host.
func (r *Runtime) PortBound(ctx context.Context, name string, ports ...int) bool {
	c := r.inspect(ctx, name)
	return c != nil && c.Running && allBound(c, ports)
}

func allBound(c *Container, ports []int) bool {
	for _, p := range ports {
		found := false
		for _, b := range c.Ports {
			if b.ContainerPort == p && b.HostPort > 0 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// PublishedBy returns the names of running containers publishing hostPort.
func (r *Runtime) PublishedBy(ctx context.Context, hostPort int) []string {
	list, err := r.engine.ListContainers(ctx, false)
	if err != nil {
		r.logger.Debug().Err(err).Msg("list containers failed")
		return nil
	}
	var names []string
	for _, c := range list {
		if !c.Running {
			continue
		}
		for _, b := range c.Ports {
			if b.HostPort == hostPort {
				names = append(names, c.Name)
				break
			}
		}
	}
	return names
}

// PortInUse reports whether a container publishes port or a host process
// accepts TCP connections on it.
func (r *Runtime) PortInUse(ctx context.Context, port int) bool {
	return len(r.PublishedBy(ctx, port)) > 0 || r.listening(ctx, port)
}

// HostPortInUse reports whether a non-container process is listening on
// port.
func (r *Runtime) HostPortInUse(ctx context.Context, port int) bool {
	return r.listening(ctx, port) && len(r.PublishedBy(ctx, port)) == 0
}

func (r *Runtime) listening(ctx context.Context, port int) bool {
	for _, host := range []string{"127.0.0.1", "::1"} {
		conn, err := r.dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

// StopAndRemove stops and removes name. A missing container is not an error.
func (r *Runtime) StopAndRemove(ctx context.Context, name string) error {
	c := r.inspect(ctx, name)
	if c == nil {
		return nil
	}
	if c.Running {
		if err := r.engine.StopContainer(ctx, c.ID); err != nil {
			return fmt.Errorf("stop %s: %w", name, err)
		}
	}
	if err := r.engine.RemoveContainer(ctx, c.ID); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	r.logger.Info().Str("container", name).Msg("container removed")
	return nil
}

// EnsureNetwork creates the bridge network name unless it already exists.
func (r *Runtime) EnsureNetwork(ctx context.Context, name string) (string, error) {
	exists, err := r.engine.NetworkExists(ctx, name)
	if err != nil {
		return "", err
	}
	if exists {
		return name, nil
	}
	if err := r.engine.CreateNetwork(ctx, name); err != nil {
		return "", err
	}
	r.logger.Info().Str("network", name).Msg("network created")
	return name, nil
}

// BuildImage builds the Dockerfile in dir as tag.
func (r *Runtime) BuildImage(ctx context.Context, dir, tag string) error {
	r.logger.Info().Str("image", tag).Str("dir", dir).Msg("building image")
	return r.engine.BuildImage(ctx, dir, tag)
}

// RunContainer creates and starts a container.
func (r *Runtime) RunContainer(ctx context.Context, opts RunOptions) (string, error) {
	id, err := r.engine.CreateAndStart(ctx, opts)
	if err != nil {
		return "", err
	}
	r.logger.Info().Str("container", opts.Name).Str("id", shortID(id)).Msg("container started")
	return id, nil
}

// Logs returns the last tail lines of the container's output, or "" when
// they cannot be read.
func (r *Runtime) Logs(ctx context.Context, name string, tail int) string {
	out, err := r.engine.Logs(ctx, name, tail)
	if err != nil {
		r.logger.Debug().Err(err).Str("container", name).Msg("read logs failed")
	}
	return out
}

// ComposeUp runs `docker compose up -d` in dir.
func (r *Runtime) ComposeUp(ctx context.Context, dir string) error {
	return r.compose(ctx, dir, "up", "-d")
}

// ComposeRestart runs `docker compose restart` in dir.
func (r *Runtime) ComposeRestart(ctx context.Context, dir string) error {
	return r.compose(ctx, dir, "restart")
}

func (r *Runtime) compose(ctx context.Context, dir string, args ...string) error {
	cmd := shell.Command{Dir: dir, Name: "docker", Args: append([]string{"compose"}, args...)}
	r.logger.Debug().Str("cmd", cmd.String()).Str("dir", dir).Msg("running compose")
	res, err := r.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if res != nil && res.Stdout != "" {
		r.logger.Debug().Str("output", strings.TrimSpace(res.Stdout)).Msg("compose output")
	}
	return nil
}

// Report prints the state of name and, when it is not serving, who holds
// its host ports.
func (r *Runtime) Report(ctx context.Context, out *console.Console, name string, ports ...int) ContainerState {
	st := r.State(ctx, name, ports...)
	switch {
	case st.Status == StatusRunning && st.PortsBound:
		out.Success("%s is running", name)
	case st.Status == StatusRunning:
		out.Warn("%s is running but not bound to ports %s", name, joinPorts(ports))
	case st.Status == StatusStopped:
		out.Warn("%s exists but is stopped", name)
	default:
		out.Info("%s is not installed", name)
	}

	if st.Status != StatusRunning || !st.PortsBound {
		for _, p := range ports {
			if holders := r.PublishedBy(ctx, p); len(holders) > 0 {
				out.Detail("port %d is published by %s", p, strings.Join(holders, ", "))
			} else if r.listening(ctx, p) {
				out.Detail("port %d is used by a host process", p)
			}
		}
	}
	return st
}

func joinPorts(ports []int) string {
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ", ")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
