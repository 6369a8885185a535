package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// sdkEngine implements Engine using the Docker API.
type sdkEngine struct {
	cli *client.Client
}

// NewSDKEngine connects to the engine configured by DOCKER_HOST and friends.
// Creating the client does not contact the daemon; use Ping for that.
func NewSDKEngine() (Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &sdkEngine{cli: cli}, nil
}

func (e *sdkEngine) Ping(ctx context.Context) error {
	_, err := e.cli.Ping(ctx)
	return err
}

func (e *sdkEngine) ListContainers(ctx context.Context, all bool) ([]Container, error) {
	list, err := e.cli.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	result := make([]Container, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		item := Container{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			State:   c.State,
			Running: c.State == "running",
		}
		for _, p := range c.Ports {
			item.Ports = append(item.Ports, PortBinding{ContainerPort: int(p.PrivatePort), HostPort: int(p.PublicPort)})
		}
		if c.NetworkSettings != nil {
			for n := range c.NetworkSettings.Networks {
				item.Networks = append(item.Networks, n)
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func (e *sdkEngine) InspectContainer(ctx context.Context, name string) (*Container, error) {
	info, err := e.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inspect container %s: %w", name, err)
	}

	c := &Container{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.Config != nil {
		c.Image = info.Config.Image
	}
	if info.State != nil {
		c.State = info.State.Status
		c.Running = info.State.Running
	}
	if info.NetworkSettings != nil {
		for containerPort, bindings := range info.NetworkSettings.Ports {
			for _, b := range bindings {
				if b.HostPort == "" {
					continue
				}
				hp, _ := strconv.Atoi(b.HostPort)
				c.Ports = append(c.Ports, PortBinding{ContainerPort: containerPort.Int(), HostPort: hp})
			}
		}
		for n := range info.NetworkSettings.Networks {
			c.Networks = append(c.Networks, n)
		}
	}
	return c, nil
}

func (e *sdkEngine) StopContainer(ctx context.Context, id string) error {
	return e.cli.ContainerStop(ctx, id, container.StopOptions{})
}

func (e *sdkEngine) RemoveContainer(ctx context.Context, id string) error {
	return e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (e *sdkEngine) NetworkExists(ctx context.Context, name string) (bool, error) {
	networks, err := e.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, fmt.Errorf("list networks: %w", err)
	}
	// The name filter matches substrings.
	for _, n := range networks {
		if n.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (e *sdkEngine) CreateNetwork(ctx context.Context, name string) error {
	if _, err := e.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

func (e *sdkEngine) BuildImage(ctx context.Context, dir, tag string) error {
	buildContext, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildContext.Close()

	resp, err := e.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	// Build failures arrive inside the progress stream, not as an API error.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("build image %s: %w", tag, err)
	}
	return nil
}

func (e *sdkEngine) CreateAndStart(ctx context.Context, opts RunOptions) (string, error) {
	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, pm := range opts.Ports {
		cp := nat.Port(strconv.Itoa(pm.ContainerPort) + "/tcp")
		exposedPorts[cp] = struct{}{}
		hostPort := strconv.Itoa(pm.HostPort)
		if pm.HostPort == 0 {
			hostPort = ""
		}
		portBindings[cp] = []nat.PortBinding{{HostPort: hostPort}}
	}

	config := &container.Config{
		Image:        opts.Image,
		ExposedPorts: exposedPorts,
	}
	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}
	if opts.RestartUnlessStopped {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	}

	var networkConfig *network.NetworkingConfig
	if opts.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				opts.Network: {},
			},
		}
	}

	resp, err := e.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", opts.Name, err)
	}
	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", opts.Name, err)
	}
	return resp.ID, nil
}

func (e *sdkEngine) Logs(ctx context.Context, name string, tail int) (string, error) {
	rc, err := e.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("logs %s: %w", name, err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return out.String(), fmt.Errorf("read logs %s: %w", name, err)
	}
	return out.String(), nil
}
