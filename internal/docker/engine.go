// Package docker queries and mutates containers, networks and images on the
// local container engine. Engine is the narrow port the rest of homeproxy
// depends on; NewSDKEngine implements it with the Docker API client.
package docker

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Engine.InspectContainer for unknown names.
var ErrNotFound = errors.New("container not found")

// PortBinding maps a container port to a host port. HostPort 0 means the
// port is exposed but not published.
type PortBinding struct {
	ContainerPort int
	HostPort      int
}

// Container is the engine's view of one container.
type Container struct {
	ID       string
	Name     string
	Image    string
	State    string // running, exited, created, ...
	Running  bool
	Ports    []PortBinding
	Networks []string
}

// RunOptions describes a container to create and start.
type RunOptions struct {
	Name    string
	Image   string
	Ports   []PortBinding
	Network string
	// RestartUnlessStopped sets the unless-stopped restart policy.
	RestartUnlessStopped bool
}

// Engine is the subset of container-engine operations homeproxy needs.
type Engine interface {
	Ping(ctx context.Context) error
	ListContainers(ctx context.Context, all bool) ([]Container, error)
	InspectContainer(ctx context.Context, name string) (*Container, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	NetworkExists(ctx context.Context, name string) (bool, error)
	CreateNetwork(ctx context.Context, name string) error
	// BuildImage builds dir (containing a Dockerfile) and tags the result.
	BuildImage(ctx context.Context, dir, tag string) error
	CreateAndStart(ctx context.Context, opts RunOptions) (string, error)
	Logs(ctx context.Context, name string, tail int) (string, error)
}
