// Package dockertest provides an in-memory docker.Engine for tests.
package dockertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/edvin/homeproxy/internal/docker"
)

var _ docker.Engine = (*Engine)(nil)

// Engine is an in-memory docker.Engine.
type Engine struct {
	mu sync.Mutex

	Containers map[string]*docker.Container
	Networks   map[string]bool
	LogOutput  map[string]string

	PingErr  error
	BuildErr error
	RunErr   error

	Built   []string
	Started []docker.RunOptions
	Stopped []string
	Removed []string
	nextID  int
}

// NewEngine returns an empty, reachable engine.
func NewEngine() *Engine {
	return &Engine{
		Containers: make(map[string]*docker.Container),
		Networks:   make(map[string]bool),
		LogOutput:  make(map[string]string),
	}
}

// Add registers an existing container.
func (f *Engine) Add(c docker.Container) *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		f.nextID++
		c.ID = fmt.Sprintf("fake%04d", f.nextID)
	}
	if c.State == "" {
		c.State = "exited"
		if c.Running {
			c.State = "running"
		}
	}
	f.Containers[c.Name] = &c
	return f
}

func (f *Engine) Ping(context.Context) error { return f.PingErr }

func (f *Engine) ListContainers(_ context.Context, all bool) ([]docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []docker.Container
	for _, c := range f.Containers {
		if all || c.Running {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *Engine) InspectContainer(_ context.Context, name string) (*docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Containers[name]
	if !ok {
		return nil, docker.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *Engine) byID(id string) *docker.Container {
	for _, c := range f.Containers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *Engine) StopContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byID(id)
	if c == nil {
		return docker.ErrNotFound
	}
	c.Running = false
	c.State = "exited"
	f.Stopped = append(f.Stopped, c.Name)
	return nil
}

func (f *Engine) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byID(id)
	if c == nil {
		return docker.ErrNotFound
	}
	delete(f.Containers, c.Name)
	f.Removed = append(f.Removed, c.Name)
	return nil
}

func (f *Engine) NetworkExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Networks[name], nil
}

func (f *Engine) CreateNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Networks[name] = true
	return nil
}

func (f *Engine) BuildImage(_ context.Context, _ string, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BuildErr != nil {
		return f.BuildErr
	}
	f.Built = append(f.Built, tag)
	return nil
}

func (f *Engine) CreateAndStart(_ context.Context, opts docker.RunOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunErr != nil {
		return "", f.RunErr
	}
	if _, ok := f.Containers[opts.Name]; ok {
		return "", fmt.Errorf("container name %q already in use", opts.Name)
	}
	f.nextID++
	c := &docker.Container{
		ID:      fmt.Sprintf("fake%04d", f.nextID),
		Name:    opts.Name,
		Image:   opts.Image,
		State:   "running",
		Running: true,
		Ports:   append([]docker.PortBinding(nil), opts.Ports...),
	}
	if opts.Network != "" {
		c.Networks = []string{opts.Network}
	}
	f.Containers[opts.Name] = c
	f.Started = append(f.Started, opts)
	return c.ID, nil
}

func (f *Engine) Logs(_ context.Context, name string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LogOutput[name], nil
}
