// Package placeholder serves a static welcome page on the backend port until
// the real application starts listening there.
package placeholder

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/docker"
)

const (
	ContainerName = "homeproxy-welcome"
	ImageTag      = "homeproxy-welcome:latest"
	NetworkName   = "homeproxy"

	containerPort = 80
)

//go:embed assets/Dockerfile assets/index.html
var assets embed.FS

// Outcome reports which branch EnsureRunning took.
type Outcome string

const (
	// OutcomeHostService means a host process owns the backend port.
	OutcomeHostService Outcome = "host-service"
	// OutcomeAppContainer means another container publishes the backend port.
	OutcomeAppContainer Outcome = "app-container"
	// OutcomeAlreadyRunning means the placeholder was already serving.
	OutcomeAlreadyRunning Outcome = "already-running"
	// OutcomeStarted means the placeholder was built and started.
	OutcomeStarted Outcome = "started"
)

// Service manages the placeholder container.
type Service struct {
	runtime    *docker.Runtime
	out        *console.Console
	logger     zerolog.Logger
	dir        string
	port       int
	httpClient *http.Client
	// settle is how long to wait before probing a fresh container.
	settle time.Duration
}

// NewService creates a placeholder for backend port, using dir as the image
// build context.
func NewService(logger zerolog.Logger, runtime *docker.Runtime, out *console.Console, dir string, port int) *Service {
	return &Service{
		runtime:    runtime,
		out:        out,
		logger:     logger.With().Str("component", "placeholder").Logger(),
		dir:        dir,
		port:       port,
		httpClient: &http.Client{Timeout: 3 * time.Second},
		settle:     2 * time.Second,
	}
}

// WithSettleDelay overrides the wait before the health probe.
func (s *Service) WithSettleDelay(d time.Duration) *Service {
	s.settle = d
	return s
}

// EnsureRunning guarantees something answers on the backend port. A host
// service or another container publishing the port wins over an existing
// placeholder, which wins over a new one.
func (s *Service) EnsureRunning(ctx context.Context) (Outcome, error) {
	if s.runtime.HostPortInUse(ctx, s.port) {
		s.out.Success("A host service is already running on port %d", s.port)
		s.removePlaceholder(ctx)
		return OutcomeHostService, nil
	}

	holders := s.runtime.PublishedBy(ctx, s.port)
	if apps := slices.DeleteFunc(slices.Clone(holders), func(name string) bool { return name == ContainerName }); len(apps) > 0 {
		s.out.Success("Container %s already serves port %d", strings.Join(apps, ", "), s.port)
		s.removePlaceholder(ctx)
		return OutcomeAppContainer, nil
	}

	if s.runtime.IsRunning(ctx, ContainerName) && slices.Contains(holders, ContainerName) {
		s.out.Success("Placeholder page is already running")
		return OutcomeAlreadyRunning, nil
	}

	s.out.Step("Starting the placeholder page on port %d", s.port)
	s.out.Detail("It is replaced automatically once your app listens on port %d.", s.port)

	if err := s.writeBuildContext(); err != nil {
		return "", err
	}
	if err := s.runtime.BuildImage(ctx, s.dir, ImageTag); err != nil {
		return "", fmt.Errorf("build placeholder image: %w", err)
	}
	if err := s.runtime.StopAndRemove(ctx, ContainerName); err != nil {
		return "", fmt.Errorf("remove stale placeholder: %w", err)
	}
	network, err := s.runtime.EnsureNetwork(ctx, NetworkName)
	if err != nil {
		return "", fmt.Errorf("ensure network: %w", err)
	}
	if _, err := s.runtime.RunContainer(ctx, docker.RunOptions{
		Name:                 ContainerName,
		Image:                ImageTag,
		Ports:                []docker.PortBinding{{ContainerPort: containerPort, HostPort: s.port}},
		Network:              network,
		RestartUnlessStopped: true,
	}); err != nil {
		return "", fmt.Errorf("run placeholder: %w", err)
	}

	s.probe(ctx)
	s.out.Success("Placeholder page started")
	return OutcomeStarted, nil
}

// removePlaceholder stops and removes the placeholder once a real app owns
// the port. Failures are only logged.
func (s *Service) removePlaceholder(ctx context.Context) {
	if !s.runtime.Exists(ctx, ContainerName) {
		return
	}
	s.out.Info("Stopping the placeholder page")
	if err := s.runtime.StopAndRemove(ctx, ContainerName); err != nil {
		s.logger.Warn().Err(err).Msg("could not remove placeholder")
	}
}

// writeBuildContext copies the embedded Dockerfile and page into dir.
func (s *Service) writeBuildContext() error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create placeholder dir: %w", err)
	}
	for _, name := range []string{"Dockerfile", "index.html"} {
		data, err := assets.ReadFile("assets/" + name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// probe checks the page answers 200. Failure is only a warning.
func (s *Service) probe(ctx context.Context) {
	if s.settle > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.settle):
		}
	}

	url := "http://localhost:" + strconv.Itoa(s.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", url).Msg("placeholder probe failed")
		s.out.Warn("Placeholder page did not answer yet on %s", url)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.out.Warn("Placeholder page answered %d on %s", resp.StatusCode, url)
		return
	}
	s.logger.Debug().Str("url", url).Msg("placeholder healthy")
}
