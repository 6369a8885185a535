package traefik

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/config"
	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/docker"
	"github.com/edvin/homeproxy/internal/prompt"
)

// ErrStartFailed means the proxy could not be brought up.
var ErrStartFailed = errors.New("reverse proxy failed to start")

// State is the proxy lifecycle position reached by Setup.
type State string

const (
	StateNotConfigured State = "not-configured"
	StateConfigWritten State = "config-written"
	StateRunning       State = "running"
	StateReloaded      State = "reloaded"
)

// Options configure a Configurator.
type Options struct {
	// Dir is the proxy directory, e.g. ~/.config/homeproxy/traefik.
	Dir          string
	ManifestPath string
	Image        string
	BackendPort  int

	DashboardUser     string
	DashboardPassword string
}

// Configurator writes the proxy configuration and keeps the proxy running.
type Configurator struct {
	opts     Options
	runtime  *docker.Runtime
	prompter prompt.Prompter
	out      *console.Console
	logger   zerolog.Logger
	// startupWait is the pause before reading a fresh proxy's logs.
	startupWait time.Duration
}

func NewConfigurator(logger zerolog.Logger, runtime *docker.Runtime, p prompt.Prompter, out *console.Console, opts Options) *Configurator {
	return &Configurator{
		opts:        opts,
		runtime:     runtime,
		prompter:    p,
		out:         out,
		logger:      logger.With().Str("component", "traefik").Logger(),
		startupWait: 3 * time.Second,
	}
}

// WithStartupWait overrides the pause before the post-start log scan.
func (c *Configurator) WithStartupWait(d time.Duration) *Configurator {
	c.startupWait = d
	return c
}

func (c *Configurator) configDir() string   { return filepath.Join(c.opts.Dir, "config") }
func (c *Configurator) staticPath() string  { return filepath.Join(c.configDir(), "traefik.yml") }
func (c *Configurator) dynamicPath() string { return filepath.Join(c.configDir(), "dynamic.yml") }
func (c *Configurator) composePath() string { return filepath.Join(c.opts.Dir, "docker-compose.yml") }
func (c *Configurator) acmePath() string    { return filepath.Join(c.opts.Dir, "acme.json") }

// Result describes a completed Setup.
type Result struct {
	State  State
	Email  string
	Routes []Route
}

// Setup writes the configuration for domains and makes sure the proxy runs
// with it. email may be empty, in which case the stored or prompted one is
// used.
func (c *Configurator) Setup(ctx context.Context, domains []string, email string) (*Result, error) {
	c.out.Step("Configuring Traefik")

	if err := c.prepareDirs(); err != nil {
		return nil, err
	}

	email, err := c.resolveEmail(email)
	if err != nil {
		return nil, err
	}

	routes := Routes(domains, c.opts.BackendPort)
	if err := c.writeFiles(email, routes); err != nil {
		return nil, err
	}
	c.logger.Info().Int("routes", len(routes)).Str("dir", c.opts.Dir).Msg("configuration written")

	state, err := c.ensureRunning(ctx)
	if err != nil {
		return nil, err
	}

	c.printRoutes(routes)
	return &Result{State: state, Email: email, Routes: routes}, nil
}

func (c *Configurator) prepareDirs() error {
	for _, dir := range []string{c.opts.Dir, c.configDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	// Traefik refuses an acme.json readable by others.
	if _, err := os.Stat(c.acmePath()); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(c.acmePath(), []byte("{}"), 0600); err != nil {
			return fmt.Errorf("create acme.json: %w", err)
		}
	}
	return os.Chmod(c.acmePath(), 0600)
}

// resolveEmail returns the ACME contact: the argument, else the stored one
// if the operator keeps it, else a prompted one. New addresses are stored.
func (c *Configurator) resolveEmail(email string) (string, error) {
	manifest, err := config.LoadManifest(c.opts.ManifestPath)
	if err != nil {
		c.logger.Warn().Err(err).Msg("ignoring unreadable manifest")
		manifest = &config.Manifest{}
	}

	if email != "" {
		if !config.ValidEmail(email) {
			return "", fmt.Errorf("invalid email address %q", email)
		}
	} else {
		if manifest.Email != "" {
			keep, err := c.prompter.Confirm(fmt.Sprintf("Use the saved email address (%s)?", manifest.Email), true)
			if err != nil {
				return "", err
			}
			if keep {
				return manifest.Email, nil
			}
		}
		email, err = c.prompter.Ask("Email address for Let's Encrypt certificates", "", func(s string) error {
			if !config.ValidEmail(s) {
				return errors.New("enter a valid email address")
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	}

	if email != manifest.Email {
		manifest.Email = email
		if err := config.WriteManifest(manifest, c.opts.ManifestPath); err != nil {
			c.logger.Warn().Err(err).Msg("could not store email")
		}
	}
	return email, nil
}

// writeFiles writes the static and compose files, then the dynamic file
// last so the file provider only reloads once everything is in place.
func (c *Configurator) writeFiles(email string, routes []Route) error {
	auth, err := DashboardAuth(c.opts.DashboardUser, c.opts.DashboardPassword)
	if err != nil {
		return err
	}

	files := []struct {
		path   string
		header string
		value  any
	}{
		{c.staticPath(), "# Traefik static configuration, generated by homeproxy.\n", NewStaticConfig(email)},
		{c.composePath(), "# Generated by homeproxy. Re-run `homeproxy proxy` to regenerate.\n", NewComposeFile(ComposeOptions{
			Image:         c.opts.Image,
			Dir:           c.opts.Dir,
			DashboardAuth: auth,
		})},
		{c.dynamicPath(), "# Traefik routes, regenerated in full by every `homeproxy proxy` run.\n", NewDynamicConfig(routes)},
	}

	for _, f := range files {
		data, err := marshal(f.header, f.value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", filepath.Base(f.path), err)
		}
		if err := os.WriteFile(f.path, data, 0600); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		c.out.Success("Wrote %s", f.path)
	}
	return nil
}

// ensureRunning restarts a running proxy, or starts a fresh one.
func (c *Configurator) ensureRunning(ctx context.Context) (State, error) {
	if c.runtime.IsRunning(ctx, ContainerName) {
		c.out.Info("Restarting Traefik to load the new configuration")
		if err := c.runtime.ComposeRestart(ctx, c.opts.Dir); err != nil {
			c.logger.Warn().Err(err).Msg("restart failed")
			c.out.Warn("Traefik restart failed; the file provider will still pick up new routes")
			return StateConfigWritten, nil
		}
		c.out.Success("Traefik restarted")
		return StateReloaded, nil
	}

	c.out.Info("Starting Traefik")
	if err := c.runtime.StopAndRemove(ctx, ContainerName); err != nil {
		c.logger.Warn().Err(err).Msg("could not remove stale container")
	}
	if err := c.runtime.ComposeUp(ctx, c.opts.Dir); err != nil {
		c.out.Fail("Traefik failed to start")
		return StateConfigWritten, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	c.out.Success("Traefik started")

	c.checkStartup(ctx)
	return StateRunning, nil
}

// checkStartup shows the dashboard address and surfaces errors in the
// proxy's first log lines.
func (c *Configurator) checkStartup(ctx context.Context) {
	if c.startupWait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.startupWait):
		}
	}

	c.out.Info("Traefik dashboard: http://localhost:%d", DashboardPort)
	c.out.Detail("(login: %s)", c.opts.DashboardUser)

	logs := strings.TrimSpace(c.runtime.Logs(ctx, ContainerName, 5))
	if strings.Contains(strings.ToLower(logs), "error") {
		c.out.Warn("Traefik logged errors on startup:")
		for _, line := range strings.Split(logs, "\n") {
			c.out.Detail("%s", line)
		}
	}
}

func (c *Configurator) printRoutes(routes []Route) {
	c.out.Step("Domain routing")
	for _, r := range routes {
		c.out.Success("%s → localhost:%d", r.Domain, c.opts.BackendPort)
		c.out.Detail("HTTP:  http://%s (redirects to HTTPS)", r.Domain)
		c.out.Detail("HTTPS: https://%s (Let's Encrypt certificate)", r.Domain)
	}
	c.out.Info("Let's Encrypt is issuing certificates; the first one can take a minute or two.")
}
