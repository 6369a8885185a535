package setup

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/config"
	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/dns"
	"github.com/edvin/homeproxy/internal/docker"
	"github.com/edvin/homeproxy/internal/metrics"
	"github.com/edvin/homeproxy/internal/netprobe"
	"github.com/edvin/homeproxy/internal/placeholder"
	"github.com/edvin/homeproxy/internal/prompt"
	"github.com/edvin/homeproxy/internal/traefik"
)

// NetworkProber discovers addresses and port forwarding.
type NetworkProber interface {
	Detect(ctx context.Context) (netprobe.Info, error)
	NegotiatePorts(info netprobe.Info) (netprobe.Info, error)
}

// ContainerRuntime is the engine check used before any container work.
type ContainerRuntime interface {
	Preflight(ctx context.Context) error
	Report(ctx context.Context, out *console.Console, name string, ports ...int) docker.ContainerState
}

// Placeholder keeps something serving on the backend port.
type Placeholder interface {
	EnsureRunning(ctx context.Context) (placeholder.Outcome, error)
}

// ProxyConfigurator writes and runs the reverse proxy.
type ProxyConfigurator interface {
	Setup(ctx context.Context, domains []string, email string) (*traefik.Result, error)
}

// Deps are the collaborators of a run.
type Deps struct {
	Logger       zerolog.Logger
	Out          *console.Console
	Prompter     prompt.Prompter
	Auth         dns.Authenticator
	Network      NetworkProber
	Runtime      ContainerRuntime
	Placeholder  Placeholder
	Proxy        ProxyConfigurator
	ManifestPath string
	// Metrics is optional.
	Metrics *metrics.Run
}

// Options are per-run choices made on the command line.
type Options struct {
	// Email is the ACME contact; empty means stored or prompted.
	Email string
}

// Summary is the outcome of a completed run.
type Summary struct {
	// NoDomains is set when the operator chose nothing; nothing was changed.
	NoDomains   bool
	Network     netprobe.Info
	Domains     []string
	DNS         *dns.Report
	Placeholder placeholder.Outcome
	Proxy       *traefik.Result
}

// Pipeline runs the proxy workflow.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

func NewPipeline(deps Deps, opts Options) *Pipeline {
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.With().Str("component", "setup").Logger(),
	}
}

// Run executes the steps in order and stops at the first failure. Each
// step returns its own result, which Run hands to the steps that need it.
// Choosing no domains ends the run early with Summary.NoDomains and a nil
// error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	var provider dns.Provider
	if err := p.step(ctx, StepAuthenticate, func() (err error) {
		provider, err = p.authenticate(ctx)
		return err
	}); err != nil {
		return summary, err
	}

	if err := p.step(ctx, StepDiscoverNetwork, func() (err error) {
		summary.Network, err = p.discoverNetwork(ctx)
		return err
	}); err != nil {
		return summary, err
	}

	if err := p.step(ctx, StepCheckRuntime, func() error {
		return p.checkRuntime(ctx)
	}); err != nil {
		return summary, err
	}

	var selections []dns.Selection
	if err := p.step(ctx, StepSelectDomains, func() (err error) {
		selections, err = p.selectDomains(ctx, provider)
		return err
	}); err != nil {
		return summary, err
	}
	if len(selections) == 0 {
		summary.NoDomains = true
		return summary, nil
	}
	summary.Domains = dns.Domains(selections)

	if err := p.step(ctx, StepReconcileDNS, func() (err error) {
		summary.DNS, err = p.reconcileDNS(ctx, provider, selections, summary.Network.PublicIP)
		return err
	}); err != nil {
		return summary, err
	}

	if err := p.step(ctx, StepEnsurePlaceholder, func() (err error) {
		summary.Placeholder, err = p.ensurePlaceholder(ctx)
		return err
	}); err != nil {
		return summary, err
	}

	if err := p.step(ctx, StepConfigureProxy, func() (err error) {
		summary.Proxy, err = p.configureProxy(ctx, summary.Domains)
		return err
	}); err != nil {
		return summary, err
	}

	err := p.step(ctx, StepSummary, func() error {
		p.finish(provider.Name(), summary)
		return nil
	})
	return summary, err
}

// step runs fn as the step id, timing and logging it.
func (p *Pipeline) step(ctx context.Context, id StepID, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	p.logger.Debug().Str("step", string(id)).Msg("step started")

	err := fn()

	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveStep(string(id), time.Since(start))
	}
	if err != nil {
		p.logger.Error().Err(err).Str("step", string(id)).Msg("step failed")
	}
	return err
}

func (p *Pipeline) authenticate(ctx context.Context) (dns.Provider, error) {
	provider, err := p.deps.Auth.Authenticate(ctx)
	if err != nil {
		return nil, stepErr(StepAuthenticate, KindCredential, err)
	}
	p.logger.Info().Str("provider", provider.Name()).Msg("authenticated")
	return provider, nil
}

func (p *Pipeline) discoverNetwork(ctx context.Context) (netprobe.Info, error) {
	info, err := p.deps.Network.Detect(ctx)
	if err != nil {
		return netprobe.Info{}, stepErr(StepDiscoverNetwork, KindInternal, err)
	}
	info, err = p.deps.Network.NegotiatePorts(info)
	if err != nil {
		return netprobe.Info{}, stepErr(StepDiscoverNetwork, KindInternal, err)
	}
	return info, nil
}

func (p *Pipeline) checkRuntime(ctx context.Context) error {
	p.deps.Out.Step("Checking Docker")
	if err := p.deps.Runtime.Preflight(ctx); err != nil {
		switch {
		case errors.Is(err, docker.ErrNotInstalled):
			p.deps.Out.Fail("Docker is not installed")
			p.deps.Out.Detail("Install it from https://www.docker.com/get-started")
		case errors.Is(err, docker.ErrNotRunning):
			p.deps.Out.Fail("Docker is not running")
			p.deps.Out.Detail("Start Docker Desktop or the docker service and try again.")
		}
		return stepErr(StepCheckRuntime, KindRuntime, err)
	}
	p.deps.Runtime.Report(ctx, p.deps.Out, traefik.ContainerName, netprobe.ProxyHTTPPort, netprobe.ProxyHTTPSPort)
	p.deps.Runtime.Report(ctx, p.deps.Out, placeholder.ContainerName, 80)
	return nil
}

// selectDomains returns the operator's choice; an empty result means there
// is nothing to do.
func (p *Pipeline) selectDomains(ctx context.Context, provider dns.Provider) ([]dns.Selection, error) {
	p.deps.Out.Step("Fetching zones from %s", provider.Name())
	zones, err := dns.ListZones(ctx, provider)
	if err != nil {
		if errors.Is(err, dns.ErrNoZones) {
			p.deps.Out.Fail("The account has no zones")
			p.deps.Out.Detail("Add a domain to your DNS provider first.")
		}
		return nil, stepErr(StepSelectDomains, KindDNS, err)
	}

	selections, err := dns.SelectDomains(p.deps.Prompter, p.deps.Out, zones)
	if err != nil {
		return nil, stepErr(StepSelectDomains, KindInternal, err)
	}
	if len(selections) == 0 {
		p.deps.Out.Warn("No domains selected. Nothing to do.")
	}
	return selections, nil
}

// reconcileDNS returns the report even when the run must stop, so the
// summary can show per-domain outcomes.
func (p *Pipeline) reconcileDNS(ctx context.Context, provider dns.Provider, selections []dns.Selection, target string) (*dns.Report, error) {
	p.deps.Out.Step("Configuring DNS records")
	r := dns.NewReconciler(p.deps.Logger, provider, p.deps.Prompter, p.deps.Out)
	report, err := r.Reconcile(ctx, selections, target)
	if p.deps.Metrics != nil && report != nil {
		for _, o := range report.Outcomes {
			p.deps.Metrics.RecordDNS(string(o.Action))
		}
	}
	if err != nil {
		return report, stepErr(StepReconcileDNS, KindDNS, err)
	}
	return report, nil
}

func (p *Pipeline) ensurePlaceholder(ctx context.Context) (placeholder.Outcome, error) {
	outcome, err := p.deps.Placeholder.EnsureRunning(ctx)
	if err != nil {
		return "", stepErr(StepEnsurePlaceholder, KindContainer, err)
	}
	return outcome, nil
}

func (p *Pipeline) configureProxy(ctx context.Context, domains []string) (*traefik.Result, error) {
	res, err := p.deps.Proxy.Setup(ctx, domains, p.opts.Email)
	if err != nil {
		kind := KindInternal
		if errors.Is(err, traefik.ErrStartFailed) {
			kind = KindContainer
		}
		return nil, stepErr(StepConfigureProxy, kind, err)
	}
	return res, nil
}

// finish prints the summary and records the run in the manifest. A manifest
// that cannot be written is reported but does not fail the run: DNS and the
// proxy are already in place.
func (p *Pipeline) finish(providerName string, s *Summary) {
	PrintSummary(p.deps.Out, s)

	if p.deps.Metrics != nil {
		p.deps.Metrics.SetDomains(len(s.Domains))
	}

	m, err := config.LoadManifest(p.deps.ManifestPath)
	if err != nil {
		p.logger.Warn().Err(err).Msg("replacing unreadable manifest")
		m = &config.Manifest{}
	}
	m.DNSProvider = providerName
	m.PublicIP = s.Network.PublicIP
	m.Domains = s.Domains
	m.UpdatedAt = time.Now().UTC()
	if s.Proxy != nil && s.Proxy.Email != "" {
		m.Email = s.Proxy.Email
	}
	if err := config.WriteManifest(m, p.deps.ManifestPath); err != nil {
		p.logger.Warn().Err(err).Str("path", p.deps.ManifestPath).Msg("could not update manifest")
		p.deps.Out.Warn("Could not save %s: %v", p.deps.ManifestPath, err)
		p.deps.Out.Detail("`homeproxy status` will not show this run's domains.")
	}
}
