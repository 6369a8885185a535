package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/edvin/homeproxy/internal/backup"
	"github.com/edvin/homeproxy/internal/config"
	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/dns"
	"github.com/edvin/homeproxy/internal/docker"
	"github.com/edvin/homeproxy/internal/logging"
	"github.com/edvin/homeproxy/internal/metrics"
	"github.com/edvin/homeproxy/internal/netprobe"
	"github.com/edvin/homeproxy/internal/placeholder"
	"github.com/edvin/homeproxy/internal/prompt"
	"github.com/edvin/homeproxy/internal/setup"
	"github.com/edvin/homeproxy/internal/shell"
	"github.com/edvin/homeproxy/internal/traefik"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "proxy":
		fs := flag.NewFlagSet("proxy", flag.ExitOnError)
		email := fs.String("email", "", "Email address for Let's Encrypt certificates")
		provider := fs.String("provider", cfg.DNSProvider, "DNS provider: cloudflare or route53")
		port := fs.Int("port", cfg.BackendPort, "Host port of the backend application")
		debug := fs.Bool("debug", cfg.Debug, "Enable debug logging")
		fs.Parse(os.Args[2:])

		cfg.DNSProvider = *provider
		cfg.BackendPort = *port
		if *debug {
			cfg.Debug = true
			cfg.LogLevel = "debug"
		}

		code := runProxy(ctx, cfg, *email)
		stop()
		os.Exit(code)

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		fs.Parse(os.Args[2:])

		if err := runStatus(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			stop()
			os.Exit(1)
		}

	case "backup":
		fs := flag.NewFlagSet("backup", flag.ExitOnError)
		bucket := fs.String("bucket", cfg.BackupS3Bucket, "Destination S3 bucket")
		prefix := fs.String("prefix", "homeproxy", "Key prefix inside the bucket")
		fs.Parse(os.Args[2:])

		if *bucket == "" {
			fmt.Fprintln(os.Stderr, "Error: --bucket or BACKUP_S3_BUCKET is required")
			fs.Usage()
			stop()
			os.Exit(1)
		}

		if err := runBackup(ctx, cfg, *bucket, *prefix); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			stop()
			os.Exit(1)
		}

	case "version":
		fmt.Println("homeproxy", version)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		stop()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: homeproxy <command> [flags]

Commands:
  proxy     Point DNS at this host and run Traefik with HTTPS in front of your app
            --email E      Let's Encrypt contact (default: saved or prompted)
            --provider P   cloudflare or route53 (default $DNS_PROVIDER)
            --port N       backend port (default $BACKEND_PORT or 3000)
            --debug        verbose logging
  status    Show Docker, proxy and placeholder state and the configured domains
  backup    Upload the proxy configuration to S3
            --bucket B     destination bucket (default $BACKUP_S3_BUCKET)
            --prefix P     key prefix (default homeproxy)
  version   Print the version`)
}

func newRuntime(logger zerolog.Logger) (*docker.Runtime, error) {
	engine, err := docker.NewSDKEngine()
	if err != nil {
		return nil, err
	}
	return docker.NewRuntime(logger, engine, shell.NewExecRunner()), nil
}

func runProxy(ctx context.Context, cfg *config.Config, email string) int {
	logger := logging.NewLogger(cfg)
	out := console.Stdout()
	prompter := prompt.NewTerminal(os.Stdout)

	runtime, err := newRuntime(logger)
	if err != nil {
		out.Fail("Could not create a Docker client: %v", err)
		return setup.KindRuntime.ExitCode()
	}

	auth, err := authenticator(cfg, logger, out, prompter)
	if err != nil {
		out.Fail("%v", err)
		return setup.KindCredential.ExitCode()
	}

	run := metrics.NewRun()
	pipeline := setup.NewPipeline(setup.Deps{
		Logger:      logger,
		Out:         out,
		Prompter:    prompter,
		Auth:        auth,
		Network:     netprobe.NewProber(logger, out, prompter),
		Runtime:     runtime,
		Placeholder: placeholder.NewService(logger, runtime, out, cfg.PlaceholderDir(), cfg.BackendPort),
		Proxy: traefik.NewConfigurator(logger, runtime, prompter, out, traefik.Options{
			Dir:               cfg.ProxyDir(),
			ManifestPath:      cfg.ManifestFile(),
			Image:             cfg.ProxyImage,
			BackendPort:       cfg.BackendPort,
			DashboardUser:     cfg.DashboardUser,
			DashboardPassword: cfg.DashboardPassword,
		}),
		ManifestPath: cfg.ManifestFile(),
		Metrics:      run,
	}, setup.Options{Email: email})

	_, err = pipeline.Run(ctx)

	run.Finish(err)
	if cfg.MetricsFile != "" {
		if werr := run.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Warn().Err(werr).Str("path", cfg.MetricsFile).Msg("could not write metrics")
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			out.Warn("Interrupted")
		} else {
			out.Fail("%v", err)
		}
	}
	return setup.ExitCode(err)
}

// authenticator returns the credential source for the configured provider.
func authenticator(cfg *config.Config, logger zerolog.Logger, out *console.Console, p prompt.Prompter) (dns.Authenticator, error) {
	switch cfg.DNSProvider {
	case "cloudflare":
		flow := &dns.TokenFlow{
			Store: &dns.TokenStore{Path: cfg.TokenFile(), LegacyPath: cfg.LegacyTokenFile},
			Verify: func(ctx context.Context, token string) error {
				return dns.NewCloudflare(cfg.CloudflareAPIURL, token).Verify(ctx)
			},
			Prompter: p,
			Out:      out,
			Logger:   logger,
			EnvToken: cfg.CloudflareToken,
		}
		return dns.AuthenticatorFunc(func(ctx context.Context) (dns.Provider, error) {
			token, err := flow.EnsureToken(ctx)
			if err != nil {
				return nil, err
			}
			return dns.NewCloudflare(cfg.CloudflareAPIURL, token), nil
		}), nil

	case "route53":
		return dns.AuthenticatorFunc(func(ctx context.Context) (dns.Provider, error) {
			r, err := dns.NewRoute53FromEnv(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", dns.ErrNoCredential, err)
			}
			if err := r.Verify(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", dns.ErrNoCredential, err)
			}
			out.Success("AWS credentials verified")
			return r, nil
		}), nil

	default:
		return nil, fmt.Errorf("unknown DNS provider %q (want cloudflare or route53)", cfg.DNSProvider)
	}
}

func runStatus(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(cfg)
	out := console.Stdout()

	runtime, err := newRuntime(logger)
	if err != nil {
		return err
	}

	out.Step("Docker")
	if err := runtime.Preflight(ctx); err != nil {
		out.Fail("%v", err)
	} else {
		out.Success("Docker is running")
		runtime.Report(ctx, out, traefik.ContainerName, netprobe.ProxyHTTPPort, netprobe.ProxyHTTPSPort)
		runtime.Report(ctx, out, placeholder.ContainerName, 80)
		if runtime.HostPortInUse(ctx, cfg.BackendPort) {
			out.Success("A host service is listening on port %d", cfg.BackendPort)
		}
	}

	out.Step("Domains")
	m, err := config.LoadManifest(cfg.ManifestFile())
	if err != nil {
		return err
	}
	if len(m.Domains) == 0 {
		out.Info("No domains configured. Run `homeproxy proxy` first.")
		return nil
	}
	for _, d := range m.Domains {
		out.Info("• %s", d)
	}
	out.Detail("provider %s, public IP %s, updated %s", m.DNSProvider, m.PublicIP, m.UpdatedAt.Local().Format(time.RFC1123))
	return nil
}

func runBackup(ctx context.Context, cfg *config.Config, bucket, prefix string) error {
	logger := logging.NewLogger(cfg)
	out := console.Stdout()

	client := backup.NewS3Client(backup.S3Options{
		Endpoint:  cfg.BackupS3Endpoint,
		Region:    cfg.BackupS3Region,
		AccessKey: cfg.BackupS3AccessKey,
		SecretKey: cfg.BackupS3SecretKey,
	})
	uploader := backup.NewUploader(logger, client, bucket, prefix)

	out.Step("Uploading %s to s3://%s", cfg.ConfigDir, bucket)
	keys, err := uploader.Upload(ctx, cfg.ConfigDir, time.Now())
	if err != nil {
		return err
	}
	for _, k := range keys {
		out.Detail("%s", k)
	}
	out.Success("Uploaded %d files", len(keys))
	return nil
}
