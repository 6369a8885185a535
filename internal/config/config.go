package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const configDirName = "homeproxy"

type Config struct {
	// ConfigDir holds the API token, the proxy manifest and all generated
	// Traefik files. Created with 0700 permissions.
	ConfigDir string
	// LegacyTokenFile is an older KEY=value credential file, or a directory
	// holding a cloudflare_token file, read when no token exists in ConfigDir.
	LegacyTokenFile string
	LogLevel        string
	Debug           bool

	DNSProvider      string
	CloudflareAPIURL string
	// CloudflareToken overrides the stored token when set.
	CloudflareToken string

	BackendPort       int
	ProxyImage        string
	DashboardUser     string
	DashboardPassword string

	MetricsFile string

	BackupS3Endpoint  string
	BackupS3Region    string
	BackupS3Bucket    string
	BackupS3AccessKey string
	BackupS3SecretKey string
}

func Load() (*Config, error) {
	dir, err := defaultConfigDir()
	if err != nil {
		return nil, err
	}
	home, _ := os.UserHomeDir()

	cfg := &Config{
		ConfigDir:         getEnv("HOMEPROXY_CONFIG_DIR", dir),
		LegacyTokenFile:   getEnv("HOMEPROXY_LEGACY_TOKEN_FILE", filepath.Join(home, ".tayo")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Debug:             getEnv("DEBUG", "") != "",
		DNSProvider:       getEnv("DNS_PROVIDER", "cloudflare"),
		CloudflareAPIURL:  getEnv("CLOUDFLARE_API_URL", "https://api.cloudflare.com/client/v4"),
		CloudflareToken:   getEnv("CLOUDFLARE_API_TOKEN", ""),
		ProxyImage:        getEnv("PROXY_IMAGE", "traefik:v3.0"),
		DashboardUser:     getEnv("DASHBOARD_USER", "admin"),
		DashboardPassword: getEnv("DASHBOARD_PASSWORD", "admin"),
		MetricsFile:       getEnv("METRICS_FILE", ""),
		BackupS3Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		BackupS3Region:    getEnv("BACKUP_S3_REGION", "us-east-1"),
		BackupS3Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
		BackupS3SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
	}

	port, err := strconv.Atoi(getEnv("BACKEND_PORT", "3000"))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid BACKEND_PORT %q", os.Getenv("BACKEND_PORT"))
	}
	cfg.BackendPort = port

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

// TokenFile is where the DNS provider API token is persisted.
func (c *Config) TokenFile() string {
	return filepath.Join(c.ConfigDir, "cloudflare_token")
}

// ProxyDir is the root of the generated Traefik configuration.
func (c *Config) ProxyDir() string {
	return filepath.Join(c.ConfigDir, "traefik")
}

// PlaceholderDir is the docker build context of the placeholder image.
func (c *Config) PlaceholderDir() string {
	return filepath.Join(c.ConfigDir, "welcome")
}

// ManifestFile is the persisted proxy manifest.
func (c *Config) ManifestFile() string {
	return filepath.Join(c.ConfigDir, ManifestFilename)
}

// defaultConfigDir returns $XDG_CONFIG_HOME/homeproxy, falling back to
// ~/.config/homeproxy.
func defaultConfigDir() (string, error) {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, configDirName), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
