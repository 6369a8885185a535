package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const ManifestFilename = "proxy.yaml"

var validate = validator.New()

// Manifest records what the last successful proxy run configured. The ACME
// email is reused by later runs.
type Manifest struct {
	Email       string    `yaml:"email,omitempty" validate:"omitempty,email"`
	DNSProvider string    `yaml:"dns_provider,omitempty" validate:"omitempty,alphanum,lowercase"`
	PublicIP    string    `yaml:"public_ip,omitempty" validate:"omitempty,ipv4"`
	Domains     []string  `yaml:"domains,omitempty" validate:"dive,fqdn"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}

// ValidEmail reports whether s is an acceptable ACME contact address.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// LoadManifest reads a manifest from disk. A missing file yields an empty
// manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return &m, nil
}

// WriteManifest writes the manifest to disk with owner-only permissions.
func WriteManifest(m *Manifest, path string) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	header := "# homeproxy manifest.\n" +
		"# Written by `homeproxy proxy`. The email is reused for Let's Encrypt registration.\n\n"

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(header+string(data)), 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}
