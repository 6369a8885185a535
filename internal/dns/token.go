package dns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/prompt"
)

const (
	// TokenCreationURL is where Cloudflare API tokens are created.
	TokenCreationURL = "https://dash.cloudflare.com/profile/api-tokens"

	legacyTokenKey = "CLOUDFLARE_TOKEN"
	// legacyTokenName is the token file inside a legacy config directory.
	legacyTokenName = "cloudflare_token"
)

// TokenScopes are the permissions a token needs, as Cloudflare labels them.
var TokenScopes = []string{
	"Zone → Zone → Read",
	"Zone → DNS → Edit",
}

// TokenStore persists the API token. Path holds the raw token. LegacyPath is
// only read: either a KEY=value file or a directory holding cloudflare_token.
type TokenStore struct {
	Path       string
	LegacyPath string
}

// Load returns the stored token, or "" when none is stored.
func (s *TokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.Path)
	switch {
	case err == nil:
		if tok := parseTokenFile(string(data)); tok != "" {
			return tok, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read token file: %w", err)
	}

	if s.LegacyPath == "" {
		return "", nil
	}
	legacy := s.LegacyPath
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		legacy = filepath.Join(legacy, legacyTokenName)
	}
	data, err = os.ReadFile(legacy)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read legacy token file: %w", err)
	}
	return parseTokenFile(string(data)), nil
}

// parseTokenFile accepts a raw token or a CLOUDFLARE_TOKEN=value line.
func parseTokenFile(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	var first string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok {
			if strings.TrimSpace(key) == legacyTokenKey {
				return strings.Trim(strings.TrimSpace(value), `"'`)
			}
			continue
		}
		if first == "" {
			first = line
		}
	}
	return first
}

// Save writes token to Path with 0600 permissions in a 0700 directory.
func (s *TokenStore) Save(token string) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return fmt.Errorf("chmod token directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.Path, 0600); err != nil {
		return fmt.Errorf("chmod token file: %w", err)
	}
	return nil
}

// TokenVerifier checks a candidate token against the provider.
type TokenVerifier func(ctx context.Context, token string) error

// TokenFlow obtains a verified API token: from the environment, then the
// store, then the operator.
type TokenFlow struct {
	Store    *TokenStore
	Verify   TokenVerifier
	Prompter prompt.Prompter
	Out      *console.Console
	Logger   zerolog.Logger
	// EnvToken overrides the stored token when it verifies.
	EnvToken string
}

// EnsureToken returns a token the provider accepts, persisting a newly
// entered one. It fails with ErrNoCredential when none can be obtained.
func (f *TokenFlow) EnsureToken(ctx context.Context) (string, error) {
	logger := f.Logger.With().Str("component", "token").Logger()

	if f.EnvToken != "" {
		f.Out.Step("Checking API token from the environment")
		err := f.Verify(ctx, f.EnvToken)
		if err == nil {
			f.Out.Success("Token from the environment is valid")
			return f.EnvToken, nil
		}
		logger.Debug().Err(err).Msg("environment token rejected")
		f.Out.Warn("Token from the environment was rejected")
	}

	stored, err := f.Store.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("could not read stored token")
	}
	if stored != "" {
		f.Out.Step("Checking the saved API token")
		err := f.Verify(ctx, stored)
		if err == nil {
			f.Out.Success("Saved API token is valid")
			return stored, nil
		}
		logger.Debug().Err(err).Msg("stored token rejected")
		f.Out.Warn("The saved token has expired or is invalid")
	} else {
		f.Out.Step("An API token is required")
	}

	f.printGuide()

	token, err := f.Prompter.Secret("Paste the API token")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		f.Out.Fail("No token entered")
		return "", fmt.Errorf("%w: no token entered", ErrNoCredential)
	}
	if err := f.Verify(ctx, token); err != nil {
		logger.Debug().Err(err).Msg("entered token rejected")
		f.Out.Fail("The token is invalid or lacks permissions")
		return "", fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	f.Out.Success("Token verified")

	if err := f.Store.Save(token); err != nil {
		return "", err
	}
	f.Out.Success("API token saved")
	logger.Info().Str("path", f.Store.Path).Msg("token saved")
	return token, nil
}

func (f *TokenFlow) printGuide() {
	f.Out.Info("Create a token at %s", TokenCreationURL)
	f.Out.Info("with these permissions:")
	for _, s := range TokenScopes {
		f.Out.Plain("• %s", s)
	}
	f.Out.Detail("(Zone Resources: Include → All zones)")
	f.Out.Blank()
}
