package dns

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/prompt"
	"github.com/edvin/homeproxy/internal/prompt/prompttest"
)

func TestParseTokenFile(t *testing.T) {
	assert.Equal(t, "abc", parseTokenFile("abc\n"))
	assert.Equal(t, "abc", parseTokenFile("  abc  "))
	assert.Equal(t, "xyz", parseTokenFile("# saved\nOTHER=1\nCLOUDFLARE_TOKEN=xyz\n"))
	assert.Equal(t, "xyz", parseTokenFile(`CLOUDFLARE_TOKEN="xyz"`))
	assert.Equal(t, "", parseTokenFile("OTHER=1\n"))
	assert.Equal(t, "", parseTokenFile(""))
}

func TestTokenStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "homeproxy")
	store := &TokenStore{Path: filepath.Join(dir, "cloudflare_token")}

	require.NoError(t, store.Save("tok-1"))

	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestTokenStore_LegacyFallback(t *testing.T) {
	tmp := t.TempDir()
	legacy := filepath.Join(tmp, ".tayo")
	require.NoError(t, os.WriteFile(legacy, []byte("CLOUDFLARE_TOKEN=legacy-tok\n"), 0600))

	store := &TokenStore{Path: filepath.Join(tmp, "missing", "cloudflare_token"), LegacyPath: legacy}
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-tok", tok)
}

func TestTokenStore_LegacyDirectory(t *testing.T) {
	tmp := t.TempDir()
	legacy := filepath.Join(tmp, ".tayo")
	require.NoError(t, os.MkdirAll(legacy, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "cloudflare_token"), []byte("dir-tok\n"), 0o600))

	store := &TokenStore{Path: filepath.Join(tmp, "missing", "cloudflare_token"), LegacyPath: legacy}
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "dir-tok", tok)
}

func TestTokenStore_EmptyLegacyDirectory(t *testing.T) {
	tmp := t.TempDir()
	store := &TokenStore{Path: filepath.Join(tmp, "missing"), LegacyPath: tmp}
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestTokenStore_NothingStored(t *testing.T) {
	tmp := t.TempDir()
	store := &TokenStore{Path: filepath.Join(tmp, "a"), LegacyPath: filepath.Join(tmp, "b")}
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func verifyOnly(valid ...string) TokenVerifier {
	return func(_ context.Context, token string) error {
		for _, v := range valid {
			if token == v {
				return nil
			}
		}
		return errors.New("status 401")
	}
}

func newFlow(t *testing.T, verify TokenVerifier, p prompt.Prompter) *TokenFlow {
	return &TokenFlow{
		Store:    &TokenStore{Path: filepath.Join(t.TempDir(), "cfg", "cloudflare_token")},
		Verify:   verify,
		Prompter: p,
		Out:      console.Discard(),
		Logger:   zerolog.Nop(),
	}
}

func TestEnsureToken_UsesValidStoredToken(t *testing.T) {
	scripted := prompttest.NewScripted()
	flow := newFlow(t, verifyOnly("stored"), scripted)
	require.NoError(t, flow.Store.Save("stored"))

	tok, err := flow.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", tok)
	assert.Empty(t, scripted.Asked)
}

func TestEnsureToken_ReplacesInvalidStoredToken(t *testing.T) {
	flow := newFlow(t, verifyOnly("fresh"), prompttest.NewScripted("  fresh \n"))
	require.NoError(t, flow.Store.Save("expired"))

	tok, err := flow.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	saved, err := flow.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved)
}

func TestEnsureToken_EnvironmentOverride(t *testing.T) {
	flow := newFlow(t, verifyOnly("env"), prompttest.NewScripted())
	flow.EnvToken = "env"

	tok, err := flow.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env", tok)
	_, err = os.Stat(flow.Store.Path)
	assert.True(t, os.IsNotExist(err), "environment token must not be persisted")
}

func TestEnsureToken_RejectedEntryIsCredentialError(t *testing.T) {
	flow := newFlow(t, verifyOnly(), prompttest.NewScripted("bad"))

	_, err := flow.EnsureToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
	_, statErr := os.Stat(flow.Store.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureToken_EmptyEntryIsCredentialError(t *testing.T) {
	flow := newFlow(t, verifyOnly(), prompttest.NewScripted("   "))

	_, err := flow.EnsureToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}
