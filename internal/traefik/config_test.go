package traefik

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

func TestSafeName(t *testing.T) {
	assert.Equal(t, "example-com", SafeName("example.com"))
	assert.Equal(t, "my-app-example-com", SafeName("my_app.example.com"))
}

func TestRoutes_OrderPreserving(t *testing.T) {
	routes := Routes([]string{"b.example.com", "a.example.com"}, 3000)
	require.Len(t, routes, 2)
	assert.Equal(t, Route{
		Domain:      "b.example.com",
		SafeName:    "b-example-com",
		HTTPRouter:  "b-example-com-http",
		HTTPSRouter: "b-example-com-https",
		Service:     "b-example-com-service",
		BackendURL:  "http://host.docker.internal:3000",
	}, routes[0])
	assert.Equal(t, "a.example.com", routes[1].Domain)
}

func TestDynamicConfig_TwoDomains(t *testing.T) {
	cfg := NewDynamicConfig(Routes([]string{"example.com", "app.example.org"}, 3000))

	assert.Len(t, cfg.HTTP.Routers, 4)
	assert.Len(t, cfg.HTTP.Services, 2)

	var httpRouters, httpsRouters int
	for name, r := range cfg.HTTP.Routers {
		switch {
		case strings.HasSuffix(name, "-https"):
			httpsRouters++
			assert.Equal(t, []string{"websecure"}, r.EntryPoints)
			require.NotNil(t, r.TLS)
			assert.Equal(t, CertResolver, r.TLS.CertResolver)
		case strings.HasSuffix(name, "-http"):
			httpRouters++
			assert.Equal(t, []string{"web"}, r.EntryPoints)
			assert.Equal(t, []string{RedirectName}, r.Middlewares)
			assert.Nil(t, r.TLS)
		}
	}
	assert.Equal(t, 2, httpRouters)
	assert.Equal(t, 2, httpsRouters)

	r := cfg.HTTP.Routers["app-example-org-https"]
	assert.Equal(t, "Host(`app.example.org`)", r.Rule)
	assert.Equal(t, "app-example-org-service", r.Service)
	assert.Equal(t, "http://host.docker.internal:3000", cfg.HTTP.Services["app-example-org-service"].LoadBalancer.Servers[0].URL)

	mw := cfg.HTTP.Middlewares[RedirectName]
	require.NotNil(t, mw.RedirectScheme)
	assert.Equal(t, "https", mw.RedirectScheme.Scheme)
	assert.True(t, mw.RedirectScheme.Permanent)
}

func TestDynamicConfig_YAMLShape(t *testing.T) {
	data, err := yaml.Marshal(NewDynamicConfig(Routes([]string{"example.com"}, 3000)))
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "redirect-to-https:")
	assert.Contains(t, out, "redirectScheme:")
	assert.Contains(t, out, "example-com-http:")
	assert.Contains(t, out, "certResolver: myresolver")
	assert.Contains(t, out, "url: http://host.docker.internal:3000")
}

func TestStaticConfig(t *testing.T) {
	data, err := yaml.Marshal(NewStaticConfig("ops@example.com"))
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))

	resolver := parsed["certificatesResolvers"].(map[string]any)["myresolver"].(map[string]any)["acme"].(map[string]any)
	assert.Equal(t, "ops@example.com", resolver["email"])
	assert.Equal(t, "/acme.json", resolver["storage"])
	assert.Contains(t, resolver, "tlsChallenge")

	web := parsed["entryPoints"].(map[string]any)["web"].(map[string]any)
	assert.Equal(t, ":80", web["address"])
	docker := parsed["providers"].(map[string]any)["docker"].(map[string]any)
	assert.Equal(t, false, docker["exposedByDefault"])
	assert.Equal(t, NetworkName, docker["network"])
}

func TestComposeFile(t *testing.T) {
	auth, err := DashboardAuth("admin", "s3cret")
	require.NoError(t, err)

	compose := NewComposeFile(ComposeOptions{Dir: "/home/me/.config/homeproxy/traefik", DashboardAuth: auth})
	svc := compose.Services["traefik"]

	assert.Equal(t, DefaultImage, svc.Image)
	assert.Equal(t, ContainerName, svc.ContainerName)
	assert.Equal(t, "unless-stopped", svc.Restart)
	assert.Equal(t, []string{"80:80", "443:443", "8080:8080"}, svc.Ports)
	assert.Contains(t, svc.ExtraHosts, "host.docker.internal:host-gateway")
	assert.Contains(t, svc.Volumes, "/home/me/.config/homeproxy/traefik/acme.json:/acme.json")
	assert.Equal(t, NetworkName, compose.Networks[NetworkName].Name)

	var authLabel string
	for _, l := range svc.Labels {
		if strings.HasPrefix(l, "traefik.http.middlewares.auth.basicauth.users=") {
			authLabel = strings.TrimPrefix(l, "traefik.http.middlewares.auth.basicauth.users=")
		}
	}
	require.NotEmpty(t, authLabel)
	assert.True(t, strings.HasPrefix(authLabel, "admin:$$2"))

	hash := strings.ReplaceAll(strings.TrimPrefix(authLabel, "admin:"), "$$", "$")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}
