// Package traefik generates and runs the Traefik reverse proxy that
// terminates TLS for the selected domains and forwards them to the backend
// port on the host.
package traefik

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DefaultImage  = "traefik:v3.0"
	ContainerName = "traefik"
	NetworkName   = "traefik-net"
	CertResolver  = "myresolver"
	RedirectName  = "redirect-to-https"
	DashboardPort = 8080

	entryPointWeb       = "web"
	entryPointWebSecure = "websecure"
)

// Route is the generated routing for one domain.
type Route struct {
	Domain      string
	SafeName    string
	HTTPRouter  string
	HTTPSRouter string
	Service     string
	BackendURL  string
}

// SafeName turns a domain into a Traefik identifier.
func SafeName(domain string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(domain)
}

// BackendURL is where routed traffic goes: the host's backend port as seen
// from inside the proxy container.
func BackendURL(port int) string {
	return fmt.Sprintf("http://host.docker.internal:%d", port)
}

// Routes builds one Route per domain, in order.
func Routes(domains []string, backendPort int) []Route {
	routes := make([]Route, len(domains))
	for i, d := range domains {
		safe := SafeName(d)
		routes[i] = Route{
			Domain:      d,
			SafeName:    safe,
			HTTPRouter:  safe + "-http",
			HTTPSRouter: safe + "-https",
			Service:     safe + "-service",
			BackendURL:  BackendURL(backendPort),
		}
	}
	return routes
}

// Static configuration (config/traefik.yml).

type StaticConfig struct {
	API                   API                            `yaml:"api"`
	EntryPoints           map[string]EntryPoint          `yaml:"entryPoints"`
	Providers             Providers                      `yaml:"providers"`
	CertificatesResolvers map[string]CertificateResolver `yaml:"certificatesResolvers"`
	Log                   Log                            `yaml:"log"`
	AccessLog             AccessLog                      `yaml:"accessLog"`
}

type API struct {
	Dashboard bool `yaml:"dashboard"`
	Debug     bool `yaml:"debug"`
}

type EntryPoint struct {
	Address string          `yaml:"address"`
	HTTP    *EntryPointHTTP `yaml:"http,omitempty"`
}

type EntryPointHTTP struct {
	Redirections Redirections `yaml:"redirections"`
}

type Redirections struct {
	EntryPoint RedirectEntryPoint `yaml:"entryPoint"`
}

type RedirectEntryPoint struct {
	To        string `yaml:"to"`
	Scheme    string `yaml:"scheme"`
	Permanent bool   `yaml:"permanent"`
}

type Providers struct {
	Docker DockerProvider `yaml:"docker"`
	File   FileProvider   `yaml:"file"`
}

type DockerProvider struct {
	Endpoint         string `yaml:"endpoint"`
	ExposedByDefault bool   `yaml:"exposedByDefault"`
	Network          string `yaml:"network"`
	Watch            bool   `yaml:"watch"`
}

type FileProvider struct {
	Filename string `yaml:"filename"`
	Watch    bool   `yaml:"watch"`
}

type CertificateResolver struct {
	ACME ACME `yaml:"acme"`
}

type ACME struct {
	Email        string   `yaml:"email"`
	Storage      string   `yaml:"storage"`
	TLSChallenge struct{} `yaml:"tlsChallenge"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AccessLog struct {
	Format string `yaml:"format"`
}

// NewStaticConfig returns the proxy's static configuration.
func NewStaticConfig(email string) StaticConfig {
	return StaticConfig{
		API: API{Dashboard: true},
		EntryPoints: map[string]EntryPoint{
			entryPointWeb: {
				Address: ":80",
				HTTP: &EntryPointHTTP{Redirections: Redirections{EntryPoint: RedirectEntryPoint{
					To:        entryPointWebSecure,
					Scheme:    "https",
					Permanent: true,
				}}},
			},
			entryPointWebSecure: {Address: ":443"},
		},
		Providers: Providers{
			Docker: DockerProvider{
				Endpoint: "unix:///var/run/docker.sock",
				Network:  NetworkName,
				Watch:    true,
			},
			File: FileProvider{Filename: "/etc/traefik/dynamic.yml", Watch: true},
		},
		CertificatesResolvers: map[string]CertificateResolver{
			CertResolver: {ACME: ACME{Email: email, Storage: "/acme.json"}},
		},
		Log:       Log{Level: "INFO", Format: "json"},
		AccessLog: AccessLog{Format: "json"},
	}
}

// Dynamic configuration (config/dynamic.yml).

type DynamicConfig struct {
	HTTP DynamicHTTP `yaml:"http"`
}

type DynamicHTTP struct {
	Middlewares map[string]Middleware `yaml:"middlewares"`
	Routers     map[string]Router     `yaml:"routers"`
	Services    map[string]Service    `yaml:"services"`
}

type Middleware struct {
	RedirectScheme *RedirectScheme `yaml:"redirectScheme,omitempty"`
}

type RedirectScheme struct {
	Scheme    string `yaml:"scheme"`
	Permanent bool   `yaml:"permanent"`
}

type Router struct {
	Rule        string     `yaml:"rule"`
	EntryPoints []string   `yaml:"entryPoints"`
	Middlewares []string   `yaml:"middlewares,omitempty"`
	Service     string     `yaml:"service"`
	TLS         *RouterTLS `yaml:"tls,omitempty"`
}

type RouterTLS struct {
	CertResolver string `yaml:"certResolver"`
}

type Service struct {
	LoadBalancer LoadBalancer `yaml:"loadBalancer"`
}

type LoadBalancer struct {
	Servers []Server `yaml:"servers"`
}

type Server struct {
	URL string `yaml:"url"`
}

// NewDynamicConfig returns the routers and services for routes.
func NewDynamicConfig(routes []Route) DynamicConfig {
	cfg := DynamicConfig{HTTP: DynamicHTTP{
		Middlewares: map[string]Middleware{
			RedirectName: {RedirectScheme: &RedirectScheme{Scheme: "https", Permanent: true}},
		},
		Routers:  make(map[string]Router, 2*len(routes)),
		Services: make(map[string]Service, len(routes)),
	}}

	for _, r := range routes {
		rule := fmt.Sprintf("Host(`%s`)", r.Domain)
		cfg.HTTP.Routers[r.HTTPRouter] = Router{
			Rule:        rule,
			EntryPoints: []string{entryPointWeb},
			Middlewares: []string{RedirectName},
			Service:     r.Service,
		}
		cfg.HTTP.Routers[r.HTTPSRouter] = Router{
			Rule:        rule,
			EntryPoints: []string{entryPointWebSecure},
			Service:     r.Service,
			TLS:         &RouterTLS{CertResolver: CertResolver},
		}
		cfg.HTTP.Services[r.Service] = Service{LoadBalancer: LoadBalancer{
			Servers: []Server{{URL: r.BackendURL}},
		}}
	}
	return cfg
}

// Compose file (docker-compose.yml).

type ComposeFile struct {
	Services map[string]ComposeService `yaml:"services"`
	Networks map[string]ComposeNetwork `yaml:"networks"`
}

type ComposeService struct {
	Image         string   `yaml:"image"`
	ContainerName string   `yaml:"container_name"`
	Restart       string   `yaml:"restart"`
	SecurityOpt   []string `yaml:"security_opt"`
	Networks      []string `yaml:"networks"`
	Ports         []string `yaml:"ports"`
	ExtraHosts    []string `yaml:"extra_hosts"`
	Volumes       []string `yaml:"volumes"`
	Labels        []string `yaml:"labels"`
}

type ComposeNetwork struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
}

// ComposeOptions parameterize the compose file.
type ComposeOptions struct {
	Image string
	// Dir is the proxy directory on the host.
	Dir string
	// DashboardAuth is a user:bcrypt-hash pair as produced by DashboardAuth.
	DashboardAuth string
}

// NewComposeFile returns the compose project running the proxy.
func NewComposeFile(opts ComposeOptions) ComposeFile {
	image := opts.Image
	if image == "" {
		image = DefaultImage
	}
	return ComposeFile{
		Services: map[string]ComposeService{
			"traefik": {
				Image:         image,
				ContainerName: ContainerName,
				Restart:       "unless-stopped",
				SecurityOpt:   []string{"no-new-privileges:true"},
				Networks:      []string{NetworkName},
				Ports:         []string{"80:80", "443:443", fmt.Sprintf("%d:8080", DashboardPort)},
				ExtraHosts:    []string{"host.docker.internal:host-gateway"},
				Volumes: []string{
					"/var/run/docker.sock:/var/run/docker.sock:ro",
					filepath.Join(opts.Dir, "config", "traefik.yml") + ":/etc/traefik/traefik.yml:ro",
					filepath.Join(opts.Dir, "config", "dynamic.yml") + ":/etc/traefik/dynamic.yml:ro",
					filepath.Join(opts.Dir, "acme.json") + ":/acme.json",
				},
				Labels: []string{
					"traefik.enable=true",
					"traefik.http.routers.dashboard.rule=Host(`traefik.localhost`)",
					"traefik.http.routers.dashboard.service=api@internal",
					"traefik.http.routers.dashboard.middlewares=auth",
					"traefik.http.middlewares.auth.basicauth.users=" + escapeCompose(opts.DashboardAuth),
				},
			},
		},
		Networks: map[string]ComposeNetwork{
			NetworkName: {Name: NetworkName, Driver: "bridge"},
		},
	}
}

// DashboardAuth returns "user:hash" with a bcrypt hash of password.
func DashboardAuth(user, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash dashboard password: %w", err)
	}
	return user + ":" + string(hash), nil
}

// escapeCompose doubles $ so compose does not interpolate it.
func escapeCompose(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

func marshal(header string, v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte(header), data...), nil
}
