// Package netprobe discovers the host's public and LAN addresses and asks
// how the router forwards HTTP and HTTPS to it.
package netprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/prompt"
)

// DefaultEndpoints answer a plain-text GET with the caller's public IPv4
// address. They are tried in order.
var DefaultEndpoints = []string{
	"https://ifconfig.me/ip",
	"https://ipecho.net/plain",
	"https://icanhazip.com",
}

const (
	// ProxyHTTPPort and ProxyHTTPSPort are the host ports the proxy binds.
	ProxyHTTPPort  = 80
	ProxyHTTPSPort = 443

	defaultCustomHTTP  = 8080
	defaultCustomHTTPS = 8443
)

// Info is the network picture of one run.
type Info struct {
	PublicIP      string
	InternalIP    string
	ExternalHTTP  int
	ExternalHTTPS int
	CustomPorts   bool
}

// Interface is one network interface as seen by DetectInternalIP.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// InterfaceSource lists the host's interfaces.
type InterfaceSource func() ([]Interface, error)

// SystemInterfaces reads interfaces from the operating system.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		result = append(result, Interface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return result, nil
}

// Prober detects addresses, falling back to the operator when detection
// fails.
type Prober struct {
	logger     zerolog.Logger
	out        *console.Console
	prompter   prompt.Prompter
	httpClient *http.Client
	endpoints  []string
	interfaces InterfaceSource
}

// NewProber creates a Prober using DefaultEndpoints and SystemInterfaces.
func NewProber(logger zerolog.Logger, out *console.Console, p prompt.Prompter) *Prober {
	return &Prober{
		logger:     logger.With().Str("component", "netprobe").Logger(),
		out:        out,
		prompter:   p,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		endpoints:  DefaultEndpoints,
		interfaces: SystemInterfaces,
	}
}

// WithEndpoints overrides the public IP echo endpoints.
func (p *Prober) WithEndpoints(endpoints ...string) *Prober {
	p.endpoints = endpoints
	return p
}

// WithInterfaces overrides the interface source.
func (p *Prober) WithInterfaces(src InterfaceSource) *Prober {
	p.interfaces = src
	return p
}

// ValidIPv4 reports whether s is exactly four dot-separated decimal octets
// in canonical form: 0-255, no sign, whitespace or leading zeros.
func ValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 || strconv.Itoa(n) != part {
			return false
		}
	}
	return true
}

func validateIPv4(s string) error {
	if !ValidIPv4(s) {
		return errors.New("enter an IPv4 address such as 203.0.113.10")
	}
	return nil
}

// Detect fills PublicIP and InternalIP.
func (p *Prober) Detect(ctx context.Context) (Info, error) {
	p.out.Step("Detecting network addresses")

	public, err := p.DetectPublicIP(ctx)
	if err != nil {
		return Info{}, err
	}
	p.out.Detail("public IP:   %s", public)

	internal, err := p.DetectInternalIP()
	if err != nil {
		return Info{}, err
	}
	p.out.Detail("internal IP: %s", internal)

	return Info{PublicIP: public, InternalIP: internal}, nil
}

// DetectPublicIP asks each endpoint in turn and returns the first valid
// address. When none answers, the operator is asked.
func (p *Prober) DetectPublicIP(ctx context.Context) (string, error) {
	for _, endpoint := range p.endpoints {
		ip, err := p.fetch(ctx, endpoint)
		if err != nil {
			p.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("public IP probe failed")
			continue
		}
		if ValidIPv4(ip) {
			p.logger.Debug().Str("endpoint", endpoint).Str("ip", ip).Msg("public IP detected")
			return ip, nil
		}
		p.logger.Debug().Str("endpoint", endpoint).Str("body", ip).Msg("public IP probe returned garbage")
	}

	p.out.Warn("Could not detect the public IP automatically")
	return p.prompter.Ask("Public IP address", "", validateIPv4)
}

func (p *Prober) fetch(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "curl/8")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}

// skipInterface reports container bridges and virtual pairs.
func skipInterface(name string) bool {
	for _, prefix := range []string{"docker", "br-", "veth"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DetectInternalIP returns the first IPv4 address of an up, non-loopback,
// non-container interface, asking the operator when there is none.
func (p *Prober) DetectInternalIP() (string, error) {
	ifaces, err := p.interfaces()
	if err != nil {
		p.logger.Debug().Err(err).Msg("list interfaces failed")
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || skipInterface(iface.Name) {
			continue
		}
		for _, addr := range iface.Addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if v4 := ip.To4(); v4 != nil && !v4.IsLoopback() {
				p.logger.Debug().Str("interface", iface.Name).Str("ip", v4.String()).Msg("internal IP detected")
				return v4.String(), nil
			}
		}
	}

	p.out.Warn("Could not detect the internal IP automatically")
	return p.prompter.Ask("Internal IP address (e.g. 192.168.1.100)", "", validateIPv4)
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return errors.New("enter a port between 1 and 65535")
	}
	return nil
}

// NegotiatePorts asks whether the router forwards 80/443 directly or maps
// custom external ports onto them. The proxy always binds 80 and 443.
func (p *Prober) NegotiatePorts(info Info) (Info, error) {
	p.out.Step("Configuring external ports")
	p.out.Detail("The proxy always listens on %d and %d.", ProxyHTTPPort, ProxyHTTPSPort)

	choice, err := p.prompter.Select("How does your router forward traffic?", []string{
		"Forward 80 and 443 directly (default)",
		fmt.Sprintf("Forward other ports (e.g. %d→%d, %d→%d)", defaultCustomHTTP, ProxyHTTPPort, defaultCustomHTTPS, ProxyHTTPSPort),
	}, 0)
	if err != nil {
		return info, err
	}

	if choice == 0 {
		info.ExternalHTTP, info.ExternalHTTPS, info.CustomPorts = ProxyHTTPPort, ProxyHTTPSPort, false
		p.out.Success("Using standard ports %d and %d", ProxyHTTPPort, ProxyHTTPSPort)
		return info, nil
	}

	httpPort, err := p.prompter.Ask("External HTTP port", strconv.Itoa(defaultCustomHTTP), validatePort)
	if err != nil {
		return info, err
	}
	httpsPort, err := p.prompter.Ask("External HTTPS port", strconv.Itoa(defaultCustomHTTPS), validatePort)
	if err != nil {
		return info, err
	}
	info.ExternalHTTP, _ = strconv.Atoi(httpPort)
	info.ExternalHTTPS, _ = strconv.Atoi(httpsPort)
	info.CustomPorts = true
	p.out.Success("External ports set")
	p.out.Detail("HTTP:  %d", info.ExternalHTTP)
	p.out.Detail("HTTPS: %d", info.ExternalHTTPS)
	return info, nil
}

// ForwardingGuide returns the router rules the operator must add. It is
// empty when the router forwards the standard ports.
func ForwardingGuide(info Info) []string {
	if !info.CustomPorts {
		return nil
	}
	return []string{
		fmt.Sprintf("external port %d → %s:%d", info.ExternalHTTP, info.InternalIP, ProxyHTTPPort),
		fmt.Sprintf("external port %d → %s:%d", info.ExternalHTTPS, info.InternalIP, ProxyHTTPSPort),
	}
}

// PrintForwardingGuide writes the guide framed by rules.
func PrintForwardingGuide(out *console.Console, info Info) {
	lines := ForwardingGuide(info)
	if len(lines) == 0 {
		return
	}
	out.Step("Router port forwarding")
	out.Rule(50)
	for _, l := range lines {
		out.Plain("%s", l)
	}
	out.Rule(50)
	out.Info("Add these rules in your router's admin page (often http://192.168.1.1).")
}
