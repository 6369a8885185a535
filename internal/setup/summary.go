package setup

import (
	"fmt"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/netprobe"
	"github.com/edvin/homeproxy/internal/traefik"
)

// DomainURLs returns the http and https URLs of domain, appending the
// external ports when the router uses custom ones.
func DomainURLs(domain string, info netprobe.Info) (string, string) {
	if !info.CustomPorts {
		return "http://" + domain, "https://" + domain
	}
	return fmt.Sprintf("http://%s:%d", domain, info.ExternalHTTP), fmt.Sprintf("https://%s:%d", domain, info.ExternalHTTPS)
}

// PrintSummary prints the final report of a run.
func PrintSummary(out *console.Console, s *Summary) {
	out.Blank()
	out.Rule(60)
	out.Success("Proxy setup complete")
	out.Rule(60)

	out.Step("Summary")
	out.Plain("Public IP:   %s", s.Network.PublicIP)
	out.Plain("Internal IP: %s", s.Network.InternalIP)
	out.Plain("Traefik:     ports %d and %d", netprobe.ProxyHTTPPort, netprobe.ProxyHTTPSPort)
	out.Plain("Dashboard:   http://localhost:%d", traefik.DashboardPort)

	out.Step("Active domains")
	for _, d := range s.Domains {
		httpURL, httpsURL := DomainURLs(d, s.Network)
		out.Info("• %s", d)
		out.Detail("HTTP:  %s", httpURL)
		out.Detail("HTTPS: %s", httpsURL)
	}

	if s.Network.CustomPorts {
		out.Warn("Set up port forwarding on your router:")
		netprobe.PrintForwardingGuide(out, s.Network)
	}
}
