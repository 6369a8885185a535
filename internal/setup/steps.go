// Package setup drives a `homeproxy proxy` run: an ordered list of steps
// from authentication to the final summary, each consuming the results of
// the ones before it.
package setup

// StepID identifies a step of the proxy workflow.
type StepID string

const (
	StepAuthenticate      StepID = "authenticate"
	StepDiscoverNetwork   StepID = "discover_network"
	StepCheckRuntime      StepID = "check_runtime"
	StepSelectDomains     StepID = "select_domains"
	StepReconcileDNS      StepID = "reconcile_dns"
	StepEnsurePlaceholder StepID = "ensure_placeholder"
	StepConfigureProxy    StepID = "configure_proxy"
	StepSummary           StepID = "summary"
)

// StepDef describes a step for status output.
type StepDef struct {
	ID          StepID
	Label       string
	Description string
}

// AllSteps returns the workflow steps in execution order.
func AllSteps() []StepDef {
	return []StepDef{
		{StepAuthenticate, "Authenticate", "Obtain and verify the DNS provider credential."},
		{StepDiscoverNetwork, "Discover network", "Detect public and internal addresses and the router's port forwarding."},
		{StepCheckRuntime, "Check container runtime", "Make sure Docker is installed and running and report proxy containers."},
		{StepSelectDomains, "Select domains", "Choose zones and optional subdomains to route."},
		{StepReconcileDNS, "Configure DNS", "Point one A record per domain at the public address."},
		{StepEnsurePlaceholder, "Ensure backend", "Serve a placeholder page on the backend port unless an app is already there."},
		{StepConfigureProxy, "Configure Traefik", "Write the proxy configuration and start or reload the proxy."},
		{StepSummary, "Summary", "Print the result and record it in the manifest."},
	}
}

// Label returns the human label of id.
func (id StepID) Label() string {
	for _, s := range AllSteps() {
		if s.ID == id {
			return s.Label
		}
	}
	return string(id)
}
