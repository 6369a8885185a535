package dns

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/prompt"
)

// ListZones returns the account's zones. An API error or an empty account
// is fatal for the run.
func ListZones(ctx context.Context, p Provider) ([]Zone, error) {
	zones, err := p.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	if len(zones) == 0 {
		return nil, ErrNoZones
	}
	return zones, nil
}

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

func validateSubdomain(s string) error {
	s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
	if s == "" || subdomainPattern.MatchString(s) {
		return nil
	}
	return errors.New("use letters, digits and hyphens, e.g. app or api.v2")
}

// SelectDomains lets the operator choose zones and, per zone, an optional
// subdomain. Choosing nothing returns an empty slice and no error.
func SelectDomains(p prompt.Prompter, out *console.Console, zones []Zone) ([]Selection, error) {
	options := make([]string, len(zones))
	for i, z := range zones {
		options[i] = fmt.Sprintf("%s (%s)", z.Name, z.Status)
	}

	chosen, err := p.MultiSelect("Select the domains to route through the proxy", options)
	if err != nil {
		return nil, err
	}
	if len(chosen) == 0 {
		return []Selection{}, nil
	}

	selections := make([]Selection, 0, len(chosen))
	for _, i := range chosen {
		z := zones[i]
		domain := z.Name

		add, err := p.Confirm(fmt.Sprintf("Add a subdomain to %s?", z.Name), false)
		if err != nil {
			return nil, err
		}
		if add {
			sub, err := p.Ask("Subdomain (e.g. app, api)", "", validateSubdomain)
			if err != nil {
				return nil, err
			}
			sub = strings.Trim(strings.ToLower(strings.TrimSpace(sub)), ".")
			if sub != "" {
				domain = sub + "." + z.Name
			}
		}
		selections = append(selections, Selection{Domain: domain, ZoneID: z.ID, ZoneName: z.Name})
	}

	out.Success("Selected domains:")
	for _, s := range selections {
		out.Detail("• %s", s.Domain)
	}
	return selections, nil
}

// Domains returns the domain names of selections in order.
func Domains(selections []Selection) []string {
	names := make([]string, len(selections))
	for i, s := range selections {
		names[i] = s.Domain
	}
	return names
}
