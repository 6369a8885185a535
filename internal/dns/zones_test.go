package dns_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/dns"
	"github.com/edvin/homeproxy/internal/dns/dnstest"
	"github.com/edvin/homeproxy/internal/prompt/prompttest"
)

func TestListZones(t *testing.T) {
	_, err := dns.ListZones(context.Background(), dnstest.NewProvider())
	assert.ErrorIs(t, err, dns.ErrNoZones)

	p := dnstest.NewProvider()
	p.ListErr = errors.New("status 500")
	_, err = dns.ListZones(context.Background(), p)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, dns.ErrNoZones)

	zones, err := dns.ListZones(context.Background(), dnstest.NewProvider(exampleZone))
	require.NoError(t, err)
	assert.Len(t, zones, 1)
}

func TestSelectDomains(t *testing.T) {
	zones := []dns.Zone{
		{ID: "z1", Name: "example.com", Status: "active"},
		{ID: "z2", Name: "example.org", Status: "active"},
		{ID: "z3", Name: "example.net", Status: "pending"},
	}
	scripted := prompttest.NewScripted([]int{0, 2}, false, true, "App")

	selections, err := dns.SelectDomains(scripted, console.Discard(), zones)
	require.NoError(t, err)
	assert.Equal(t, []dns.Selection{
		{Domain: "example.com", ZoneID: "z1", ZoneName: "example.com"},
		{Domain: "app.example.net", ZoneID: "z3", ZoneName: "example.net"},
	}, selections)
	assert.Equal(t, []string{"example.com", "app.example.net"}, dns.Domains(selections))
}

func TestSelectDomains_EmptySubdomainKeepsRoot(t *testing.T) {
	scripted := prompttest.NewScripted([]int{0}, true, "")
	selections, err := dns.SelectDomains(scripted, console.Discard(), []dns.Zone{exampleZone})
	require.NoError(t, err)
	assert.Equal(t, "example.com", selections[0].Domain)
}

func TestSelectDomains_NothingChosen(t *testing.T) {
	selections, err := dns.SelectDomains(prompttest.NewScripted([]int{}), console.Discard(), []dns.Zone{exampleZone})
	require.NoError(t, err)
	assert.NotNil(t, selections)
	assert.Empty(t, selections)
}
