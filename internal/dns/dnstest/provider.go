// Package dnstest provides an in-memory dns.Provider for tests.
package dnstest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/edvin/homeproxy/internal/dns"
)

var _ dns.Provider = (*Provider)(nil)

// Provider is an in-memory dns.Provider. Calls records every
// mutating call as "create A example.com 1.2.3.4", "update <id> <content>"
// or "delete <id>".
type Provider struct {
	mu sync.Mutex

	Zones   []dns.Zone
	Records map[string][]dns.Record // by zone id
	Calls   []string

	VerifyErr error
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	nextID int
}

func NewProvider(zones ...dns.Zone) *Provider {
	return &Provider{Zones: zones, Records: make(map[string][]dns.Record)}
}

// Seed adds an existing record and returns its id.
func (f *Provider) Seed(zoneID string, rec dns.Record) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = fmt.Sprintf("rec%d", f.nextID)
	f.Records[zoneID] = append(f.Records[zoneID], rec)
	return rec.ID
}

// Mutations returns the number of create, update and delete calls.
func (f *Provider) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *Provider) Name() string { return "fake" }

func (f *Provider) Verify(context.Context) error { return f.VerifyErr }

func (f *Provider) ListZones(context.Context) ([]dns.Zone, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Zones, nil
}

func (f *Provider) ListRecords(_ context.Context, zoneID, name string, types ...dns.RecordType) ([]dns.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []dns.Record
	for _, t := range types {
		for _, r := range f.Records[zoneID] {
			if r.Type == t && strings.EqualFold(r.Name, name) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *Provider) CreateRecord(_ context.Context, zoneID string, rec dns.Record) (dns.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("create %s %s %s", rec.Type, rec.Name, rec.Content))
	if f.CreateErr != nil {
		return dns.Record{}, f.CreateErr
	}
	f.nextID++
	rec.ID = fmt.Sprintf("rec%d", f.nextID)
	f.Records[zoneID] = append(f.Records[zoneID], rec)
	return rec, nil
}

func (f *Provider) UpdateRecord(_ context.Context, zoneID, id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("update %s %s", id, content))
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	for i := range f.Records[zoneID] {
		if f.Records[zoneID][i].ID == id {
			f.Records[zoneID][i].Content = content
			return nil
		}
	}
	return fmt.Errorf("record %s not found", id)
}

func (f *Provider) DeleteRecord(_ context.Context, zoneID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "delete "+id)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	recs := f.Records[zoneID]
	for i := range recs {
		if recs[i].ID == id {
			f.Records[zoneID] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("record %s not found", id)
}
