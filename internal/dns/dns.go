// Package dns authenticates against a DNS provider, lets the operator pick
// domains from the account's zones and converges one A record per domain
// onto the host's public address.
package dns

import (
	"context"
	"errors"
)

// RecordType is a DNS record type homeproxy manages.
type RecordType string

const (
	TypeA     RecordType = "A"
	TypeCNAME RecordType = "CNAME"
)

const (
	// DefaultTTL is the TTL of records homeproxy creates.
	DefaultTTL = 300
)

var (
	// ErrNoCredential means no usable API credential could be obtained.
	ErrNoCredential = errors.New("no usable DNS API credential")
	// ErrNoZones means the account has no zones to configure.
	ErrNoZones = errors.New("no zones in DNS account")
	// ErrCreateFailed means at least one record could not be created.
	ErrCreateFailed = errors.New("DNS record creation failed")
)

// Zone is a domain managed in the provider account.
type Zone struct {
	ID     string
	Name   string
	Status string
}

// Selection is one domain the operator chose to serve.
type Selection struct {
	Domain   string
	ZoneID   string
	ZoneName string
}

// Record is an A or CNAME record at a domain.
type Record struct {
	ID      string
	Type    RecordType
	Name    string
	Content string
	Proxied bool
	TTL     int
}

// Provider is a DNS hosting API.
type Provider interface {
	// Name identifies the provider in logs and the manifest.
	Name() string
	// Verify checks that the configured credential is accepted.
	Verify(ctx context.Context) error
	ListZones(ctx context.Context) ([]Zone, error)
	// ListRecords returns records of the given types at exactly name.
	ListRecords(ctx context.Context, zoneID, name string, types ...RecordType) ([]Record, error)
	CreateRecord(ctx context.Context, zoneID string, rec Record) (Record, error)
	UpdateRecord(ctx context.Context, zoneID, id, content string) error
	DeleteRecord(ctx context.Context, zoneID, id string) error
}

// Authenticator produces a provider with a verified credential.
type Authenticator interface {
	Authenticate(ctx context.Context) (Provider, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) (Provider, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context) (Provider, error) {
	return f(ctx)
}
