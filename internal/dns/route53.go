package dns

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// Route53API is the subset of the Route53 client used here.
type Route53API interface {
	ListHostedZones(ctx context.Context, in *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
	ListResourceRecordSets(ctx context.Context, in *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Route53 is a Provider backed by AWS Route53. Hosted zones are zones and
// each record set is one Record whose ID is "name|type". A multi-value set
// reports its values joined by commas.
type Route53 struct {
	client Route53API
}

// NewRoute53 wraps an existing client.
func NewRoute53(client Route53API) *Route53 {
	return &Route53{client: client}
}

// NewRoute53FromEnv builds a client from the default AWS credential chain.
func NewRoute53FromEnv(ctx context.Context) (*Route53, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewRoute53(route53.NewFromConfig(cfg)), nil
}

func (r *Route53) Name() string { return "route53" }

func (r *Route53) Verify(ctx context.Context) error {
	_, err := r.client.ListHostedZones(ctx, &route53.ListHostedZonesInput{MaxItems: aws.Int32(1)})
	if err != nil {
		return fmt.Errorf("list hosted zones: %w", err)
	}
	return nil
}

func (r *Route53) ListZones(ctx context.Context) ([]Zone, error) {
	var zones []Zone
	paginator := route53.NewListHostedZonesPaginator(r.client, &route53.ListHostedZonesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list hosted zones: %w", err)
		}
		for _, hz := range page.HostedZones {
			status := "public"
			if hz.Config != nil && hz.Config.PrivateZone {
				status = "private"
			}
			zones = append(zones, Zone{
				ID:     strings.TrimPrefix(aws.ToString(hz.Id), "/hostedzone/"),
				Name:   trimDot(aws.ToString(hz.Name)),
				Status: status,
			})
		}
	}
	return zones, nil
}

func (r *Route53) ListRecords(ctx context.Context, zoneID, name string, types ...RecordType) ([]Record, error) {
	var records []Record
	for _, t := range types {
		set, err := r.recordSet(ctx, zoneID, name, t)
		if err != nil {
			return nil, err
		}
		if set == nil {
			continue
		}
		records = append(records, Record{
			ID:      recordID(name, t),
			Type:    t,
			Name:    trimDot(aws.ToString(set.Name)),
			Content: setContent(set),
			TTL:     int(aws.ToInt64(set.TTL)),
		})
	}
	return records, nil
}

// setContent joins the values of a set. Alias sets have no values and are
// reported as ALIAS:<target> so they never match a plain address.
func setContent(set *r53types.ResourceRecordSet) string {
	if set.AliasTarget != nil {
		return aliasPrefix + trimDot(aws.ToString(set.AliasTarget.DNSName))
	}
	values := make([]string, 0, len(set.ResourceRecords))
	for _, rr := range set.ResourceRecords {
		values = append(values, trimDot(aws.ToString(rr.Value)))
	}
	return strings.Join(values, ",")
}

// recordSet returns the set of type t at exactly name, or nil.
func (r *Route53) recordSet(ctx context.Context, zoneID, name string, t RecordType) (*r53types.ResourceRecordSet, error) {
	out, err := r.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: r53types.RRType(t),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("list record sets %s %s: %w", name, t, err)
	}
	// Listing starts at name; the first set may belong to a later name.
	for i := range out.ResourceRecordSets {
		set := out.ResourceRecordSets[i]
		if strings.EqualFold(trimDot(aws.ToString(set.Name)), trimDot(name)) && string(set.Type) == string(t) {
			return &set, nil
		}
	}
	return nil, nil
}

func (r *Route53) CreateRecord(ctx context.Context, zoneID string, rec Record) (Record, error) {
	ttl := rec.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if err := r.upsert(ctx, zoneID, rec.Name, rec.Type, rec.Content, int64(ttl)); err != nil {
		return Record{}, err
	}
	rec.ID = recordID(rec.Name, rec.Type)
	rec.TTL = ttl
	return rec, nil
}

func (r *Route53) UpdateRecord(ctx context.Context, zoneID, id, content string) error {
	name, t, err := parseRecordID(id)
	if err != nil {
		return err
	}
	set, err := r.recordSet(ctx, zoneID, name, t)
	if err != nil {
		return err
	}
	ttl := int64(DefaultTTL)
	if set != nil && set.TTL != nil {
		ttl = *set.TTL
	}
	// An alias set cannot be upserted into a value set; swap it in one batch.
	if set != nil && set.AliasTarget != nil {
		return r.change(ctx, zoneID,
			r53types.Change{Action: r53types.ChangeActionDelete, ResourceRecordSet: set},
			r53types.Change{Action: r53types.ChangeActionCreate, ResourceRecordSet: valueSet(name, t, content, ttl)},
		)
	}
	return r.upsert(ctx, zoneID, name, t, content, ttl)
}

func (r *Route53) DeleteRecord(ctx context.Context, zoneID, id string) error {
	name, t, err := parseRecordID(id)
	if err != nil {
		return err
	}
	// DELETE must repeat the set exactly as stored.
	set, err := r.recordSet(ctx, zoneID, name, t)
	if err != nil {
		return err
	}
	if set == nil {
		return nil
	}
	return r.change(ctx, zoneID, r53types.Change{Action: r53types.ChangeActionDelete, ResourceRecordSet: set})
}

func (r *Route53) upsert(ctx context.Context, zoneID, name string, t RecordType, content string, ttl int64) error {
	return r.change(ctx, zoneID, r53types.Change{
		Action:            r53types.ChangeActionUpsert,
		ResourceRecordSet: valueSet(name, t, content, ttl),
	})
}

func valueSet(name string, t RecordType, content string, ttl int64) *r53types.ResourceRecordSet {
	return &r53types.ResourceRecordSet{
		Name:            aws.String(name),
		Type:            r53types.RRType(t),
		TTL:             aws.Int64(ttl),
		ResourceRecords: []r53types.ResourceRecord{{Value: aws.String(content)}},
	}
}

// change applies changes as one atomic batch.
func (r *Route53) change(ctx context.Context, zoneID string, changes ...r53types.Change) error {
	_, err := r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Comment: aws.String("Managed by homeproxy"),
			Changes: changes,
		},
	})
	if err != nil {
		c := changes[len(changes)-1]
		return fmt.Errorf("%s %s %s: %w", c.Action, aws.ToString(c.ResourceRecordSet.Name), c.ResourceRecordSet.Type, err)
	}
	return nil
}

const aliasPrefix = "ALIAS:"

func recordID(name string, t RecordType) string {
	return trimDot(name) + "|" + string(t)
}

func parseRecordID(id string) (string, RecordType, error) {
	name, t, ok := strings.Cut(id, "|")
	if !ok || name == "" || t == "" {
		return "", "", fmt.Errorf("invalid route53 record id %q", id)
	}
	return name, RecordType(t), nil
}

func trimDot(s string) string {
	return strings.TrimSuffix(s, ".")
}
