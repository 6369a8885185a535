package dns

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoute53 struct {
	zones   []r53types.HostedZone
	sets    []r53types.ResourceRecordSet
	changes []r53types.Change
	batches int
}

func (f *fakeRoute53) ListHostedZones(_ context.Context, _ *route53.ListHostedZonesInput, _ ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error) {
	return &route53.ListHostedZonesOutput{HostedZones: f.zones}, nil
}

func (f *fakeRoute53) ListResourceRecordSets(_ context.Context, in *route53.ListResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error) {
	for _, s := range f.sets {
		if aws.ToString(s.Name) == aws.ToString(in.StartRecordName)+"." && s.Type == in.StartRecordType {
			return &route53.ListResourceRecordSetsOutput{ResourceRecordSets: []r53types.ResourceRecordSet{s}}, nil
		}
	}
	// Route53 returns the next set in order when nothing matches.
	return &route53.ListResourceRecordSetsOutput{ResourceRecordSets: []r53types.ResourceRecordSet{
		{Name: aws.String("zzz.example.com."), Type: r53types.RRTypeA},
	}}, nil
}

func (f *fakeRoute53) ChangeResourceRecordSets(_ context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	f.batches++
	f.changes = append(f.changes, in.ChangeBatch.Changes...)
	return &route53.ChangeResourceRecordSetsOutput{}, nil
}

func TestRoute53_ListZones(t *testing.T) {
	api := &fakeRoute53{zones: []r53types.HostedZone{
		{Id: aws.String("/hostedzone/Z123"), Name: aws.String("example.com.")},
		{Id: aws.String("/hostedzone/Z456"), Name: aws.String("internal.example."), Config: &r53types.HostedZoneConfig{PrivateZone: true}},
	}}

	zones, err := NewRoute53(api).ListZones(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Zone{
		{ID: "Z123", Name: "example.com", Status: "public"},
		{ID: "Z456", Name: "internal.example", Status: "private"},
	}, zones)
}

func TestRoute53_ListRecordsExactNameOnly(t *testing.T) {
	api := &fakeRoute53{sets: []r53types.ResourceRecordSet{{
		Name:            aws.String("example.com."),
		Type:            r53types.RRTypeA,
		TTL:             aws.Int64(60),
		ResourceRecords: []r53types.ResourceRecord{{Value: aws.String("198.51.100.1")}},
	}}}

	records, err := NewRoute53(api).ListRecords(context.Background(), "Z123", "example.com", TypeA, TypeCNAME)
	require.NoError(t, err)
	assert.Equal(t, []Record{{ID: "example.com|A", Type: TypeA, Name: "example.com", Content: "198.51.100.1", TTL: 60}}, records)
}

func TestRoute53_CreateAndUpdateUpsert(t *testing.T) {
	api := &fakeRoute53{sets: []r53types.ResourceRecordSet{{
		Name:            aws.String("example.com."),
		Type:            r53types.RRTypeA,
		TTL:             aws.Int64(60),
		ResourceRecords: []r53types.ResourceRecord{{Value: aws.String("198.51.100.1")}},
	}}}
	r := NewRoute53(api)

	rec, err := r.CreateRecord(context.Background(), "Z123", Record{Type: TypeA, Name: "app.example.com", Content: "203.0.113.5"})
	require.NoError(t, err)
	assert.Equal(t, "app.example.com|A", rec.ID)

	require.NoError(t, r.UpdateRecord(context.Background(), "Z123", "example.com|A", "203.0.113.5"))

	require.Len(t, api.changes, 2)
	assert.Equal(t, r53types.ChangeActionUpsert, api.changes[0].Action)
	assert.Equal(t, int64(DefaultTTL), aws.ToInt64(api.changes[0].ResourceRecordSet.TTL))
	assert.Equal(t, r53types.ChangeActionUpsert, api.changes[1].Action)
	assert.Equal(t, int64(60), aws.ToInt64(api.changes[1].ResourceRecordSet.TTL))
	assert.Equal(t, "203.0.113.5", aws.ToString(api.changes[1].ResourceRecordSet.ResourceRecords[0].Value))
}

func TestRoute53_AliasSetIsSwappedForValue(t *testing.T) {
	alias := r53types.ResourceRecordSet{
		Name: aws.String("example.com."),
		Type: r53types.RRTypeA,
		AliasTarget: &r53types.AliasTarget{
			DNSName:      aws.String("lb-1.eu-west-1.elb.amazonaws.com."),
			HostedZoneId: aws.String("Z32O12XQLNTSW2"),
		},
	}
	api := &fakeRoute53{sets: []r53types.ResourceRecordSet{alias}}
	r := NewRoute53(api)

	records, err := r.ListRecords(context.Background(), "Z123", "example.com", TypeA)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ALIAS:lb-1.eu-west-1.elb.amazonaws.com", records[0].Content)

	require.NoError(t, r.UpdateRecord(context.Background(), "Z123", records[0].ID, "203.0.113.5"))

	assert.Equal(t, 1, api.batches)
	require.Len(t, api.changes, 2)
	assert.Equal(t, r53types.ChangeActionDelete, api.changes[0].Action)
	assert.Equal(t, alias, *api.changes[0].ResourceRecordSet)
	assert.Equal(t, r53types.ChangeActionCreate, api.changes[1].Action)
	created := api.changes[1].ResourceRecordSet
	assert.Nil(t, created.AliasTarget)
	assert.Equal(t, int64(DefaultTTL), aws.ToInt64(created.TTL))
	assert.Equal(t, "203.0.113.5", aws.ToString(created.ResourceRecords[0].Value))
}

func TestRoute53_DeleteRepeatsStoredSet(t *testing.T) {
	stored := r53types.ResourceRecordSet{
		Name:            aws.String("www.example.com."),
		Type:            r53types.RRTypeCname,
		TTL:             aws.Int64(120),
		ResourceRecords: []r53types.ResourceRecord{{Value: aws.String("example.com")}},
	}
	api := &fakeRoute53{sets: []r53types.ResourceRecordSet{stored}}

	require.NoError(t, NewRoute53(api).DeleteRecord(context.Background(), "Z123", "www.example.com|CNAME"))
	require.Len(t, api.changes, 1)
	assert.Equal(t, r53types.ChangeActionDelete, api.changes[0].Action)
	assert.Equal(t, stored, *api.changes[0].ResourceRecordSet)
}

func TestParseRecordID(t *testing.T) {
	name, typ, err := parseRecordID("example.com|A")
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, TypeA, typ)

	_, _, err = parseRecordID("example.com")
	assert.Error(t, err)
}
