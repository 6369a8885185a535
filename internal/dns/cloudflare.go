package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultCloudflareURL is the Cloudflare v4 API base.
const DefaultCloudflareURL = "https://api.cloudflare.com/client/v4"

const zonesPerPage = 50

// Cloudflare is a Provider backed by the Cloudflare v4 REST API.
type Cloudflare struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewCloudflare creates a client for baseURL authenticating with token.
func NewCloudflare(baseURL, token string) *Cloudflare {
	if baseURL == "" {
		baseURL = DefaultCloudflareURL
	}
	return &Cloudflare{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// envelope is the common Cloudflare response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	ResultInfo *resultInfo `json:"result_info"`
}

type resultInfo struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

type cfZone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type cfRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	TTL     int    `json:"ttl,omitempty"`
	Proxied *bool  `json:"proxied,omitempty"`
}

func (r cfRecord) record() Record {
	rec := Record{ID: r.ID, Type: RecordType(r.Type), Name: r.Name, Content: r.Content, TTL: r.TTL}
	if r.Proxied != nil {
		rec.Proxied = *r.Proxied
	}
	return rec
}

func (c *Cloudflare) Name() string { return "cloudflare" }

func (c *Cloudflare) Verify(ctx context.Context) error {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/tokens/verify", nil, &result); err != nil {
		return err
	}
	if result.Status != "" && result.Status != "active" {
		return fmt.Errorf("token status %s", result.Status)
	}
	return nil
}

// ListZones follows result_info.total_pages until every zone is read.
func (c *Cloudflare) ListZones(ctx context.Context) ([]Zone, error) {
	var result []Zone
	for page := 1; ; page++ {
		var zones []cfZone
		path := fmt.Sprintf("/zones?per_page=%d&page=%d", zonesPerPage, page)
		info, err := c.request(ctx, http.MethodGet, path, nil, &zones)
		if err != nil {
			return nil, err
		}
		for _, z := range zones {
			result = append(result, Zone{ID: z.ID, Name: z.Name, Status: z.Status})
		}
		if info == nil || page >= info.TotalPages || len(zones) == 0 {
			return result, nil
		}
	}
}

func (c *Cloudflare) ListRecords(ctx context.Context, zoneID, name string, types ...RecordType) ([]Record, error) {
	var records []Record
	for _, t := range types {
		q := url.Values{"type": {string(t)}, "name": {name}}
		var page []cfRecord
		path := "/zones/" + url.PathEscape(zoneID) + "/dns_records?" + q.Encode()
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, r := range page {
			records = append(records, r.record())
		}
	}
	return records, nil
}

func (c *Cloudflare) CreateRecord(ctx context.Context, zoneID string, rec Record) (Record, error) {
	ttl := rec.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	proxied := rec.Proxied
	body := cfRecord{Type: string(rec.Type), Name: rec.Name, Content: rec.Content, TTL: ttl, Proxied: &proxied}

	var created cfRecord
	if err := c.do(ctx, http.MethodPost, "/zones/"+url.PathEscape(zoneID)+"/dns_records", body, &created); err != nil {
		return Record{}, err
	}
	return created.record(), nil
}

func (c *Cloudflare) UpdateRecord(ctx context.Context, zoneID, id, content string) error {
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records/" + url.PathEscape(id)
	return c.do(ctx, http.MethodPatch, path, cfRecord{Content: content}, nil)
}

func (c *Cloudflare) DeleteRecord(ctx context.Context, zoneID, id string) error {
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Cloudflare) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.request(ctx, method, path, body, out)
	return err
}

// request sends a JSON request, decodes the envelope's result into out and
// returns its paging info, if any. Anything but HTTP 200 with success=true
// is an error carrying the status and raw body.
func (c *Cloudflare) request(ctx context.Context, method, path string, body, out any) (*resultInfo, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%s %s: parse response: %w", method, path, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil && len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return nil, fmt.Errorf("%s %s: parse result: %w", method, path, err)
		}
	}
	return env.ResultInfo, nil
}
