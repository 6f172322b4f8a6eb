// Package postgrest implements store.Gateway over a PostgREST endpoint
// (the REST face of a hosted Postgres such as Supabase).
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"algoverse/internal/common"
	"algoverse/internal/platform/store"
)

const maxErrorBody = 2048

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a client for {projectURL}/rest/v1 authenticated with apiKey
// (anon or service-role).
func New(projectURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(projectURL, "/") + "/rest/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Fetch(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	params, err := filterParams(q.Filter)
	if err != nil {
		return nil, err
	}
	if len(q.Select) > 0 {
		params.Set("select", strings.Join(q.Select, ","))
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Field+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return c.do(ctx, http.MethodGet, collection, params, nil)
}

func (c *Client) Insert(ctx context.Context, collection string, records ...store.Record) ([]store.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var body any = records
	if len(records) == 1 {
		body = records[0]
	}
	return c.do(ctx, http.MethodPost, collection, nil, body)
}

func (c *Client) Update(ctx context.Context, collection string, filter store.Filter, patch store.Record) ([]store.Record, error) {
	params, err := filterParams(filter)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPatch, collection, params, patch)
}

func (c *Client) Delete(ctx context.Context, collection string, filter store.Filter) ([]store.Record, error) {
	params, err := filterParams(filter)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodDelete, collection, params, nil)
}

func (c *Client) do(ctx context.Context, method, collection string, params url.Values, body any) ([]store.Record, error) {
	if !store.ValidIdentifier(collection) {
		return nil, fmt.Errorf("invalid collection %q: %w", collection, common.ErrBadRequest)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", collection, err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + "/" + collection
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, collection, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, collection, err, common.ErrUpstream)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %v: %w", method, collection, err, common.ErrUpstream)
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("conflict on %s: %s: %w", collection, snippet(raw), common.ErrConflict)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s returned %d: %s: %w", method, collection, resp.StatusCode, snippet(raw), common.ErrUpstream)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var records []store.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		var single store.Record
		if errSingle := json.Unmarshal(raw, &single); errSingle != nil {
			return nil, fmt.Errorf("decode %s response: %v: %w", collection, err, common.ErrUpstream)
		}
		records = []store.Record{single}
	}
	return records, nil
}

func filterParams(filter store.Filter) (url.Values, error) {
	params := url.Values{}
	for _, p := range filter {
		if !store.ValidIdentifier(p.Field) {
			return nil, fmt.Errorf("invalid filter field %q: %w", p.Field, common.ErrBadRequest)
		}
		switch {
		case p.Value == nil && p.Op == store.OpNeq:
			params.Add(p.Field, "not.is.null")
		case p.Value == nil:
			params.Add(p.Field, "is.null")
		default:
			params.Add(p.Field, string(p.Op)+"."+formatValue(p.Value))
		}
	}
	return params, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
