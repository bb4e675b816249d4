// Package postgrest implements backend.Backend over a hosted PostgREST data
// API (the REST surface Supabase exposes under /rest/v1).
package postgrest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/server/backend"
)

const restPath = "/rest/v1/"

// Client talks to one PostgREST endpoint with a fixed API key.
type Client struct {
	base string
	key  string
	http *http.Client
}

var _ backend.Backend = (*Client)(nil)

// New returns a client for the project at baseURL. A nil httpClient means
// http.DefaultClient.
func New(baseURL, key string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: backend url: %v", common.ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: backend url %q must be absolute http(s)", common.ErrInvalidArgument, baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base: strings.TrimRight(u.String(), "/") + restPath,
		key:  key,
		http: httpClient,
	}, nil
}

func (c *Client) Insert(ctx context.Context, table string, rows []backend.Record) ([]backend.Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	params := url.Values{"select": {"*"}}
	var out []backend.Record
	_, err := c.do(ctx, "insert", http.MethodPost, table, params, rows,
		[]string{"return=representation", "missing=default"}, &out)
	return out, err
}

func (c *Client) Upsert(ctx context.Context, table string, rows []backend.Record, opts backend.UpsertOptions) ([]backend.Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	params := url.Values{
		"on_conflict": {opts.ConflictColumn()},
		"select":      {"*"},
	}
	resolution := "resolution=merge-duplicates"
	if opts.IgnoreDuplicates {
		resolution = "resolution=ignore-duplicates"
	}
	var out []backend.Record
	_, err := c.do(ctx, "upsert", http.MethodPost, table, params, rows,
		[]string{"return=representation", resolution, "missing=default"}, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, table string, filters []backend.Filter, values backend.Record) ([]backend.Record, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no columns to update", common.ErrInvalidArgument)
	}
	params := filterParams(filters)
	params.Set("select", "*")
	var out []backend.Record
	_, err := c.do(ctx, "update", http.MethodPatch, table, params, values,
		[]string{"return=representation"}, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: delete requires a filter", common.ErrInvalidArgument)
	}
	_, err := c.do(ctx, "delete", http.MethodDelete, table, filterParams(filters), nil,
		[]string{"return=minimal"}, nil)
	return err
}

func (c *Client) Select(ctx context.Context, table string, q backend.Query) (backend.Result, error) {
	params := filterParams(q.Filters)
	params.Set("select", "*")
	if q.OrderBy != "" {
		dir := ".asc"
		if q.Desc {
			dir = ".desc"
		}
		params.Set("order", q.OrderBy+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var prefer []string
	switch q.Count {
	case backend.CountExact:
		prefer = append(prefer, "count=exact")
	case backend.CountEstimated:
		prefer = append(prefer, "count=estimated")
	}

	var rows []backend.Record
	header, err := c.do(ctx, "select", http.MethodGet, table, params, nil, prefer, &rows)
	if err != nil {
		return backend.Result{}, err
	}
	res := backend.Result{Rows: rows, Count: -1}
	if q.Count != backend.CountNone {
		res.Count = parseContentRange(header.Get("Content-Range"))
	}
	return res, nil
}

// apiError is the error document PostgREST returns on rejection.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (c *Client) do(ctx context.Context, op, method, table string, params url.Values, body any, prefer []string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", op, table, err)
		}
		reader = bytes.NewReader(b)
	}

	endpoint := c.base + url.PathEscape(table)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, table, err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, table, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", op, table, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(op, table, resp.StatusCode, raw)
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("%s %s: decode response: %w", op, table, err)
		}
	}
	return resp.Header, nil
}

func decodeError(op, table string, status int, raw []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Message == "" {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &backend.Error{Op: op, Table: table, Code: strconv.Itoa(status), Message: msg}
	}
	return &backend.Error{
		Op:      op,
		Table:   table,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
		Hint:    apiErr.Hint,
	}
}

// filterParams renders filters as PostgREST horizontal filters. Repeating a
// column ANDs the conditions.
func filterParams(filters []backend.Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		switch f.Op {
		case backend.OpNotNull:
			params.Add(f.Column, "not.is.null")
		case backend.OpNeq:
			params.Add(f.Column, "neq."+backend.Key(f.Value))
		case backend.OpContainsCI:
			params.Add(f.Column, "ilike.*"+likeEscaper.Replace(backend.Key(f.Value))+"*")
		default:
			params.Add(f.Column, "eq."+backend.Key(f.Value))
		}
	}
	return params
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)

// parseContentRange extracts the total from "0-29/45" or "*/0". An unknown
// total ("*") yields -1.
func parseContentRange(v string) int64 {
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return n
}
