// Package remote implements the HTTP client for the backing data API. The
// backend follows PostgREST conventions: one resource per table, upserts via
// POST with merge-duplicates resolution, and filter parameters for deletes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/dukkanapp/syncengine/pkg/errors"
)

const defaultTimeout = 15 * time.Second

// Config captures the connection parameters for the remote data API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// HTTPClient overrides the default client, primarily for testing.
	HTTPClient *http.Client
}

// Client talks to the remote per-table REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a Client. The base URL is required.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("remote: base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
	}, nil
}

// Upsert writes a record into the named table with last-write-wins merge
// semantics and returns the committed representation.
func (c *Client) Upsert(ctx context.Context, table string, record map[string]any) (map[string]any, error) {
	if strings.TrimSpace(table) == "" {
		return nil, apperrors.NewBadRequest("table name is required")
	}

	body, err := json.Marshal([]map[string]any{record})
	if err != nil {
		return nil, apperrors.NewBadRequest("payload is not serialisable").WithInternal(err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=id", c.baseURL, url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "return=representation,resolution=merge-duplicates")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.ErrOffline.WithInternal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, apperrors.Wrap(err, "decode upsert response")
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return rows[0], nil
}

// Delete removes a record by id, scoped to its owner.
func (c *Client) Delete(ctx context.Context, table, id, ownerID string) error {
	if strings.TrimSpace(table) == "" || strings.TrimSpace(id) == "" {
		return apperrors.NewBadRequest("table and id are required")
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s&user_id=eq.%s",
		c.baseURL, url.PathEscape(table), url.QueryEscape(id), url.QueryEscape(ownerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.ErrOffline.WithInternal(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	return nil
}

// Select fetches all rows for a table owned by the given user. It backs the
// default read path for table-keyed queries.
func (c *Client) Select(ctx context.Context, table, ownerID string) (json.RawMessage, error) {
	if strings.TrimSpace(table) == "" {
		return nil, apperrors.NewBadRequest("table name is required")
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?user_id=eq.%s&order=created_at.desc",
		c.baseURL, url.PathEscape(table), url.QueryEscape(ownerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.ErrOffline.WithInternal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "read select response")
	}
	return json.RawMessage(data), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(resp *http.Response) error {
	message := strings.TrimSpace(readErrorMessage(resp.Body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return apperrors.FromStatus(resp.StatusCode, message)
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return string(data)
}
