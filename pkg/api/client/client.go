package client

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

	"github.com/ratekl/api/internal/activity"
	"github.com/ratekl/api/internal/domain"
)

// Client provides typed access to the administrative API surface.
type Client struct {
	baseURL    string
	tenantHost string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTenantHost addresses tenant-scoped routes to host through
// X-Forwarded-Host, independent of the base URL.
func WithTenantHost(host string) Option {
	return func(c *Client) {
		c.tenantHost = strings.TrimSpace(host)
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:3333"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tenantHost != "" {
		req.Header.Set("X-Forwarded-Host", c.tenantHost)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// ErrLoginRejected is returned when the API answers a login with an empty
// token.
var ErrLoginRejected = fmt.Errorf("login rejected")

// Login exchanges member credentials of the configured tenant for a token.
func (c *Client) Login(ctx context.Context, userName, password string) (string, error) {
	body := map[string]string{"userName": userName, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth-v2", body, "", &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", ErrLoginRejected
	}
	return resp.Token, nil
}

// ListDomains returns directory entries, optionally only those in one
// active state.
func (c *Client) ListDomains(ctx context.Context, token string, active *bool) ([]domain.Domain, error) {
	path := "/domains-v2"
	if active != nil {
		filter := fmt.Sprintf(`{"where":{"active":%t}}`, *active)
		path += "?filter=" + url.QueryEscape(filter)
	}
	var domains []domain.Domain
	if err := c.do(ctx, http.MethodGet, path, nil, token, &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// GetDomain returns one directory entry.
func (c *Client) GetDomain(ctx context.Context, token, hostname string) (domain.Domain, error) {
	var d domain.Domain
	if err := c.do(ctx, http.MethodGet, "/domains-v2/"+url.PathEscape(hostname), nil, token, &d); err != nil {
		return domain.Domain{}, err
	}
	return d, nil
}

// CreateDomain adds a directory entry.
func (c *Client) CreateDomain(ctx context.Context, token string, d domain.Domain) (domain.Domain, error) {
	var created domain.Domain
	if err := c.do(ctx, http.MethodPost, "/domains-v2", d, token, &created); err != nil {
		return domain.Domain{}, err
	}
	return created, nil
}

// ReplaceDomain overwrites a directory entry.
func (c *Client) ReplaceDomain(ctx context.Context, token string, d domain.Domain) error {
	return c.do(ctx, http.MethodPut, "/domains-v2/"+url.PathEscape(d.Hostname), d, token, nil)
}

// DeleteDomain removes a directory entry.
func (c *Client) DeleteDomain(ctx context.Context, token, hostname string) error {
	return c.do(ctx, http.MethodDelete, "/domains-v2/"+url.PathEscape(hostname), nil, token, nil)
}

// InvalidateDomain drops the server's cached collection handles of hostname
// and returns how many were dropped.
func (c *Client) InvalidateDomain(ctx context.Context, token, hostname string) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, "/domains-v2/"+url.PathEscape(hostname)+"/invalidate", nil, token, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

type activityBody struct {
	Data activity.Snapshot `json:"data"`
}

// ExportActivity downloads the server's activity snapshot.
func (c *Client) ExportActivity(ctx context.Context, token string) (activity.Snapshot, error) {
	var resp activityBody
	if err := c.do(ctx, http.MethodGet, "/activity-v2", nil, token, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ImportActivity replaces the server's activity snapshot.
func (c *Client) ImportActivity(ctx context.Context, token string, snapshot activity.Snapshot) error {
	return c.do(ctx, http.MethodPut, "/activity-v2", activityBody{Data: snapshot}, token, nil)
}
