package api

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
)

// UserHeader carries the caller identity on API requests.
const UserHeader = "X-Codeflow-User"

// Error is returned for non-2xx API responses.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return e.Message
}

// Client calls the daemon HTTP API.
type Client struct {
	baseURL    string
	token      string
	user       string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithUser sets the caller identity header.
func WithUser(user string) ClientOption {
	return func(c *Client) { c.user = strings.TrimSpace(user) }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a client for the API at baseURL. A bare host:port is
// treated as http.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" && !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// ListArtifacts returns the artifacts visible to the configured user.
func (c *Client) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	var out ArtifactListResponse
	if err := c.do(ctx, http.MethodGet, "/api/artifacts", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetArtifact fetches one artifact.
func (c *Client) GetArtifact(ctx context.Context, id int64) (Artifact, error) {
	var out ArtifactResponse
	err := c.do(ctx, http.MethodGet, artifactPath(id), nil, &out)
	return out.Artifact, err
}

// Submit uploads a new artifact.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Artifact, error) {
	var out ArtifactResponse
	err := c.do(ctx, http.MethodPost, "/api/artifacts", req, &out)
	return out.Artifact, err
}

// UpdateArtifact renames an artifact or changes its visibility.
func (c *Client) UpdateArtifact(ctx context.Context, id int64, req UpdateRequest) (Artifact, error) {
	var out ArtifactResponse
	err := c.do(ctx, http.MethodPatch, artifactPath(id), req, &out)
	return out.Artifact, err
}

// Retry resets a finished artifact and queues it again.
func (c *Client) Retry(ctx context.Context, id int64) (Artifact, error) {
	var out ArtifactResponse
	err := c.do(ctx, http.MethodPost, artifactPath(id)+"/retry", nil, &out)
	return out.Artifact, err
}

// DeleteArtifact removes an artifact and its files.
func (c *Client) DeleteArtifact(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, artifactPath(id), nil, nil)
}

// Queue returns the current queue snapshot.
func (c *Client) Queue(ctx context.Context) (QueueResponse, error) {
	var out QueueResponse
	err := c.do(ctx, http.MethodGet, "/api/queue", nil, &out)
	return out, err
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (NotificationTestResponse, error) {
	var out NotificationTestResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &out)
	return out, err
}

// Download streams a stored file into w.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("api url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		req.Header.Set(UserHeader, c.user)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &Error{StatusCode: resp.StatusCode}
	var decoded ErrorResponse
	if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
		apiErr.Message = decoded.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func artifactPath(id int64) string {
	return "/api/artifacts/" + strconv.FormatInt(id, 10)
}
