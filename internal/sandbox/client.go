package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"codeflow/internal/services"
)

const maxResponseBytes = 8 << 20

// TransportError reports that no HTTP response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-200 response. Body holds the raw response text.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sandbox returned status %d", e.StatusCode)
	}
	return e.Body
}

// ProtocolError reports a 200 response whose body breaks the contract.
type ProtocolError struct {
	Body string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("invalid sandbox response: %v", e.Err)
	}
	return e.Body
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Client calls a remote sandbox.
type Client struct {
	baseURL    string
	grace      time.Duration
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithGrace sets the transport allowance added on top of each command timeout.
func WithGrace(grace time.Duration) ClientOption {
	return func(c *Client) {
		if grace >= 0 {
			c.grace = grace
		}
	}
}

// NewClient constructs a client for the sandbox at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		grace:      5 * time.Second,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured sandbox root.
func (c *Client) BaseURL() string { return c.baseURL }

// Run posts req to /v1/run. The returned Response always satisfies Validate.
func (c *Client) Run(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode sandbox request: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout(req))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/v1/run", bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id, ok := services.RequestIDFromContext(ctx); ok {
		httpReq.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read sandbox response: %w", err)}
	}
	drainBody(resp.Body, maxResponseBytes)

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ProtocolError{Body: string(raw), Err: err}
	}
	if err := decoded.Validate(); err != nil {
		return nil, &ProtocolError{Body: string(raw), Err: err}
	}
	return &decoded, nil
}

// Health calls GET /healthz and returns an error unless the sandbox reports ok.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return &TransportError{Err: err}
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}

// callTimeout is the request timeout plus the grace period, saturating at the
// largest representable duration.
func (c *Client) callTimeout(req Request) time.Duration {
	timeout := req.TimeoutDuration()
	if timeout > time.Duration(math.MaxInt64)-c.grace {
		return time.Duration(math.MaxInt64)
	}
	return timeout + c.grace
}
