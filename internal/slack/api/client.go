// Package api performs stateless Slack Web API calls: form-encoded POST,
// whole-body JSON response.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "slackwire/pkg/logx"
)

// DefaultBaseURL is the root every relative endpoint is resolved
// against.
const DefaultBaseURL = "https://slack.com/api/"

const defaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read. Slack API
// responses are small; anything larger is not something we want in memory.
const maxResponseBytes = 4 << 20

// ResponseParseError reports a complete response body that is not valid
// JSON. Body carries the raw text so callers can inspect what the server
// actually said.
type ResponseParseError struct {
	Body string
	Err  error
}

func (e *ResponseParseError) Error() string {
	body := e.Body
	if len(body) > 120 {
		body = body[:120] + "..."
	}
	return fmt.Sprintf("api: response is not valid JSON: %q", body)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// Client is a stateless request/response caller. It holds no connection
// state and is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
	log  logx.Logger
}

type Option func(*Client)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.base = u
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(opts ...Option) *Client {
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		base: base,
		http: &http.Client{Timeout: defaultTimeout},
		log:  logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Call POSTs form to endpoint and decodes the JSON response. A relative
// endpoint ("chat.postMessage") is resolved against the base URL; an
// absolute URL passes through. Network failures are returned wrapped;
// a non-JSON body is returned as *ResponseParseError.
func (c *Client) Call(ctx context.Context, endpoint string, form url.Values) (map[string]any, error) {
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("api: read %s response: %w", endpoint, err)
	}

	c.log.Debug("api call",
		logx.String("endpoint", endpoint),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ResponseParseError{Body: string(raw), Err: err}
	}
	return out, nil
}

func (c *Client) resolve(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("api: bad endpoint %q: %w", endpoint, err)
	}
	if u.IsAbs() {
		return endpoint, nil
	}
	return c.base.JoinPath(endpoint).String(), nil
}
