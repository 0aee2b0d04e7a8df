// Package httpapi is the bearer-authenticated JSON transport shared by the
// person and change API clients.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avatarmig/internal/services"
	"avatarmig/internal/services/credentials"
)

const defaultTimeout = 30 * time.Second

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client issues JSON requests against one API base URL.
type Client struct {
	component string
	baseURL   string
	doer      HTTPDoer
	tokens    credentials.TokenSource
	timeout   time.Duration
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP backend.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithTimeout bounds each request, including reading the response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New builds a Client. component labels errors.
func New(component, baseURL string, tokens credentials.TokenSource, opts ...Option) *Client {
	c := &Client{
		component: component,
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		doer:      &http.Client{},
		tokens:    tokens,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = &http.Client{}
	}
	return c
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Invalidator is implemented by token sources that can drop a cached token.
type Invalidator interface {
	Invalidate()
}

// Do sends body (JSON encoded when non-nil) and decodes the response into
// out when non-nil. Transport failures, timeouts, and unexpected statuses
// wrap services.ErrNetwork; 401 and 403 wrap services.ErrAuth; undecodable
// responses wrap services.ErrSerialization. A 401 is retried once with a
// fresh token when the token source is an Invalidator.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrSerialization, c.component, method+" "+path, "marshal request body", err)
		}
		payload = data
	}

	status, err := c.send(ctx, method, path, headers, payload, out)
	if status == http.StatusUnauthorized {
		if inv, ok := c.tokens.(Invalidator); ok {
			inv.Invalidate()
			_, err = c.send(ctx, method, path, headers, payload, out)
		}
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, headers map[string]string, payload []byte, out any) (int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, c.component, method+" "+path, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		if strings.TrimSpace(v) == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		msg := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("request timed out after %s", c.timeout)
		}
		return 0, services.Wrap(services.ErrNetwork, c.component, method+" "+path, msg, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := fmt.Sprintf("returned %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return resp.StatusCode, services.Wrap(services.ErrAuth, c.component, method+" "+path, detail, nil)
		}
		return resp.StatusCode, services.Wrap(services.ErrNetwork, c.component, method+" "+path, detail, nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return resp.StatusCode, services.Wrap(services.ErrNetwork, c.component, method+" "+path, "response read timed out", err)
		}
		return resp.StatusCode, services.Wrap(services.ErrSerialization, c.component, method+" "+path, "decode response", err)
	}
	return resp.StatusCode, nil
}
