// Package upstream talks to the privileged command-execution collaborator.
// The gateway forwards requests here only after token validation; the
// collaborator's semantics are opaque to this subsystem.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Hop-by-hop headers are stripped in both directions.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream URL scheme %q", parsed.Scheme)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Forward sends the request to the collaborator and returns its response.
// The caller owns the response body. The Authorization header is dropped;
// the device token must never reach the upstream.
func (c *Client) Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	target := *c.baseURL
	target.Path = strings.TrimSuffix(target.Path, "/") + path
	target.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	for key, values := range header {
		if isHopHeader(key) || http.CanonicalHeaderKey(key) == "Authorization" {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}

func isHopHeader(key string) bool {
	canonical := http.CanonicalHeaderKey(key)
	for _, h := range hopHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}
