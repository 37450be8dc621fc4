package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/theoremus-urban-solutions/transitcore/errs"
)

const userAgent = "transitcore/1.0"

// HTTPError reports a non-200 answer from an upstream feed.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Client fetches feed payloads over HTTP. It serves both the realtime
// protobuf feeds and the static zip bundle.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client whose requests are bounded by timeout
// (zero means only the caller's context bounds them).
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// NewClientWith wraps an existing http.Client, e.g. an httptest server client.
func NewClientWith(hc *http.Client, timeout time.Duration) *Client {
	return &Client{httpClient: hc, timeout: timeout}
}

// Fetch downloads url and returns the raw body. Returns nil if url is empty
// (allows optional feeds). Failures are errs.FetchFailed.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	const op = "gtfsrt.Fetch"
	if rawURL == "" {
		return nil, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.E(errs.FetchFailed, op, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.E(errs.FetchFailed, op, fmt.Errorf("failed to fetch %s: %w", rawURL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.E(errs.FetchFailed, op, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status})
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.E(errs.FetchFailed, op, fmt.Errorf("reading %s: %w", rawURL, err))
	}
	return body, nil
}

// FeedURL adds the Type query parameter selecting kind to a shared base URL.
func FeedURL(base string, kind FeedKind) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid feed url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("Type", string(kind))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
