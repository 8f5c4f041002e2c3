package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	acceptJSON       = "application/json, text/plain, */*"
	acceptHTML       = "text/html,application/xhtml+xml"
	acceptFeed       = "application/rss+xml, application/xml, text/xml;q=0.9, */*;q=0.8"
	maxBodyBytes     = 10 << 20
)

// ErrEmptyResponse is returned when an upstream answers 200 with no body
var ErrEmptyResponse = errors.New("empty response")

// StatusError is a non-200 upstream answer
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Client performs upstream GETs with a per-request timeout and a short
// retry. Retries never outlive the caller's context.
type Client struct {
	http     *http.Client
	attempts uint
	delay    time.Duration
}

// NewClient creates a client whose single requests are bounded by requestTimeout
func NewClient(requestTimeout time.Duration) *Client {
	return &Client{
		http:     &http.Client{Timeout: requestTimeout},
		attempts: 2,
		delay:    300 * time.Millisecond,
	}
}

// Get fetches url and returns the body. 4xx answers are not retried.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", browserUserAgent)
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			if len(bytes.TrimSpace(data)) == 0 {
				return ErrEmptyResponse
			}

			body = data
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}

	return body, nil
}

// GetJSON fetches url and decodes it into out. Numbers decode as json.Number.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

func decodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func withAccept(accept string, extra map[string]string) map[string]string {
	headers := map[string]string{"Accept": accept}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}
