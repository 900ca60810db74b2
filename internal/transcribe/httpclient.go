package transcribe

import (
	"context"
	"math"
	"net"
	"net/http"
	"time"

	"sttstudio/pkg/logger"
)

// retryableStatuses are the GET-only retry allow-list. Transcription
// POSTs are non-idempotent and bypass this entirely to avoid
// double-billing a paid upstream.
var retryableStatuses = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// Client wraps a shared, connection-pooled http.Client. Its retry
// configuration is fixed at construction and never mutated afterward, so
// it is safe for concurrent use across the segment fan-out pool.
type Client struct {
	http       *http.Client
	retryTimes int
}

// NewClient builds the shared client: 32 idle conns, 128 max per host.
func NewClient(timeout time.Duration, retryTimes int) *Client {
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 32,
		MaxConnsPerHost:     128,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
	return &Client{
		http:       &http.Client{Transport: transport, Timeout: timeout},
		retryTimes: retryTimes,
	}
}

// Get issues a retryable GET: exponential backoff (factor ~0.6) on the
// status allow-list or a transport error, up to retryTimes retries after
// the first attempt.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryTimes; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(0.6*math.Pow(2, float64(attempt-1))*1000) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if !retryableStatuses[resp.StatusCode] || attempt == c.retryTimes {
			return resp, nil
		}
		resp.Body.Close()
		logger.Debug("retryable GET status, backing off", "url", url, "status", resp.StatusCode, "attempt", attempt+1)
	}
	return nil, lastErr
}

// Do issues a request exactly once, with no retry — used for every
// transcription POST.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}
