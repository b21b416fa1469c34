// Package fetcher wraps a shared HTTP client with JSON decoding, response
// classification and exponential backoff. All pollers in the engine go
// through it so connection pooling and retry policy live in one place.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 5
	baseDelay      = 1 * time.Second
	maxDelay       = 32 * time.Second
)

// Config holds fetcher configuration.
type Config struct {
	Timeout   time.Duration     // per-request timeout (default 10s)
	Headers   map[string]string // headers attached to every request
	BaseDelay time.Duration     // first retry delay (default 1s)
	Logger    *zap.Logger
}

// Fetcher is a shared-session HTTP client. Clones created with WithHeaders
// share the underlying transport and connection pool.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	baseDelay time.Duration
	headers   map[string]string
	logger    *zap.Logger
}

// New creates a fetcher with a pooled transport.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = baseDelay
	}

	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:   timeout,
		baseDelay: delay,
		headers:   cfg.Headers,
		logger:    cfg.Logger,
	}
}

// WithHeaders returns a fetcher that attaches the given headers to every
// request, sharing this fetcher's transport and timeout.
func (f *Fetcher) WithHeaders(headers map[string]string) *Fetcher {
	merged := make(map[string]string, len(f.headers)+len(headers))
	for k, v := range f.headers {
		merged[k] = v
	}
	for k, v := range headers {
		merged[k] = v
	}

	return &Fetcher{
		client:    f.client,
		timeout:   f.timeout,
		baseDelay: f.baseDelay,
		headers:   merged,
		logger:    f.logger,
	}
}

// GetJSON fetches rawURL with the given query parameters and decodes the
// response body into out.
//
// Classification: 429 returns types.ErrRateLimited immediately (the caller
// chooses the pause); 5xx and transport errors are retried with exponential
// backoff (1s doubling to 32s, 5 attempts) before the last error surfaces;
// any other 4xx is permanent and returns without retry.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	_, err := f.GetJSONHeaders(ctx, rawURL, params, out)
	return err
}

// GetJSONHeaders is GetJSON but also returns the response headers of the
// final attempt, for callers that track upstream rate-limit counters. The
// headers are nil when transient retries are exhausted or the context ends.
func (f *Fetcher) GetJSONHeaders(ctx context.Context, rawURL string, params url.Values, out interface{}) (http.Header, error) {
	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	delay := f.baseDelay
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, header, err := f.doOnce(ctx, reqURL)
		if err == nil {
			if out == nil {
				return header, nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return header, fmt.Errorf("decode %s: %w", rawURL, err)
			}
			return header, nil
		}

		if types.IsRateLimited(err) {
			RateLimitedTotal.Inc()
			return header, err
		}

		var httpErr *types.HTTPError
		if errors.As(err, &httpErr) && !httpErr.Transient() {
			return header, err
		}

		lastErr = err
		if attempt == maxRetries {
			break
		}

		RetriesTotal.Inc()
		f.logger.Warn("fetch-retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	return nil, fmt.Errorf("fetch %s after %d attempts: %w", rawURL, maxRetries, lastErr)
}

func (f *Fetcher) doOnce(ctx context.Context, reqURL string) ([]byte, http.Header, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		RequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	RequestsTotal.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.Header, fmt.Errorf("%s: %w", reqURL, types.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, &types.HTTPError{StatusCode: resp.StatusCode, URL: reqURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("read body: %w", err)
	}

	return body, resp.Header, nil
}

func statusClass(code int) string {
	switch {
	case code == 429:
		return "429"
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
