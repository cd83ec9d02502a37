// Package transport is the HTTP layer shared by every collection handle of a
// client: one pooled *http.Client, common headers, a per-request timeout and
// a small retry budget.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"runitdb/logging"
)

const (
	DefaultTimeout   = 30 * time.Second
	defaultPoolSize  = 10
	maxResponseBytes = 32 << 20
)

// RetryPolicy bounds how often a single request is attempted.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below 1 mean a single attempt.
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryStatuses   []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     4 * time.Second,
		RetryStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

type Options struct {
	HTTP    *http.Client
	Timeout time.Duration
	Retry   *RetryPolicy
	Logger  *logging.Logger
}

// Transport is safe for concurrent use.
type Transport struct {
	http   *http.Client
	retry  RetryPolicy
	logger *logging.Logger

	mu      sync.RWMutex
	headers http.Header
	timeout time.Duration
}

func New(opts Options) *Transport {
	if opts.Logger == nil {
		panic("transport.New: logger must not be nil")
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = NewPooledClient()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retry := DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &Transport{
		http:    httpClient,
		retry:   retry,
		logger:  opts.Logger,
		headers: make(http.Header),
		timeout: timeout,
	}
}

// NewPooledClient returns an http.Client whose connection pool is capped at
// a small fixed size per host.
func NewPooledClient() *http.Client {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}
	pooled := base.Clone()
	pooled.MaxIdleConns = defaultPoolSize
	pooled.MaxIdleConnsPerHost = defaultPoolSize
	pooled.MaxConnsPerHost = defaultPoolSize
	return &http.Client{Transport: pooled}
}

func (t *Transport) SetHeaders(headers map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, value := range headers {
		t.headers.Set(key, value)
	}
}

func (t *Transport) SetBearerToken(token string) {
	token = strings.TrimSpace(token)
	t.mu.Lock()
	defer t.mu.Unlock()
	if token == "" {
		t.headers.Del("Authorization")
		return
	}
	t.headers.Set("Authorization", "Bearer "+token)
}

func (t *Transport) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
}

func (t *Transport) Timeout() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.timeout
}

// Close releases idle pooled connections. The transport stays usable.
func (t *Transport) Close() {
	t.http.CloseIdleConnections()
}

func (t *Transport) Get(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	return t.do(ctx, http.MethodGet, withQuery(rawURL, params), nil)
}

func (t *Transport) Delete(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	return t.do(ctx, http.MethodDelete, withQuery(rawURL, params), nil)
}

func (t *Transport) Post(ctx context.Context, rawURL string, body any) (json.RawMessage, error) {
	return t.doJSON(ctx, http.MethodPost, rawURL, body)
}

func (t *Transport) Put(ctx context.Context, rawURL string, body any) (json.RawMessage, error) {
	return t.doJSON(ctx, http.MethodPut, rawURL, body)
}

func (t *Transport) doJSON(ctx context.Context, method, rawURL string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		failure := newFailure(method, rawURL, fmt.Errorf("encode request body: %w", err))
		t.logFailure(failure)
		return nil, failure
	}
	return t.do(ctx, method, rawURL, payload)
}

func (t *Transport) do(ctx context.Context, method, rawURL string, body []byte) (json.RawMessage, error) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = t.retry.InitialInterval
	if t.retry.MaxInterval > 0 {
		retry.MaxInterval = t.retry.MaxInterval
	}
	retry.Reset()

	attempts := t.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	result, err := backoff.Retry(ctx, func() (json.RawMessage, error) {
		return t.attempt(ctx, method, rawURL, body)
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.logger.Debug("retrying request",
				logging.Field("method", method),
				logging.Field("url", rawURL),
				logging.Field("error", err),
				logging.Field("next_retry", next.String()),
			)
		}),
	)
	if err == nil {
		return result, nil
	}

	failure, ok := AsFailure(err)
	if !ok {
		failure = newFailure(method, rawURL, err)
	}
	t.logFailure(failure)
	return nil, failure
}

// attempt performs one round trip. Errors wrapped in backoff.Permanent are
// not retried.
func (t *Transport) attempt(ctx context.Context, method, rawURL string, body []byte) (json.RawMessage, error) {
	t.mu.RLock()
	headers := t.headers.Clone()
	timeout := t.timeout
	t.mu.RUnlock()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, reader)
	if err != nil {
		return nil, backoff.Permanent(newFailure(method, rawURL, err))
	}
	req.Header = headers
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(newFailure(method, rawURL, ctx.Err()))
		}
		return nil, newFailure(method, rawURL, err)
	}
	defer resp.Body.Close()
	t.logger.Debugf("%s %s -> %s", method, rawURL, resp.Status)

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Warn("request rejected",
			logging.Field("method", method),
			logging.Field("url", rawURL),
			logging.Field("status", resp.Status),
			logging.Field("response", json.RawMessage(data)),
		)
		failure := statusFailure(method, rawURL, resp)
		if slices.Contains(t.retry.RetryStatuses, resp.StatusCode) {
			return nil, failure
		}
		return nil, backoff.Permanent(failure)
	}
	if readErr != nil {
		return nil, newFailure(method, rawURL, fmt.Errorf("read response: %w", readErr))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, backoff.Permanent(newFailure(method, rawURL, errors.New("response is not valid JSON")))
	}
	return json.RawMessage(trimmed), nil
}

func (t *Transport) logFailure(failure *Failure) {
	t.logger.Error(failure.Method+" request failed",
		logging.Field("url", failure.URL),
		logging.Field("error", failure.Message),
	)
}

func withQuery(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + params.Encode()
}
