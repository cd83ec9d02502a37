package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"runitdb/logging"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func fastRetry() *RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = 2 * time.Millisecond
	return &policy
}

func newTestTransport(rt roundTripFunc) *Transport {
	return New(Options{
		HTTP:   &http.Client{Transport: rt},
		Retry:  fastRetry(),
		Logger: logging.Quiet(),
	})
}

func TestTransport_GetSendsHeadersAndQuery(t *testing.T) {
	var gotAuth, gotAccept, gotCustom string
	var gotQuery url.Values
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotCustom = r.Header.Get("X-Client")
		gotQuery = r.URL.Query()
		return jsonResponse(r, http.StatusOK, `{"ok":true}`), nil
	})
	tr.SetBearerToken("secret")
	tr.SetHeaders(map[string]string{"X-Client": "runitdb"})

	params := url.Values{}
	params.Add("columns", "name")
	params.Add("columns", "age")
	out, err := tr.Get(context.Background(), "https://api.example.test/documents/p1/users", params)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(out) != `{"ok":true}` {
		t.Fatalf("Get() = %s", out)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Fatalf("Accept = %q", gotAccept)
	}
	if gotCustom != "runitdb" {
		t.Fatalf("X-Client = %q", gotCustom)
	}
	if cols := gotQuery["columns"]; len(cols) != 2 || cols[0] != "name" || cols[1] != "age" {
		t.Fatalf("columns query = %v", cols)
	}
}

func TestTransport_PostEncodesJSONBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(r, http.StatusCreated, `{"id":"1"}`), nil
	})

	if _, err := tr.Post(context.Background(), "https://api.example.test/x", map[string]any{"documents": map[string]any{"name": "a"}}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("Content-Type = %q", gotContentType)
	}
	if _, ok := gotBody["documents"]; !ok {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestTransport_RetriesRetryableStatusThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return jsonResponse(r, http.StatusServiceUnavailable, `{"message":"busy"}`), nil
		}
		return jsonResponse(r, http.StatusOK, `[1,2]`), nil
	})

	out, err := tr.Get(context.Background(), "https://api.example.test/x", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(out) != `[1,2]` {
		t.Fatalf("Get() = %s", out)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestTransport_RetryBudgetExhaustedReturnsFailure(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(r, http.StatusBadGateway, ``), nil
	})

	_, err := tr.Put(context.Background(), "https://api.example.test/x", map[string]any{})
	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error type = %T, want *Failure", err)
	}
	if failure.Status != StatusFailed || failure.StatusCode != http.StatusBadGateway {
		t.Fatalf("failure = %#v", failure)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestTransport_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(r, http.StatusUnauthorized, `{"message":"bad key"}`), nil
	})

	_, err := tr.Delete(context.Background(), "https://api.example.test/x", url.Values{"name": {"a"}})
	if !IsUnauthorized(err) {
		t.Fatalf("IsUnauthorized(%v) = false", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestTransport_NetworkErrorBecomesFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	var calls atomic.Int32
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, dialErr
	})

	_, err := tr.Get(context.Background(), "https://api.example.test/x", nil)
	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error type = %T, want *Failure", err)
	}
	if !errors.Is(err, dialErr) {
		t.Fatalf("errors.Is(err, dialErr) = false, err = %v", err)
	}
	if failure.Status != StatusFailed {
		t.Fatalf("status = %q", failure.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}

	payload, marshalErr := json.Marshal(failure)
	if marshalErr != nil {
		t.Fatalf("marshal failure: %v", marshalErr)
	}
	var shape map[string]any
	if err := json.Unmarshal(payload, &shape); err != nil {
		t.Fatalf("unmarshal failure: %v", err)
	}
	if shape["status"] != "failed" || shape["error"] == "" || len(shape) != 2 {
		t.Fatalf("failure JSON = %s", payload)
	}
}

func TestTransport_InvalidJSONResponse(t *testing.T) {
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `<html>oops</html>`), nil
	})
	if _, err := tr.Get(context.Background(), "https://api.example.test/x", nil); err == nil {
		t.Fatalf("Get() expected error for non-JSON body")
	}
}

func TestTransport_EmptyBodyIsNull(t *testing.T) {
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusNoContent, ``), nil
	})
	out, err := tr.Delete(context.Background(), "https://api.example.test/x", nil)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if string(out) != "null" {
		t.Fatalf("Delete() = %s, want null", out)
	}
}

func TestTransport_CanceledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		cancel()
		return nil, r.Context().Err()
	})

	_, err := tr.Get(ctx, "https://api.example.test/x", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestTransport_SetTimeout(t *testing.T) {
	tr := newTestTransport(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `{}`), nil
	})
	if tr.Timeout() != DefaultTimeout {
		t.Fatalf("Timeout() = %v, want %v", tr.Timeout(), DefaultTimeout)
	}
	tr.SetTimeout(5 * time.Second)
	if tr.Timeout() != 5*time.Second {
		t.Fatalf("Timeout() = %v", tr.Timeout())
	}
	tr.SetTimeout(0)
	if tr.Timeout() != 5*time.Second {
		t.Fatalf("SetTimeout(0) should be ignored, got %v", tr.Timeout())
	}
}

func TestNewPooledClientBoundsPool(t *testing.T) {
	client := NewPooledClient()
	pooled, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport type = %T", client.Transport)
	}
	if pooled.MaxIdleConnsPerHost != defaultPoolSize || pooled.MaxConnsPerHost != defaultPoolSize {
		t.Fatalf("pool limits = %d/%d", pooled.MaxIdleConnsPerHost, pooled.MaxConnsPerHost)
	}
}
