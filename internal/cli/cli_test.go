package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runitdb/internal/config"
)

type seenRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func isolate(t *testing.T) {
	t.Helper()
	root := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Setenv("AppData", root)
	} else {
		t.Setenv("XDG_CONFIG_HOME", root)
	}
	t.Setenv("XDG_CACHE_HOME", root)
	t.Setenv(config.EnvEndpoint, "")
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvProjectID, "")
	t.Chdir(root)
}

func newAPIServer(t *testing.T, body string) (*httptest.Server, <-chan seenRequest) {
	t.Helper()
	seen := make(chan seenRequest, 8)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		seen <- seenRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(data)}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts, seen
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), "test", args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func connArgs(endpoint string) []string {
	return []string{"--endpoint", endpoint, "--api-key", "secret", "--project", "p1"}
}

func TestRun_CountPrintsIndentedJSON(t *testing.T) {
	isolate(t)
	ts, seen := newAPIServer(t, `{"count":2}`)

	code, stdout, stderr := run(t, append(connArgs(ts.URL), "count", "orders", "--filter", `{"status":"open"}`)...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "{\n  \"count\": 2\n}\n", stdout)

	req := <-seen
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/documents/p1/orders/", req.Path)
	assert.JSONEq(t, `{"function":"count","filter":{"status":"open"}}`, req.Body)
}

func TestRun_FindPassesColumnsAndFilter(t *testing.T) {
	isolate(t)
	ts, seen := newAPIServer(t, `[]`)

	code, _, stderr := run(t, append(connArgs(ts.URL), "find", "orders", "-c", "name", "-c", "price", "-f", `{"id":1}`)...)
	require.Equal(t, 0, code, stderr)

	req := <-seen
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/documents/p1/orders/", req.Path)
	assert.Contains(t, req.Query, "columns=name&columns=price")
	assert.Contains(t, req.Query, "filter=")
}

func TestRun_InsertManyAndRemove(t *testing.T) {
	isolate(t)
	ts, seen := newAPIServer(t, `{"ok":true}`)

	code, _, stderr := run(t, append(connArgs(ts.URL), "insert-many", "orders", `[{"a":1},{"a":2}]`)...)
	require.Equal(t, 0, code, stderr)
	req := <-seen
	assert.JSONEq(t, `{"documents":[{"a":1},{"a":2}]}`, req.Body)

	code, _, stderr = run(t, append(connArgs(ts.URL), "remove", "orders", "--filter", `{"id":"x"}`)...)
	require.Equal(t, 0, code, stderr)
	req = <-seen
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "id=x", req.Query)
}

func TestRun_ConfigErrorsExitWithUsage(t *testing.T) {
	isolate(t)

	code, _, stderr := run(t, "count", "orders")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "configuration error")

	code, _, stderr = run(t, append(connArgs("https://api.example.com"), "count", "bad-name")...)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "invalid identifier")

	code, _, _ = run(t, append(connArgs("https://api.example.com"), "insert", "orders", `[1,2]`)...)
	assert.Equal(t, exitUsage, code)
}

func TestRun_UnknownCommandAndHelp(t *testing.T) {
	isolate(t)

	code, _, _ := run(t, "nope")
	assert.Equal(t, exitUsage, code)

	code, stdout, _ := run(t, "--help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "subscribe")
}

func TestRun_HTTPFailureExitsWithError(t *testing.T) {
	isolate(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(ts.Close)

	code, stdout, stderr := run(t, append(connArgs(ts.URL), "all", "orders")...)
	assert.Equal(t, exitError, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "403")
}

func TestRun_ConfigureSavesProfile(t *testing.T) {
	isolate(t)
	ts, seen := newAPIServer(t, `{"count":0}`)

	code, stdout, stderr := run(t, append(connArgs(ts.URL), "configure")...)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "settings.json")

	saved, err := config.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, ts.URL, saved.Endpoint)
	assert.Equal(t, "p1", saved.ProjectID)

	code, _, stderr = run(t, "count", "orders")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "/documents/p1/orders/", (<-seen).Path)
}

func TestRun_SubscribePrintsEventsUntilCanceled(t *testing.T) {
	isolate(t)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	stdout := &syncBuffer{}
	var stderr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		done <- Run(ctx, "test", append(connArgs(ts.URL), "subscribe", "orders", "--event", "insert"), stdout, &stderr)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), `"id": 1`)
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatalf("subscribe did not exit after cancel")
	}

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout.String()), &event))
	assert.Equal(t, float64(1), event["id"])
}
