package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(retries int) *Client {
	c := NewClient(Config{Timeout: 5 * time.Second, MaxRetries: retries, RetryDelayBase: time.Millisecond, UserAgent: "strikewatch-test"})
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestGetJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lamin") != "25.08" {
			t.Errorf("expected lamin=25.08, got %q", r.URL.Query().Get("lamin"))
		}
		if r.URL.Query().Get("keep") != "1" {
			t.Errorf("existing query parameter lost: %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-API-KEY") != "secret" {
			t.Errorf("expected header to be forwarded")
		}
		if r.Header.Get("User-Agent") != "strikewatch-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"time": 1700000000, "states": []}`))
	}))
	defer server.Close()

	c := newTestClient(3)
	var out struct {
		Time int64 `json:"time"`
	}
	header := http.Header{}
	header.Set("X-API-KEY", "secret")
	err := c.GetJSON(context.Background(), server.URL+"/states/all?keep=1", url.Values{"lamin": {"25.08"}}, header, &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Time != 1700000000 {
		t.Errorf("decoded time = %d", out.Time)
	}
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c := newTestClient(3)
	var out map[string]bool
	if err := c.GetJSON(context.Background(), server.URL, nil, nil, &out); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestGetJSON_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(2)
	var out map[string]any
	err := c.GetJSON(context.Background(), server.URL, nil, nil, &out)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", statusErr.StatusCode)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestGetJSON_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(3)
	var out map[string]any
	err := c.GetJSON(context.Background(), server.URL+"?apiKey=secret", nil, nil, &out)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
	if statusErr.URL != server.URL {
		t.Errorf("query string should be redacted from error URL, got %q", statusErr.URL)
	}
}

func TestGetJSON_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	c := newTestClient(3)
	var out map[string]any
	if err := c.GetJSON(context.Background(), server.URL, nil, nil, &out); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestGetJSON_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(Config{MaxRetries: 5, RetryDelayBase: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out map[string]any
	err := c.GetJSON(ctx, server.URL, nil, nil, &out)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		if d := jitter(10 * time.Millisecond); d < 0 || d > 10*time.Millisecond {
			t.Fatalf("jitter out of range: %s", d)
		}
	}
	if jitter(0) != 0 {
		t.Error("jitter(0) should be 0")
	}
}
