package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(maxRetries int, step time.Duration) *Client {
	return New(Options{Name: "test", MaxRetries: maxRetries, BackoffStep: step})
}

func recordBackoff(c *Client) func() []time.Duration {
	var mu sync.Mutex
	var waits []time.Duration
	base := c.retry.Backoff
	c.retry.Backoff = func(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
		wait := base(min, max, attempt, resp)
		mu.Lock()
		waits = append(waits, wait)
		mu.Unlock()
		return wait
	}
	return func() []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Duration(nil), waits...)
	}
}

func TestDoRetriesServerErrorsWithLinearBackoff(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newTestClient(2, 200*time.Millisecond)
	waits := recordBackoff(client)

	start := time.Now()
	resp, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "ok" {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, resp.Body)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}

	got := waits()
	if len(got) != 2 || got[0] != 200*time.Millisecond || got[1] != 400*time.Millisecond {
		t.Fatalf("unexpected backoff delays: %v", got)
	}
	if elapsed < 600*time.Millisecond {
		t.Fatalf("expected at least 600ms of backoff, got %v", elapsed)
	}
}

func TestDoGivesUpAfterExactlyThreeAttempts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(2, time.Millisecond)
	_, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway || statusErr.Attempts != 3 {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected exactly 3 requests, got %d", got)
	}
}

func TestDoReturnsClientErrorsWithoutRetry(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"msg":"quota"}`))
	}))
	defer server.Close()

	client := newTestClient(2, time.Millisecond)
	resp, err := client.Fetch(context.Background(), http.MethodGet, server.URL, nil, nil)
	if err != nil {
		t.Fatalf("4xx should not be an error: %v", err)
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestDoAttachesUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := New(Options{UserAgent: "probe/1.0", MaxRetries: 0})
	if _, err := client.GetBytes(context.Background(), server.URL, http.Header{"User-Agent": {"other"}}); err != nil {
		t.Fatalf("GetBytes failed: %v", err)
	}
	if gotUA != "probe/1.0" {
		t.Fatalf("unexpected user agent: %q", gotUA)
	}
}

func TestDoReplaysBodyOnRetry(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(2, time.Millisecond)
	if _, err := client.Fetch(context.Background(), http.MethodPost, server.URL, nil, []byte(`{"ids":"1"}`)); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"ids":"1"}` {
		t.Fatalf("body not replayed: %q", bodies)
	}
}

func TestDoNetworkErrorSurfacesAsUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(1, time.Millisecond)
	_, err := client.Fetch(context.Background(), http.MethodGet, url, nil, nil)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestDoRespectsContextDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(5, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, http.MethodGet, server.URL, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGetJSONDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"name":"song"}`))
	}))
	defer server.Close()

	var out struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	}
	client := newTestClient(0, time.Millisecond)
	if err := client.GetJSON(context.Background(), server.URL, nil, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Code != 200 || out.Name != "song" {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestLinearBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		max     time.Duration
		want    time.Duration
	}{
		{name: "first retry", attempt: 0, want: 200 * time.Millisecond},
		{name: "second retry", attempt: 1, want: 400 * time.Millisecond},
		{name: "capped", attempt: 4, max: 500 * time.Millisecond, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LinearBackoff(200*time.Millisecond, tt.max, tt.attempt, nil); got != tt.want {
				t.Fatalf("LinearBackoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreakerTripsPerHost(t *testing.T) {
	var badHits int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&badHits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer good.Close()

	client := newTestClient(0, time.Millisecond)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if _, err := client.GetBytes(ctx, bad.URL, nil); !errors.Is(err, ErrUpstream) {
			t.Fatalf("call %d: expected ErrUpstream, got %v", i, err)
		}
	}

	_, err := client.GetBytes(ctx, bad.URL, nil)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected open breaker to surface ErrUpstream, got %v", err)
	}
	if got := atomic.LoadInt32(&badHits); got != 6 {
		t.Fatalf("expected open breaker to stop calls at 6 hits, got %d", got)
	}

	body, err := client.GetBytes(ctx, good.URL, nil)
	if err != nil {
		t.Fatalf("healthy host blocked by another host's breaker: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
}
