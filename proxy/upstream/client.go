package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/sony/gobreaker"
)

const (
	DefaultMaxRetries  = 2
	DefaultBackoffStep = 200 * time.Millisecond
	DefaultUserAgent   = "SongProxy-Go/1.0 (+wechat-song-plugin)"

	maxBodyBytes = 8 << 20
)

// ErrUpstream marks a call that failed after the retry budget was spent,
// or that the circuit breaker refused.
var ErrUpstream = errors.New("upstream: request failed")

// StatusError reports the last HTTP status of a failed call.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Attempts   int
}

func (e *StatusError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("upstream: %s %s: status %d after %d attempts", e.Method, e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("upstream: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Unwrap lets errors.Is match ErrUpstream.
func (e *StatusError) Unwrap() error {
	return ErrUpstream
}

// Options configures a Client.
type Options struct {
	// Name labels the circuit breaker and log lines.
	Name       string
	UserAgent  string
	MaxRetries int
	// BackoffStep is multiplied by the retry number: step, 2*step, ...
	BackoffStep time.Duration
	// HeaderTimeout bounds the wait for response headers. Bodies are not bounded.
	HeaderTimeout time.Duration
	Transport     http.RoundTripper
	Logger        proxy.Logger
}

// Client issues upstream calls with linear-backoff retry and one circuit
// breaker per upstream host.
type Client struct {
	name      string
	userAgent string
	retry     *retryablehttp.Client
	settings  gobreaker.Settings
	logger    proxy.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// Response is a fully read upstream reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a Client. A negative MaxRetries selects the default.
func New(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "upstream"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffStep <= 0 {
		opts.BackoffStep = DefaultBackoffStep
	}
	if opts.HeaderTimeout <= 0 {
		opts.HeaderTimeout = 15 * time.Second
	}
	logger := proxy.OrNop(opts.Logger).With("upstream", opts.Name)

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: opts.HeaderTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Transport: transport}
	client.RetryMax = opts.MaxRetries
	client.RetryWaitMin = opts.BackoffStep
	client.RetryWaitMax = opts.BackoffStep * time.Duration(opts.MaxRetries+1)
	client.Backoff = LinearBackoff
	client.CheckRetry = CheckRetry
	client.ErrorHandler = giveUp
	client.Logger = nil
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug("retrying upstream call", "method", req.Method, "url", req.URL.Redacted(), "attempt", attempt)
		}
	}

	settings := gobreaker.Settings{
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		name:      opts.Name,
		userAgent: opts.UserAgent,
		retry:     client,
		settings:  settings,
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breakerFor returns the breaker guarding host, creating it on first use.
func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	settings := c.settings
	settings.Name = c.name + " " + host
	cb := gobreaker.NewCircuitBreaker(settings)
	c.breakers[host] = cb
	return cb
}

// LinearBackoff waits min for the first retry, 2*min for the second and so on,
// capped at max when max is set.
func LinearBackoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	wait := min * time.Duration(attemptNum+1)
	if max > 0 && wait > max {
		return max
	}
	return wait
}

// CheckRetry retries network failures and 5xx responses. Everything else,
// 4xx included, goes back to the caller untouched.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err != nil {
		return true, nil
	}
	return resp.StatusCode >= http.StatusInternalServerError, nil
}

func giveUp(resp *http.Response, err error, numTries int) (*http.Response, error) {
	if resp != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if resp != nil {
		return nil, &StatusError{
			Method:     resp.Request.Method,
			URL:        resp.Request.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Attempts:   numTries,
		}
	}
	if err == nil {
		err = errors.New("no response")
	}
	return nil, fmt.Errorf("%w: giving up after %d attempt(s): %v", ErrUpstream, numTries, err)
}

// NewRequest builds a request whose body can be replayed on retry.
func (c *Client) NewRequest(ctx context.Context, method, rawURL string, body []byte) (*retryablehttp.Request, error) {
	var reader interface{}
	if body != nil {
		reader = body
	}
	return retryablehttp.NewRequestWithContext(ctx, method, rawURL, reader)
}

// Do executes req. The caller owns the response body.
func (c *Client) Do(req *retryablehttp.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)

	result, err := c.breakerFor(req.URL.Host).Execute(func() (interface{}, error) {
		return c.retry.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, c.name, err)
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// Fetch executes a request and reads the whole body. Non-2xx statuses below
// 500 are returned without error so callers can inspect them.
func (c *Client) Fetch(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*Response, error) {
	req, err := c.NewRequest(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUpstream, req.URL.Redacted(), err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// GetBytes fetches rawURL and fails on any non-2xx status.
func (c *Client) GetBytes(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	resp, err := c.Fetch(ctx, http.MethodGet, rawURL, header, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: http.MethodGet, URL: rawURL, StatusCode: resp.StatusCode, Attempts: 1}
	}
	return resp.Body, nil
}

// GetJSON fetches rawURL and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, v any) error {
	data, err := c.GetBytes(ctx, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Name returns the client label.
func (c *Client) Name() string {
	return c.name
}
