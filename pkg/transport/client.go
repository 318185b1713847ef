// Package transport uploads encoded line-protocol payloads to a Guance openway.
//
// A Client performs exactly one synchronous POST per Write call and never returns an error
// to its caller: the outcome is reported as a Result and logged.
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/logging"
)

var (
	// ErrEndpointNotSet reports a write attempted before an endpoint was configured.
	ErrEndpointNotSet = ewrap.New("guance endpoint is not set")
	// ErrTokenNotSet reports a write attempted before a token was configured.
	ErrTokenNotSet = ewrap.New("guance token is not set")
	// ErrStatus reports a non-2xx response from the openway.
	ErrStatus = ewrap.New("unexpected response status")
)

// Status is the outcome of a single Write.
type Status int

const (
	// StatusSent means the openway accepted the payload.
	StatusSent Status = iota
	// StatusSkipped means no request was made because the client is not configured.
	StatusSkipped
	// StatusFailed means the request failed or was rejected.
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes what happened to one payload. It is informational only.
type Result struct {
	Status     Status
	StatusCode int
	Items      int
	Err        error
}

// OK reports whether the payload was delivered.
func (r Result) OK() bool {
	return r.Status == StatusSent
}

// Client holds the openway endpoint and token. It is safe for concurrent use.
type Client struct {
	mu       sync.RWMutex
	endpoint string
	token    string

	headers map[string]string
	http    *retryablehttp.Client
	logger  logging.Adapter
}

// New builds a client. Without WithEndpoint and WithToken the client starts unconfigured
// and every Write is skipped with a warning.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	client := &Client{
		headers: o.headers,
		logger:  o.logger,
		http:    newRetryableClient(o),
	}

	if o.endpoint != nil {
		client.SetEndpoint(*o.endpoint)
	}

	if o.token != nil {
		client.SetToken(*o.token)
	}

	return client
}

// SetEndpoint stores the openway base URL verbatim. An empty value selects the public openway.
func (c *Client) SetEndpoint(endpoint string) {
	if endpoint == "" {
		endpoint = constants.DefaultEndpoint
	}

	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()
}

// SetToken stores the write token. An empty value is rejected and the previous token is kept.
func (c *Client) SetToken(token string) {
	if token == "" {
		c.logger.Warn(context.Background(), "openway token is empty, please set otel.exporter.guance.token")

		return
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Config returns the current endpoint and whether a token is present. The token itself is never exposed.
func (c *Client) Config() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.endpoint, c.token != ""
}

// Write posts payload to endpoint+category with the item count in the X-Points header.
// It blocks for the duration of the request and always returns control to the caller.
func (c *Client) Write(ctx context.Context, payload string, items int, category string) Result {
	c.mu.RLock()
	endpoint, token := c.endpoint, c.token
	c.mu.RUnlock()

	if endpoint == "" || token == "" {
		err := ErrTokenNotSet
		if endpoint == "" {
			err = ErrEndpointNotSet
		}

		c.logger.Warn(ctx, "endpoint or token is empty, can not upload data to openway",
			attribute.String("category", category),
			attribute.Int("items", items),
		)

		return Result{Status: StatusSkipped, Items: items, Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint+category+"?token="+token, []byte(payload))
	if err != nil {
		return c.failed(ctx, category, items, 0, ewrap.Wrap(redact(err, token), "build openway request"))
	}

	req.Header.Set(constants.PointsHeader, strconv.Itoa(items))

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if resp != nil {
		defer drain(resp)
	}

	if resp != nil && (resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices) {
		return c.failed(ctx, category, items, resp.StatusCode, ewrap.Wrapf(ErrStatus, "code=%d", resp.StatusCode))
	}

	if err != nil {
		return c.failed(ctx, category, items, 0, ewrap.Wrapf(redact(err, token), "post %s", category))
	}

	c.logger.Debug(ctx, "payload delivered",
		attribute.String("category", category),
		attribute.Int("items", items),
	)

	return Result{Status: StatusSent, StatusCode: resp.StatusCode, Items: items}
}

func (c *Client) failed(ctx context.Context, category string, items, code int, err error) Result {
	c.logger.Warn(ctx, "openway upload failed",
		attribute.String("category", category),
		attribute.Int("items", items),
		attribute.Int("status_code", code),
		attribute.String("error", err.Error()),
	)

	return Result{Status: StatusFailed, StatusCode: code, Items: items, Err: err}
}

// redact strips the query, and with it the token, from URL errors. An error whose
// text still carries the token is replaced by a flattened copy with the token masked.
func redact(err error, token string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if parsed, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			parsed.RawQuery = ""
			urlErr.URL = parsed.String()
		} else {
			urlErr.URL = ""
		}
	}

	if token != "" && strings.Contains(err.Error(), token) {
		return ewrap.New(strings.ReplaceAll(err.Error(), token, "REDACTED"))
	}

	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func newRetryableClient(o *options) *retryablehttp.Client {
	base := o.httpClient
	if base == nil {
		base = &http.Client{Transport: http.DefaultTransport}
	}

	httpClient := *base
	if o.timeout > 0 {
		httpClient.Timeout = o.timeout
	}

	transport := httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if o.breaker != nil {
		transport = newCircuitRoundTripper(transport, *o.breaker, o.logger)
	}

	httpClient.Transport = transport

	return &retryablehttp.Client{
		HTTPClient:   &httpClient,
		Logger:       leveledLogger{adapter: o.logger},
		RetryWaitMin: o.retry.WaitMin,
		RetryWaitMax: o.retry.WaitMax,
		RetryMax:     o.retry.MaxRetries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
}

// RetryPolicy bounds the retries of one Write. The zero value performs a single attempt.
type RetryPolicy struct {
	MaxRetries int
	WaitMin    time.Duration
	WaitMax    time.Duration
}
