package transport

import (
	"maps"
	"net/http"
	"time"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/logging"
)

// Option customises a Client.
type Option func(*options)

type options struct {
	endpoint   *string
	token      *string
	httpClient *http.Client
	logger     logging.Adapter
	timeout    time.Duration
	headers    map[string]string
	retry      RetryPolicy
	breaker    *BreakerSettings
}

func defaultOptions() *options {
	return &options{
		logger:  logging.NewNoopAdapter(),
		timeout: constants.DefaultWriteTimeout,
		headers: map[string]string{},
	}
}

// WithEndpoint sets the initial endpoint with the same rules as SetEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = &endpoint
	}
}

// WithToken sets the initial token with the same rules as SetToken.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = &token
	}
}

// WithHTTPClient replaces the underlying http.Client. Its transport is kept.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithLogger sets the adapter used for transport warnings.
func WithLogger(logger logging.Adapter) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimeout bounds each attempt of a Write. With retries enabled a Write may take up to
// MaxRetries+1 attempts plus the backoff waits; bound the whole call through its context.
// Zero keeps the http.Client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithHeaders adds static headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		maps.Copy(o.headers, headers)
	}
}

// WithRetry enables retries of failed requests.
func WithRetry(policy RetryPolicy) Option {
	return func(o *options) {
		if policy.MaxRetries < 0 {
			policy.MaxRetries = 0
		}

		o.retry = policy
	}
}

// WithBreaker wraps the transport with a circuit breaker.
func WithBreaker(settings BreakerSettings) Option {
	return func(o *options) {
		o.breaker = &settings
	}
}
