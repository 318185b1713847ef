package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/guance/pkg/logging"
)

const defaultTripAfter = 5

// BreakerSettings configures the circuit breaker placed in front of the openway.
type BreakerSettings struct {
	// TripAfter is the number of consecutive failures that opens the circuit.
	TripAfter uint32
	// OpenTimeout is how long the circuit stays open before letting probes through.
	OpenTimeout time.Duration
	// HalfOpenMax is the number of probe requests allowed while half open.
	HalfOpenMax uint32
}

type statusError struct {
	resp *http.Response
}

func (statusError) Error() string {
	return "openway rejected request"
}

type circuitRoundTripper struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func newCircuitRoundTripper(base http.RoundTripper, settings BreakerSettings, logger logging.Adapter) *circuitRoundTripper {
	tripAfter := settings.TripAfter
	if tripAfter == 0 {
		tripAfter = defaultTripAfter
	}

	return &circuitRoundTripper{
		base: base,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "guance-openway",
			MaxRequests: settings.HalfOpenMax,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripAfter
			},
			OnStateChange: func(name string, _, to gobreaker.State) {
				ctx := context.Background()
				attrs := []attribute.KeyValue{attribute.String("breaker", name)}

				switch to {
				case gobreaker.StateOpen:
					logger.Warn(ctx, "circuit opened, uploads are rejected", attrs...)
				case gobreaker.StateHalfOpen:
					logger.Info(ctx, "circuit half open, probing openway", attrs...)
				case gobreaker.StateClosed:
					logger.Info(ctx, "circuit closed", attrs...)
				}
			},
		}),
	}
}

// RoundTrip implements http.RoundTripper. Server errors and throttling count as breaker failures
// but the response is still handed back to the caller.
func (rt *circuitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := rt.cb.Execute(func() (any, error) {
		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusError{resp: resp}
		}

		return resp, nil
	})

	var se statusError
	if errors.As(err, &se) {
		return se.resp, nil
	}

	if err != nil {
		return nil, err
	}

	resp, _ := out.(*http.Response)

	return resp, nil
}
