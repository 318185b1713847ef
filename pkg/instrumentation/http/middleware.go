// Package http provides HTTP server middleware whose spans are classified as web traffic.
package http

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/guance/pkg/classifier"
	"github.com/hyp3rd/guance/pkg/config"
)

const instrumentationName = "guance/http"

// Middleware instruments HTTP handlers with a server span and request metrics.
//
// Spans carry both http.method and http.request.method so that the line-protocol
// source_type tag resolves to web. The latency histogram only reaches an OTLP mirror;
// the request counter and in-flight gauge are encoded as line protocol.
type Middleware struct {
	tracer        trace.Tracer
	requests      metric.Int64Counter
	inFlight      metric.Int64UpDownCounter
	duration      metric.Float64Histogram
	ignoredRoutes map[string]struct{}
}

// NewMiddleware creates a middleware from the tracer and meter providers.
func NewMiddleware(tp trace.TracerProvider, mp metric.MeterProvider, cfg config.HTTPInstrumentationConfig) (*Middleware, error) {
	tracer := tp.Tracer(instrumentationName)
	meter := mp.Meter(instrumentationName)

	reqCounter, err := meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Number of HTTP server requests received"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create request counter")
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of HTTP server requests in flight"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create in-flight counter")
	}

	latencyHist, err := meter.Float64Histogram(
		"http.server.duration.ms",
		metric.WithDescription("Latency of HTTP server requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create latency histogram")
	}

	return &Middleware{
		tracer:        tracer,
		requests:      reqCounter,
		inFlight:      inFlight,
		duration:      latencyHist,
		ignoredRoutes: toSet(cfg.IgnoredRoutes),
	}, nil
}

// Handler wraps next with tracing and metrics. An incoming traceparent becomes the
// span parent. Ignored routes pass through untouched.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeFromRequest(r)
		if m.shouldIgnore(route) {
			next.ServeHTTP(w, r)

			return
		}

		attrs := []attribute.KeyValue{
			classifier.HTTPMethodKey.String(r.Method),
			classifier.HTTPRequestMethodKey.String(r.Method),
			semconv.HTTPRouteKey.String(route),
		}

		parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := m.tracer.Start(
			parent,
			spanName(r.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		routeAttr := metric.WithAttributes(attrs[0], attrs[2])

		m.inFlight.Add(ctx, 1, routeAttr)
		defer m.inFlight.Add(ctx, -1, routeAttr)

		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rr, r.WithContext(ctx))

		duration := time.Since(start)

		resultAttrs := []attribute.KeyValue{attrs[0], attrs[2], semconv.HTTPStatusCodeKey.Int(rr.status)}

		spanAttrs := []attribute.KeyValue{semconv.HTTPStatusCodeKey.Int(rr.status)}
		if host := clientIP(r); host != "" {
			spanAttrs = append(spanAttrs, semconv.ClientAddressKey.String(host))
		}

		if rr.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rr.status))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		span.SetAttributes(spanAttrs...)

		m.requests.Add(ctx, 1, metric.WithAttributes(resultAttrs...))
		m.duration.Record(ctx, float64(duration)/float64(time.Millisecond), metric.WithAttributes(resultAttrs...))
	})
}

func (m *Middleware) shouldIgnore(route string) bool {
	_, ok := m.ignoredRoutes[route]

	return ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))

	for _, val := range values {
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}

		set[val] = struct{}{}
	}

	return set
}

func spanName(method, route string) string {
	if route == "" {
		route = "/"
	}

	return method + " " + route
}

func routeFromRequest(r *http.Request) string {
	if r == nil || r.URL == nil || r.URL.Path == "" {
		return "/"
	}

	return r.URL.Path
}

func clientIP(r *http.Request) string {
	if r == nil || r.RemoteAddr == "" {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// WriteHeader records the first status code and delegates to the underlying ResponseWriter.
func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}

	r.ResponseWriter.WriteHeader(status)
}

// Write delegates to the underlying ResponseWriter.
func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true

	n, err := r.ResponseWriter.Write(b)
	if err != nil {
		return n, ewrap.Wrap(err, "write response")
	}

	return n, nil
}
