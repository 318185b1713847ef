package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hyp3rd/guance/pkg/classifier"
	"github.com/hyp3rd/guance/pkg/config"
	guancehttp "github.com/hyp3rd/guance/pkg/instrumentation/http"
	"github.com/hyp3rd/guance/pkg/lineprotocol"
)

func newMiddleware(t *testing.T, cfg config.HTTPInstrumentationConfig) (*guancehttp.Middleware, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mw, err := guancehttp.NewMiddleware(tp, mp, cfg)
	if err != nil {
		t.Fatalf("NewMiddleware: %v", err)
	}

	return mw, recorder, reader
}

func TestMiddlewareProducesWebSpans(t *testing.T) {
	t.Parallel()

	mw, recorder, reader := newMiddleware(t, config.HTTPInstrumentationConfig{Enabled: true})

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	rec := lineprotocol.SpanRecord(spans[0], spans[0].Resource())

	if rec.Tags["source_type"] != classifier.SourceWeb {
		t.Fatalf("expected web source type, got %q", rec.Tags["source_type"])
	}

	if rec.Tags["span_type"] != classifier.SpanEntry {
		t.Fatalf("expected entry span, got %q", rec.Tags["span_type"])
	}

	if rec.Tags["status"] != lineprotocol.StatusError {
		t.Fatalf("expected error status for 500, got %q", rec.Tags["status"])
	}

	if rec.Tags["operation"] != "POST /orders" {
		t.Fatalf("unexpected operation %q", rec.Tags["operation"])
	}

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	names := map[string]bool{}

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = lineprotocol.Supported(m.Data)
		}
	}

	if !names["http.server.requests"] || !names["http.server.active_requests"] {
		t.Fatalf("expected encodable request metrics, got %v", names)
	}
}

func TestMiddlewareIgnoresRoutes(t *testing.T) {
	t.Parallel()

	mw, recorder, _ := newMiddleware(t, config.HTTPInstrumentationConfig{
		Enabled:       true,
		IgnoredRoutes: []string{" /healthz "},
	})

	called := false
	handler := mw.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !called {
		t.Fatal("expected ignored route to reach the handler")
	}

	if len(recorder.Ended()) != 0 {
		t.Fatalf("expected no span for ignored route, got %d", len(recorder.Ended()))
	}
}

func TestMiddlewareContinuesIncomingTrace(t *testing.T) {
	t.Parallel()

	otel.SetTextMapPropagator(propagation.TraceContext{})

	mw, recorder, _ := newMiddleware(t, config.HTTPInstrumentationConfig{Enabled: true})
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/orders", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected the incoming trace id, got %s", got)
	}

	rec := lineprotocol.SpanRecord(spans[0], spans[0].Resource())
	if rec.Tags["span_type"] != classifier.SpanLocal {
		t.Fatalf("expected a local span under a remote parent, got %q", rec.Tags["span_type"])
	}
}
