// Package exporter implements OpenTelemetry span and metric exporters that upload line protocol
// to a Guance openway. Both exporters are fire-and-forget: they never return an error.
package exporter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/lineprotocol"
	"github.com/hyp3rd/guance/pkg/logging"
	"github.com/hyp3rd/guance/pkg/transport"
)

var _ sdktrace.SpanExporter = (*SpanExporter)(nil)

// SpanExporter encodes sampled spans and writes them to the tracing category.
type SpanExporter struct {
	client *transport.Client
	logger logging.Adapter
	stats  *Stats
}

// NewSpanExporter builds a span exporter writing through client.
func NewSpanExporter(client *transport.Client, opts ...Option) *SpanExporter {
	o := newOptions(opts)

	return &SpanExporter{
		client: client,
		logger: o.logger,
		stats:  newStats("traces", constants.TraceCategory),
	}
}

// ExportSpans implements sdktrace.SpanExporter. Unsampled spans are skipped, but X-Points
// carries the size of the whole batch. The result of the write is recorded in Stats and
// the method always returns nil.
func (e *SpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	lines := make([]string, 0, len(spans))

	for _, span := range spans {
		if !span.SpanContext().IsSampled() {
			e.stats.filtered.Add(1)

			continue
		}

		line, err := lineprotocol.Encode(lineprotocol.SpanRecord(span, span.Resource()))
		if err != nil {
			e.stats.encodeErrors.Add(1)
			e.logger.Debug(ctx, "drop span",
				attribute.String("span", span.Name()),
				attribute.String("error", err.Error()),
			)

			continue
		}

		lines = append(lines, line)
	}

	res := e.client.Write(ctx, lineprotocol.JoinLines(lines), len(spans), constants.TraceCategory)
	e.stats.record(res)

	e.logger.Debug(ctx, "span batch exported",
		attribute.Int("spans", len(spans)),
		attribute.Int("lines", len(lines)),
		attribute.String("result", res.Status.String()),
	)

	return nil
}

// Shutdown implements sdktrace.SpanExporter. Nothing is buffered.
func (*SpanExporter) Shutdown(context.Context) error {
	return nil
}

// Stats returns the delivery statistics of the exporter.
func (e *SpanExporter) Stats() *Stats {
	return e.stats
}
