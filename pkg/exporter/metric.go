package exporter

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/lineprotocol"
	"github.com/hyp3rd/guance/pkg/logging"
	"github.com/hyp3rd/guance/pkg/transport"
)

var _ sdkmetric.Exporter = (*MetricExporter)(nil)

// MetricExporter encodes gauge and sum points and writes them to the metric category.
type MetricExporter struct {
	client *transport.Client
	logger logging.Adapter
	stats  *Stats
}

// NewMetricExporter builds a metric exporter writing through client.
func NewMetricExporter(client *transport.Client, opts ...Option) *MetricExporter {
	o := newOptions(opts)

	return &MetricExporter{
		client: client,
		logger: o.logger,
		stats:  newStats("metrics", constants.MetricCategory),
	}
}

// DeltaTemporality prefers delta for every instrument except up-down counters,
// whose running total is only meaningful as a cumulative value.
func DeltaTemporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	switch kind {
	case sdkmetric.InstrumentKindUpDownCounter, sdkmetric.InstrumentKindObservableUpDownCounter:
		return metricdata.CumulativeTemporality
	default:
		return metricdata.DeltaTemporality
	}
}

// Temporality implements sdkmetric.Exporter.
func (*MetricExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return DeltaTemporality(kind)
}

// Aggregation implements sdkmetric.Exporter.
func (*MetricExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

// Export implements sdkmetric.Exporter. Histogram and summary data are dropped; every line
// ends with a newline. X-Points carries the number of metrics in the batch. Always returns nil.
func (e *MetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if rm == nil {
		rm = &metricdata.ResourceMetrics{}
	}

	var (
		payload     strings.Builder
		items       int
		unsupported int
	)

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			items++

			if !lineprotocol.Supported(m.Data) {
				unsupported++

				continue
			}

			for _, rec := range lineprotocol.MetricRecords(m, rm.Resource) {
				line, err := lineprotocol.Encode(rec)
				if err != nil {
					e.stats.encodeErrors.Add(1)
					e.logger.Debug(ctx, "drop metric point",
						attribute.String("metric", m.Name),
						attribute.String("error", err.Error()),
					)

					continue
				}

				payload.WriteString(line)
				payload.WriteByte('\n')
			}
		}
	}

	e.stats.filtered.Add(int64(unsupported))

	res := e.client.Write(ctx, payload.String(), items, constants.MetricCategory)
	e.stats.record(res)

	e.logger.Debug(ctx, "metric batch exported",
		attribute.Int("metrics", items),
		attribute.Int("unsupported", unsupported),
		attribute.String("result", res.Status.String()),
	)

	return nil
}

// ForceFlush implements sdkmetric.Exporter. Nothing is buffered.
func (*MetricExporter) ForceFlush(context.Context) error {
	return nil
}

// Shutdown implements sdkmetric.Exporter. Nothing is buffered.
func (*MetricExporter) Shutdown(context.Context) error {
	return nil
}

// Stats returns the delivery statistics of the exporter.
func (e *MetricExporter) Stats() *Stats {
	return e.stats
}
