package runtime

import (
	"context"
	"errors"

	"github.com/hyp3rd/ewrap"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hyp3rd/guance/pkg/config"
	"github.com/hyp3rd/guance/pkg/diagnostics"
	"github.com/hyp3rd/guance/pkg/exporter"
	"github.com/hyp3rd/guance/pkg/logging"
)

// exporterBundle owns the guance exporters, their metric reader and the optional OTLP mirror.
// Once handed to the providers, the providers shut them down.
type exporterBundle struct {
	guance       *exporter.Set
	metricReader *sdkmetric.PeriodicReader
	mirror       *mirror
}

func newExporterBundle(ctx context.Context, cfg config.ExporterConfig, logger logging.Adapter) (*exporterBundle, error) {
	set := exporter.New(cfg.Guance, logger)

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Guance.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Guance.MetricInterval))
	}

	bundle := &exporterBundle{
		guance:       set,
		metricReader: sdkmetric.NewPeriodicReader(set.Metrics, readerOpts...),
	}

	if cfg.OTLP == nil {
		return bundle, nil
	}

	if cfg.OTLP.Endpoint == "" {
		return nil, ewrap.New("otlp mirror endpoint is required")
	}

	m, err := newMirror(ctx, cfg.OTLP, cfg.Guance.MetricInterval)
	if err != nil {
		return nil, errors.Join(ewrap.Wrap(err, "build otlp mirror"), bundle.shutdown(ctx))
	}

	bundle.mirror = m

	return bundle, nil
}

// shutdown releases exporters that were never attached to a provider.
func (b *exporterBundle) shutdown(ctx context.Context) error {
	if b == nil {
		return nil
	}

	var errs []error

	if b.metricReader != nil {
		errs = append(errs, b.metricReader.Shutdown(ctx))
	}

	if b.mirror != nil {
		errs = append(errs, b.mirror.reader.Shutdown(ctx), b.mirror.spans.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

func (b *exporterBundle) mirrorEndpoint() string {
	if b == nil || b.mirror == nil {
		return ""
	}

	return b.mirror.endpoint
}

func (b *exporterBundle) traceStats() exporter.StatsSnapshot {
	if b == nil || b.guance == nil {
		return exporter.StatsSnapshot{}
	}

	return b.guance.Spans.Stats().Snapshot()
}

func (b *exporterBundle) metricStats() exporter.StatsSnapshot {
	if b == nil || b.guance == nil {
		return exporter.StatsSnapshot{}
	}

	return b.guance.Metrics.Stats().Snapshot()
}

func exporterStatus(snap exporter.StatsSnapshot) diagnostics.ExporterStatus {
	return diagnostics.ExporterStatus{
		Category:       snap.Category,
		BatchesSent:    snap.BatchesSent,
		BatchesSkipped: snap.BatchesSkipped,
		BatchesFailed:  snap.BatchesFailed,
		ItemsSent:      snap.ItemsSent,
		ItemsDropped:   snap.ItemsDropped,
		Filtered:       snap.Filtered,
		EncodeErrors:   snap.EncodeErrors,
		LastError:      snap.LastError,
		LastErrorTime:  snap.LastErrorTime,
	}
}
