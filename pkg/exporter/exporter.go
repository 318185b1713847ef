package exporter

import (
	"context"
	"maps"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/config"
	"github.com/hyp3rd/guance/pkg/logging"
	"github.com/hyp3rd/guance/pkg/transport"
)

// Set is a span exporter and a metric exporter sharing one transport client.
type Set struct {
	Client  *transport.Client
	Spans   *SpanExporter
	Metrics *MetricExporter
}

// New builds both exporters from the guance exporter configuration.
// An empty token is accepted: uploads are skipped with a warning until one is set.
func New(cfg config.GuanceConfig, logger logging.Adapter) *Set {
	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	if cfg.Endpoint == "" {
		logger.Warn(context.Background(), "guance endpoint is not set, uploading to the default openway",
			attribute.String("endpoint", constants.DefaultEndpoint),
		)
	}

	if cfg.Token == "" {
		logger.Warn(context.Background(), "guance token is not set, please set otel.exporter.guance.token")
	}

	client := transport.New(TransportOptions(cfg, logger)...)

	return &Set{
		Client:  client,
		Spans:   NewSpanExporter(client, WithLogger(logger)),
		Metrics: NewMetricExporter(client, WithLogger(logger)),
	}
}

// TransportOptions translates the guance configuration into transport options.
func TransportOptions(cfg config.GuanceConfig, logger logging.Adapter) []transport.Option {
	opts := []transport.Option{
		transport.WithEndpoint(cfg.Endpoint),
		transport.WithToken(cfg.Token),
		transport.WithLogger(logger),
		transport.WithTimeout(cfg.Timeout),
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(maps.Clone(cfg.Headers)))
	}

	if cfg.Retry.Enabled {
		opts = append(opts, transport.WithRetry(transport.RetryPolicy{
			MaxRetries: cfg.Retry.MaxAttempts,
			WaitMin:    cfg.Retry.InitialInterval,
			WaitMax:    cfg.Retry.MaxInterval,
		}))
	}

	if cfg.Breaker.Enabled {
		opts = append(opts, transport.WithBreaker(transport.BreakerSettings{
			TripAfter:   cfg.Breaker.TripAfter,
			OpenTimeout: cfg.Breaker.OpenTimeout,
			HalfOpenMax: cfg.Breaker.HalfOpenMax,
		}))
	}

	return opts
}
