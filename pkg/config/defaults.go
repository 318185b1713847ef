package config

import (
	"time"

	"github.com/hyp3rd/guance/internal/constants"
)

const (
	defaultMaxElapsedTime = time.Minute
	defaultInterval       = 500 * time.Millisecond
	defaultMaxInterval    = 5 * time.Second
	defaultRetryAttempts  = 3
	defaultTripAfter      = 5
	defaultMaxAttributes  = 1024
	defaultWarnPerMinute  = 5
)

// DefaultConfig returns a Config populated with production-safe defaults.
// The token is empty: uploads are skipped until one is configured.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "guance-service",
			Namespace:   "default",
			Version:     "0.0.1",
			Environment: "development",
			Attributes:  map[string]string{},
		},
		Exporters: ExporterConfig{
			Guance: GuanceConfig{
				Endpoint:       constants.DefaultEndpoint,
				Timeout:        constants.DefaultWriteTimeout,
				MetricInterval: constants.DefaultMetricInterval,
				Batch: BatchConfig{
					Enabled:        true,
					MaxExportBatch: 512,
					Timeout:        constants.DefaultTimeout,
					MaxQueueSize:   2048,
				},
				Retry: RetryConfig{
					Enabled:         false,
					MaxAttempts:     defaultRetryAttempts,
					MaxElapsedTime:  defaultMaxElapsedTime,
					InitialInterval: defaultInterval,
					MaxInterval:     defaultMaxInterval,
				},
				Breaker: BreakerConfig{
					Enabled:     false,
					TripAfter:   defaultTripAfter,
					OpenTimeout: constants.DefaultShutdownTimeout,
					HalfOpenMax: 1,
				},
			},
		},
		Sampling: SamplingConfig{
			Mode:     "parentbased_always_on",
			Argument: 1.0,
		},
		SpanLimits: SpanLimitsConfig{
			MaxAttributes: defaultMaxAttributes,
		},
		Instrumentation: InstrumentationConfig{
			HTTP: HTTPInstrumentationConfig{
				Enabled: true,
			},
			GRPC: GRPCInstrumentationConfig{
				Enabled: true,
			},
			SQL: SQLInstrumentationConfig{
				Enabled: false,
			},
			Messaging: MessagingInstrumentationConfig{
				Enabled: false,
			},
			Worker: WorkerInstrumentationConfig{
				Enabled: false,
			},
			RuntimeMetrics: RuntimeMetricsConfig{
				Enabled: true,
			},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			Adapter:       "slog",
			SampleRatio:   1.0,
			WarnPerMinute: defaultWarnPerMinute,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:  false,
			HTTPAddr: "127.0.0.1:14272",
		},
	}
}
