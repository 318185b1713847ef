package runtime

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"

	"github.com/hyp3rd/guance/pkg/config"
)

// ErrTLSNotEnabled is returned by tlsConfigFrom when no TLS setting is present.
var ErrTLSNotEnabled = ewrap.New("tls is not enabled").WithContext(
	&ewrap.ErrorContext{
		Severity: ewrap.SeverityError,
		Type:     ewrap.ErrorTypeConfiguration,
	},
)

// mirror sends a copy of all telemetry to an OTLP collector next to the openway.
type mirror struct {
	endpoint string
	spans    sdktrace.SpanExporter
	reader   *sdkmetric.PeriodicReader
}

func newMirror(ctx context.Context, cfg *config.OTLPConfig, interval time.Duration) (*mirror, error) {
	tlsCfg, err := mirrorTLS(cfg)
	if err != nil {
		return nil, err
	}

	spans, err := newMirrorSpanExporter(ctx, cfg, tlsCfg)
	if err != nil {
		return nil, err
	}

	metrics, err := newMirrorMetricExporter(ctx, cfg, tlsCfg)
	if err != nil {
		return nil, errors.Join(err, spans.Shutdown(ctx))
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(interval))
	}

	return &mirror{
		endpoint: cfg.Endpoint,
		spans:    spans,
		reader:   sdkmetric.NewPeriodicReader(metrics, readerOpts...),
	}, nil
}

func usesHTTP(protocol string) bool {
	switch strings.ToLower(protocol) {
	case "http", "https":
		return true
	default:
		return false
	}
}

func newMirrorSpanExporter(ctx context.Context, cfg *config.OTLPConfig, tlsCfg *tls.Config) (sdktrace.SpanExporter, error) {
	if usesHTTP(cfg.Protocol) {
		exp, err := otlptracehttp.New(ctx, traceHTTPOptions.build(cfg, tlsCfg)...)
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp http trace exporter")
		}

		return exp, nil
	}

	exp, err := otlptracegrpc.New(ctx, traceGRPCOptions.build(cfg, tlsCfg)...)
	if err != nil {
		return nil, ewrap.Wrap(err, "create otlp grpc trace exporter")
	}

	return exp, nil
}

func newMirrorMetricExporter(ctx context.Context, cfg *config.OTLPConfig, tlsCfg *tls.Config) (sdkmetric.Exporter, error) {
	if usesHTTP(cfg.Protocol) {
		exp, err := otlpmetrichttp.New(ctx, metricHTTPOptions.build(cfg, tlsCfg)...)
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp http metric exporter")
		}

		return exp, nil
	}

	exp, err := otlpmetricgrpc.New(ctx, metricGRPCOptions.build(cfg, tlsCfg)...)
	if err != nil {
		return nil, ewrap.Wrap(err, "create otlp grpc metric exporter")
	}

	return exp, nil
}

// otlpOptions maps OTLPConfig onto the option type of one OTLP exporter flavour.
type otlpOptions[T any] struct {
	endpoint    func(string) T
	insecure    func() T
	tls         func(*tls.Config) T
	timeout     func(time.Duration) T
	headers     func(map[string]string) T
	compression func(string) T
	retry       func(config.RetryConfig) T
}

func (f otlpOptions[T]) build(cfg *config.OTLPConfig, tlsCfg *tls.Config) []T {
	opts := []T{f.endpoint(cfg.Endpoint)}

	switch {
	case cfg.Insecure:
		opts = append(opts, f.insecure())
	case tlsCfg != nil:
		opts = append(opts, f.tls(tlsCfg))
	}

	if cfg.Timeout > 0 {
		opts = append(opts, f.timeout(cfg.Timeout))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, f.headers(cfg.Headers))
	}

	if compression := strings.ToLower(cfg.Compression); compression != "" && compression != "none" {
		opts = append(opts, f.compression(compression))
	}

	if cfg.Retry.Enabled {
		opts = append(opts, f.retry(cfg.Retry))
	}

	return opts
}

var traceGRPCOptions = otlpOptions[otlptracegrpc.Option]{
	endpoint: otlptracegrpc.WithEndpoint,
	insecure: otlptracegrpc.WithInsecure,
	tls: func(c *tls.Config) otlptracegrpc.Option {
		return otlptracegrpc.WithTLSCredentials(credentials.NewTLS(c))
	},
	timeout:     otlptracegrpc.WithTimeout,
	headers:     otlptracegrpc.WithHeaders,
	compression: otlptracegrpc.WithCompressor,
	retry: func(r config.RetryConfig) otlptracegrpc.Option {
		return otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: r.InitialInterval,
			MaxInterval:     r.MaxInterval,
			MaxElapsedTime:  r.MaxElapsedTime,
		})
	},
}

var traceHTTPOptions = otlpOptions[otlptracehttp.Option]{
	endpoint: otlptracehttp.WithEndpoint,
	insecure: otlptracehttp.WithInsecure,
	tls:      otlptracehttp.WithTLSClientConfig,
	timeout:  otlptracehttp.WithTimeout,
	headers:  otlptracehttp.WithHeaders,
	compression: func(value string) otlptracehttp.Option {
		if value == "gzip" {
			return otlptracehttp.WithCompression(otlptracehttp.GzipCompression)
		}

		return otlptracehttp.WithCompression(otlptracehttp.NoCompression)
	},
	retry: func(r config.RetryConfig) otlptracehttp.Option {
		return otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: r.InitialInterval,
			MaxInterval:     r.MaxInterval,
			MaxElapsedTime:  r.MaxElapsedTime,
		})
	},
}

var metricGRPCOptions = otlpOptions[otlpmetricgrpc.Option]{
	endpoint: otlpmetricgrpc.WithEndpoint,
	insecure: otlpmetricgrpc.WithInsecure,
	tls: func(c *tls.Config) otlpmetricgrpc.Option {
		return otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(c))
	},
	timeout:     otlpmetricgrpc.WithTimeout,
	headers:     otlpmetricgrpc.WithHeaders,
	compression: otlpmetricgrpc.WithCompressor,
	retry: func(r config.RetryConfig) otlpmetricgrpc.Option {
		return otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: r.InitialInterval,
			MaxInterval:     r.MaxInterval,
			MaxElapsedTime:  r.MaxElapsedTime,
		})
	},
}

var metricHTTPOptions = otlpOptions[otlpmetrichttp.Option]{
	endpoint: otlpmetrichttp.WithEndpoint,
	insecure: otlpmetrichttp.WithInsecure,
	tls:      otlpmetrichttp.WithTLSClientConfig,
	timeout:  otlpmetrichttp.WithTimeout,
	headers:  otlpmetrichttp.WithHeaders,
	compression: func(value string) otlpmetrichttp.Option {
		if value == "gzip" {
			return otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression)
		}

		return otlpmetrichttp.WithCompression(otlpmetrichttp.NoCompression)
	},
	retry: func(r config.RetryConfig) otlpmetrichttp.Option {
		return otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
			Enabled:         true,
			InitialInterval: r.InitialInterval,
			MaxInterval:     r.MaxInterval,
			MaxElapsedTime:  r.MaxElapsedTime,
		})
	},
}

func mirrorTLS(cfg *config.OTLPConfig) (*tls.Config, error) {
	if cfg.Insecure {
		return nil, nil
	}

	tlsCfg, err := tlsConfigFrom(cfg.TLS)
	if errors.Is(err, ErrTLSNotEnabled) {
		return nil, nil
	}

	return tlsCfg, err
}

// tlsConfigFrom builds a tls.Config from the provided TLSConfig.
func tlsConfigFrom(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.Insecure {
		return nil, ErrTLSNotEnabled
	}

	tlsCfg := &tls.Config{
		//nolint:gosec // allow insecure skip verify via config.
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.CAFile != "" {
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, ewrap.Wrapf(err, "read ca file %s", cfg.CAFile)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, ewrap.Newf("failed to parse ca file %s", cfg.CAFile)
		}

		tlsCfg.RootCAs = pool
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, ewrap.New("tls cert_file and key_file must both be set")
		}

		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, ewrap.Wrap(err, "load tls client certificate")
		}

		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}
