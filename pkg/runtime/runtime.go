// Package runtime wires the guance exporters into OpenTelemetry tracer and meter providers.
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/hyp3rd/guance/pkg/config"
	"github.com/hyp3rd/guance/pkg/diagnostics"
	guancegrpc "github.com/hyp3rd/guance/pkg/instrumentation/grpc"
	guancehttp "github.com/hyp3rd/guance/pkg/instrumentation/http"
	"github.com/hyp3rd/guance/pkg/instrumentation/messaging"
	guancesql "github.com/hyp3rd/guance/pkg/instrumentation/sql"
	"github.com/hyp3rd/guance/pkg/instrumentation/worker"
	"github.com/hyp3rd/guance/pkg/logging"
)

// Runtime encapsulates the active telemetry providers and lifecycle hooks.
type Runtime struct {
	cfg    config.Config
	logger logging.Adapter
	state  *MetricsState

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	exporters      *exporterBundle
	metrics        *runtimeMetricsController
	httpMiddleware *guancehttp.Middleware
	grpcServerInt  grpc.UnaryServerInterceptor
	grpcClientInt  grpc.UnaryClientInterceptor
	sqlHelper      *guancesql.Helper
	messaging      *messaging.Helper
	worker         *worker.Helper
	diagServer     *diagnostics.Server
	startTime      time.Time

	mu       sync.RWMutex
	shutdown bool
	once     sync.Once
}

// New creates a Runtime from the supplied Config and installs its providers as the otel globals.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	o := newOptions(opts)
	exporterLogger := logging.DiagnosticsFromConfig(o.logger, cfg.Logging)

	exporters, err := newExporterBundle(ctx, cfg.Exporters, exporterLogger)
	if err != nil {
		return nil, ewrap.Wrap(err, "build exporters")
	}

	res, err := buildResource(ctx, cfg.Service)
	if err != nil {
		return nil, errors.Join(ewrap.Wrap(err, "build resource"), exporters.shutdown(ctx))
	}

	tp, err := buildTracerProvider(cfg, res, exporters)
	if err != nil {
		return nil, errors.Join(ewrap.Wrap(err, "build tracer provider"), exporters.shutdown(ctx))
	}

	mp := buildMeterProvider(res, exporters)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	rt := &Runtime{
		cfg:            cfg,
		logger:         o.logger,
		state:          o.state,
		tracerProvider: tp,
		meterProvider:  mp,
		exporters:      exporters,
		startTime:      o.startTime,
	}

	err = rt.initInstrumentation(ctx, exporterLogger)
	if err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}

	if cfg.Diagnostics.Enabled {
		server := diagnostics.NewServer(cfg.Diagnostics, rt, o.logger)

		err := server.Start(ctx)
		if err != nil {
			return nil, errors.Join(ewrap.Wrap(err, "start diagnostics server"), rt.Shutdown(ctx))
		}

		rt.diagServer = server
	}

	return rt, nil
}

func (r *Runtime) initInstrumentation(ctx context.Context, exporterLogger logging.Adapter) error {
	inst := r.cfg.Instrumentation

	if inst.HTTP.Enabled {
		mw, err := guancehttp.NewMiddleware(r.tracerProvider, r.meterProvider, inst.HTTP)
		if err != nil {
			return ewrap.Wrap(err, "init http instrumentation")
		}

		r.httpMiddleware = mw
	}

	if inst.GRPC.Enabled {
		interceptors := guancegrpc.NewInterceptors(r.tracerProvider, inst.GRPC)
		r.grpcServerInt = interceptors.UnaryServer()
		r.grpcClientInt = interceptors.UnaryClient()
	}

	if inst.SQL.Enabled {
		r.sqlHelper = guancesql.NewHelper(inst.SQL, r.tracerProvider, r.meterProvider)
	}

	if inst.Messaging.Enabled {
		helper, err := messaging.NewHelper(r.tracerProvider, r.meterProvider)
		if err != nil {
			return ewrap.Wrap(err, "init messaging instrumentation")
		}

		r.messaging = helper
	}

	if inst.Worker.Enabled {
		helper, err := worker.NewHelper(r.tracerProvider, r.meterProvider)
		if err != nil {
			return ewrap.Wrap(err, "init worker instrumentation")
		}

		r.worker = helper
	}

	controller := &runtimeMetricsController{state: r.state, suppressed: suppressedCounter(exporterLogger)}

	err := controller.start(r, r.meterProvider, inst.RuntimeMetrics.Enabled)
	if err != nil {
		return err
	}

	r.metrics = controller

	r.logger.Debug(ctx, "guance runtime started",
		attribute.String("service", r.cfg.Service.Name),
		attribute.Bool("otlp_mirror", r.exporters.mirror != nil),
	)

	return nil
}

// Config returns a copy of the currently active configuration.
func (r *Runtime) Config() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.cfg
}

// Tracer returns an instrumented tracer for callers to use directly.
func (r *Runtime) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return r.tracerProvider.Tracer(name, opts...)
}

// Meter returns a configured meter for instrumentation libraries.
func (r *Runtime) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return r.meterProvider.Meter(name, opts...)
}

// HTTPMiddleware exposes the HTTP middleware if enabled.
func (r *Runtime) HTTPMiddleware() *guancehttp.Middleware {
	return r.httpMiddleware
}

// GRPCUnaryServerInterceptor exposes the unary server interceptor when enabled.
func (r *Runtime) GRPCUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return r.grpcServerInt
}

// GRPCUnaryClientInterceptor exposes the unary client interceptor when enabled.
func (r *Runtime) GRPCUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return r.grpcClientInt
}

// SQLHelper exposes the database/sql helper when enabled.
func (r *Runtime) SQLHelper() *guancesql.Helper {
	return r.sqlHelper
}

// MessagingHelper exposes the messaging helper when enabled.
func (r *Runtime) MessagingHelper() *messaging.Helper {
	return r.messaging
}

// WorkerHelper exposes the background job helper when enabled.
func (r *Runtime) WorkerHelper() *worker.Helper {
	return r.worker
}

// ForceFlush exports pending spans and collects metrics immediately.
func (r *Runtime) ForceFlush(ctx context.Context) error {
	err := errors.Join(
		r.tracerProvider.ForceFlush(ctx),
		r.meterProvider.ForceFlush(ctx),
	)
	if err != nil {
		return ewrap.Wrap(err, "flush runtime")
	}

	return nil
}

// Shutdown flushes pending telemetry and releases resources. Later calls are no-ops.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var shutdownErr error

	r.once.Do(func() {
		var errs []error

		if r.metrics != nil {
			errs = append(errs, r.metrics.shutdown())
		}

		if r.tracerProvider != nil {
			errs = append(errs, r.tracerProvider.Shutdown(ctx))
		}

		if r.meterProvider != nil {
			errs = append(errs, r.meterProvider.Shutdown(ctx))
		}

		if r.diagServer != nil {
			errs = append(errs, r.diagServer.Shutdown(ctx))
		}

		shutdownErr = errors.Join(errs...)

		r.mu.Lock()
		r.shutdown = true
		r.mu.Unlock()
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown runtime")
	}

	return nil
}

// IsShutdown indicates whether the runtime has been terminated.
func (r *Runtime) IsShutdown() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.shutdown
}

// Snapshot implements diagnostics.SnapshotProvider.
func (r *Runtime) Snapshot() diagnostics.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := diagnostics.Snapshot{
		ServiceName:       r.cfg.Service.Name,
		ServiceVersion:    r.cfg.Service.Version,
		Environment:       r.cfg.Service.Environment,
		SamplingMode:      r.cfg.Sampling.Mode,
		MirrorEndpoint:    r.exporters.mirrorEndpoint(),
		StartTime:         r.startTime,
		LastReloadTime:    r.startTime,
		ConfigReloadCount: r.state.ConfigReloads(),
		Instrumentation:   r.instrumentationStatus(),
		TraceExporter:     exporterStatus(r.exporters.traceStats()),
		MetricExporter:    exporterStatus(r.exporters.metricStats()),
	}

	if last := r.state.LastReload(); !last.IsZero() {
		snap.LastReloadTime = last
	}

	if r.exporters != nil && r.exporters.guance != nil {
		snap.Endpoint, snap.TokenConfigured = r.exporters.guance.Client.Config()
	}

	return snap
}

func (r *Runtime) instrumentationStatus() map[string]bool {
	return map[string]bool{
		"http":           r.httpMiddleware != nil,
		"grpc":           r.grpcServerInt != nil,
		"sql":            r.sqlHelper != nil,
		"messaging":      r.messaging != nil,
		"worker":         r.worker != nil,
		"runtimeMetrics": r.cfg.Instrumentation.RuntimeMetrics.Enabled,
	}
}

func buildTracerProvider(cfg config.Config, res *resource.Resource, bundle *exporterBundle) (*sdktrace.TracerProvider, error) {
	sampler, err := samplerFromConfig(cfg.Sampling)
	if err != nil {
		return nil, err
	}

	limits := sdktrace.NewSpanLimits()
	if cfg.SpanLimits.MaxAttributes > 0 {
		limits.AttributeCountLimit = cfg.SpanLimits.MaxAttributes
	}

	batch := cfg.Exporters.Guance.Batch

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
		sdktrace.WithRawSpanLimits(limits),
		exporterSpanProcessor(batch, bundle.guance.Spans),
	}

	if bundle.mirror != nil {
		opts = append(opts, exporterSpanProcessor(batch, bundle.mirror.spans))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMeterProvider(res *resource.Resource, bundle *exporterBundle) *sdkmetric.MeterProvider {
	options := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(bundle.metricReader),
	}

	if bundle.mirror != nil {
		options = append(options, sdkmetric.WithReader(bundle.mirror.reader))
	}

	return sdkmetric.NewMeterProvider(options...)
}

func exporterSpanProcessor(cfg config.BatchConfig, exporter sdktrace.SpanExporter) sdktrace.TracerProviderOption {
	if !cfg.Enabled {
		return sdktrace.WithSyncer(exporter)
	}

	var opts []sdktrace.BatchSpanProcessorOption
	if cfg.Timeout > 0 {
		opts = append(opts, sdktrace.WithBatchTimeout(cfg.Timeout))
	}

	if cfg.MaxExportBatch > 0 {
		opts = append(opts, sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatch))
	}

	if cfg.MaxQueueSize > 0 {
		opts = append(opts, sdktrace.WithMaxQueueSize(cfg.MaxQueueSize))
	}

	return sdktrace.WithBatcher(exporter, opts...)
}

func buildResource(ctx context.Context, svc config.ServiceConfig) (*resource.Resource, error) {
	var attrs []attribute.KeyValue

	optional := []struct {
		key   attribute.Key
		value string
	}{
		{semconv.ServiceNameKey, svc.Name},
		{semconv.ServiceVersionKey, svc.Version},
		{semconv.ServiceNamespaceKey, svc.Namespace},
		{semconv.DeploymentEnvironmentKey, svc.Environment},
		{semconv.ContainerNameKey, svc.Container},
	}
	for _, attr := range optional {
		if attr.value != "" {
			attrs = append(attrs, attr.key.String(attr.value))
		}
	}

	for k, v := range svc.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	envRes, err := resource.New(ctx,
		resource.WithContainer(),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create environment resource")
	}

	merged, err := resource.Merge(resource.Default(), envRes)
	if err != nil {
		return nil, ewrap.Wrap(err, "merge environment resource")
	}

	// Schemaless so the merge never conflicts with the schema of the SDK defaults.
	merged, err = resource.Merge(merged, resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, ewrap.Wrap(err, "merge attribute resource")
	}

	return merged, nil
}

func samplerFromConfig(cfg config.SamplingConfig) (sdktrace.Sampler, error) {
	switch cfg.Mode {
	case "always_on":
		return sdktrace.AlwaysSample(), nil
	case "always_off":
		return sdktrace.NeverSample(), nil
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample()), nil
	case "trace_id_ratio":
		if cfg.Argument <= 0 || cfg.Argument > 1 {
			return nil, ewrap.Newf("sampling.argument must be within (0,1], got %f", cfg.Argument)
		}

		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Argument)), nil
	default:
		return nil, ewrap.Newf("unsupported sampling mode %q", cfg.Mode)
	}
}
