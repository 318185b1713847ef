// Package grpc provides gRPC interceptors whose spans are classified as web traffic through rpc.system.
package grpc

import (
	"context"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hyp3rd/guance/pkg/classifier"
	"github.com/hyp3rd/guance/pkg/config"
)

const (
	rpcSystem     = "grpc"
	unknownMethod = "unknown"
)

// Interceptors bundles server and client interceptors for gRPC instrumentation.
type Interceptors struct {
	tracer    trace.Tracer
	allowlist []string
}

// NewInterceptors constructs gRPC interceptors backed by the supplied tracer provider.
func NewInterceptors(tp trace.TracerProvider, cfg config.GRPCInstrumentationConfig) Interceptors {
	return Interceptors{
		tracer:    tp.Tracer("guance/grpc"),
		allowlist: normalizeKeys(cfg.MetadataAllowlist),
	}
}

// UnaryServer continues the caller's trace from incoming metadata and records a server span.
func (i Interceptors) UnaryServer() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))

		var resp any

		err := i.observe(ctx, trace.SpanKindServer, info.FullMethod, md, func(ctx context.Context) error {
			var err error

			resp, err = handler(ctx, req)

			return err
		})

		return resp, err
	}
}

// UnaryClient records a client span and propagates it through outgoing metadata.
func (i Interceptors) UnaryClient() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		md, _ := metadata.FromOutgoingContext(ctx)

		return i.observe(ctx, trace.SpanKindClient, method, md, func(ctx context.Context) error {
			out := md.Copy()
			if out == nil {
				out = metadata.MD{}
			}

			otel.GetTextMapPropagator().Inject(ctx, metadataCarrier(out))

			return invoker(metadata.NewOutgoingContext(ctx, out), method, req, reply, cc, opts...)
		})
	}
}

func (i Interceptors) observe(
	ctx context.Context,
	kind trace.SpanKind,
	fullMethod string,
	md metadata.MD,
	call func(context.Context) error,
) error {
	attrs := append(rpcAttributes(fullMethod), i.metadataAttrs(md)...)

	ctx, span := i.tracer.Start(ctx, strings.TrimPrefix(fullMethod, "/"),
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := call(ctx)

	code := status.Code(err)
	span.SetAttributes(semconv.RPCGRPCStatusCodeKey.Int(int(code)))

	if code != grpccodes.OK {
		span.RecordError(err)
		span.SetStatus(codes.Error, code.String())
	}

	return err
}

func (i Interceptors) metadataAttrs(md metadata.MD) []attribute.KeyValue {
	if len(md) == 0 {
		return nil
	}

	var attrs []attribute.KeyValue

	for _, key := range i.allowlist {
		if values := md.Get(key); len(values) > 0 {
			attrs = append(attrs, attribute.String("rpc.metadata."+key, strings.Join(values, ",")))
		}
	}

	return attrs
}

func rpcAttributes(fullMethod string) []attribute.KeyValue {
	service, method := splitFullMethod(fullMethod)

	return []attribute.KeyValue{
		classifier.RPCSystemKey.String(rpcSystem),
		semconv.RPCServiceKey.String(service),
		semconv.RPCMethodKey.String(method),
	}
}

// normalizeKeys lower-cases, dedupes and sorts metadata keys so span attributes keep a stable order.
func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))

	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "" {
			out = append(out, key)
		}
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// splitFullMethod splits "/package.Service/Method".
func splitFullMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")
	if full == "" {
		return unknownMethod, unknownMethod
	}

	service, method, ok := strings.Cut(full, "/")
	if !ok || method == "" || strings.Contains(method, "/") {
		return full, unknownMethod
	}

	return service, method
}

// metadataCarrier adapts gRPC metadata to a text map carrier.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	values := metadata.MD(c).Get(key)
	if len(values) == 0 {
		return ""
	}

	return values[0]
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}

	return keys
}
