// Package messaging traces producer and consumer calls. Every span carries
// messaging.system, which is what classifies it as message traffic on export.
package messaging

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/guance/pkg/classifier"
)

const (
	// AttrDestinationKind is the attribute key for messaging destination kind.
	AttrDestinationKind = attribute.Key("messaging.destination.kind")
	// AttrConsumerGroup is the attribute key for messaging consumer group.
	AttrConsumerGroup = attribute.Key("messaging.consumer.group")
	// AttrBatchSize is the number of messages handled by one call.
	AttrBatchSize = attribute.Key("messaging.batch.message_count")
	// AttrMessageKey is the partitioning key of a published message.
	AttrMessageKey = attribute.Key("messaging.message.key")
	// AttrResult tags operation metrics with "ok" or "error".
	AttrResult = attribute.Key("messaging.result")

	unknownSystem = "unknown"
	scopeName     = "guance/messaging"
)

// PublishInfo describes a producer call.
type PublishInfo struct {
	System          string
	Destination     string
	DestinationKind string
	Key             string
	Attributes      []attribute.KeyValue
	SizeBytes       int64
	// Messages defaults to 1.
	Messages  int
	Operation string
}

// ConsumeInfo describes a consumer call.
type ConsumeInfo struct {
	System          string
	Destination     string
	DestinationKind string
	Group           string
	Attributes      []attribute.KeyValue
	Operation       string
}

// direction holds what differs between the producer and the consumer side.
type direction struct {
	kind      trace.SpanKind
	operation string
	messages  metric.Int64Counter
}

// call is the normalized form of a PublishInfo or ConsumeInfo.
type call struct {
	system      string
	destination string
	operation   string
	messages    int
	attrs       []attribute.KeyValue
}

// Helper wraps messaging calls with spans and counters. Only sum instruments
// are used so every measurement survives line-protocol encoding.
type Helper struct {
	tracer   trace.Tracer
	duration metric.Float64Counter
	publish  direction
	consume  direction
}

// NewHelper initializes messaging instrumentation. A nil meter provider disables metrics.
func NewHelper(tp trace.TracerProvider, mp metric.MeterProvider) (*Helper, error) {
	if tp == nil {
		return nil, ewrap.New("tracer provider is nil")
	}

	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter(scopeName)

	published, err := meter.Int64Counter("messaging.client.published.messages",
		metric.WithDescription("Messages handed to a broker"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create published messages counter")
	}

	consumed, err := meter.Int64Counter("messaging.client.consumed.messages",
		metric.WithDescription("Messages received from a broker"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create consumed messages counter")
	}

	duration, err := meter.Float64Counter("messaging.client.operation.duration_ms",
		metric.WithDescription("Accumulated time spent in messaging calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create operation duration counter")
	}

	return &Helper{
		tracer:   tp.Tracer(scopeName),
		duration: duration,
		publish:  direction{kind: trace.SpanKindProducer, operation: "publish", messages: published},
		consume:  direction{kind: trace.SpanKindConsumer, operation: "process", messages: consumed},
	}, nil
}

// InstrumentPublish wraps a publish function with tracing and metrics.
func (h *Helper) InstrumentPublish(ctx context.Context, info PublishInfo, fn func(context.Context) error) error {
	if h == nil {
		return fn(ctx)
	}

	c := newCall(info.System, info.Destination, info.DestinationKind, info.Operation, h.publish.operation)
	c.messages = max(info.Messages, 1)

	if info.Key != "" {
		c.attrs = append(c.attrs, AttrMessageKey.String(info.Key))
	}

	if info.SizeBytes > 0 {
		c.attrs = append(c.attrs, semconv.MessagingMessageBodySizeKey.Int64(info.SizeBytes))
	}

	if c.messages > 1 {
		c.attrs = append(c.attrs, AttrBatchSize.Int(c.messages))
	}

	c.attrs = append(c.attrs, info.Attributes...)

	return h.run(ctx, h.publish, c, fn)
}

// InstrumentConsume wraps a consumer handler with tracing and metrics.
func (h *Helper) InstrumentConsume(ctx context.Context, info ConsumeInfo, fn func(context.Context) error) error {
	if h == nil {
		return fn(ctx)
	}

	c := newCall(info.System, info.Destination, info.DestinationKind, info.Operation, h.consume.operation)
	c.messages = 1

	if info.Group != "" {
		c.attrs = append(c.attrs, AttrConsumerGroup.String(info.Group))
	}

	c.attrs = append(c.attrs, info.Attributes...)

	return h.run(ctx, h.consume, c, fn)
}

func newCall(system, destination, kind, operation, fallback string) call {
	c := call{
		system:      system,
		destination: destination,
		operation:   operation,
	}

	if c.system == "" {
		c.system = unknownSystem
	}

	if c.operation == "" {
		c.operation = fallback
	}

	c.attrs = append(c.attrs,
		classifier.MessagingSystemKey.String(c.system),
		semconv.MessagingOperationNameKey.String(c.operation),
	)

	if destination != "" {
		c.attrs = append(c.attrs, semconv.MessagingDestinationNameKey.String(destination))
	}

	if kind != "" {
		c.attrs = append(c.attrs, AttrDestinationKind.String(kind))
	}

	return c
}

// name follows the "{operation} {destination}" convention.
func (c call) name() string {
	if c.destination == "" {
		return c.operation
	}

	return c.operation + " " + c.destination
}

// metricAttributes keeps metric tags low-cardinality: keys, sizes and caller
// attributes stay on the span only.
func (c call) metricAttributes(err error) metric.MeasurementOption {
	result := "ok"
	if err != nil {
		result = "error"
	}

	attrs := []attribute.KeyValue{
		classifier.MessagingSystemKey.String(c.system),
		semconv.MessagingOperationNameKey.String(c.operation),
		AttrResult.String(result),
	}

	if c.destination != "" {
		attrs = append(attrs, semconv.MessagingDestinationNameKey.String(c.destination))
	}

	return metric.WithAttributes(attrs...)
}

func (h *Helper) run(ctx context.Context, dir direction, c call, fn func(context.Context) error) error {
	ctx, span := h.tracer.Start(ctx, c.name(),
		trace.WithSpanKind(dir.kind),
		trace.WithAttributes(c.attrs...),
	)
	start := time.Now()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	opts := c.metricAttributes(err)

	h.duration.Add(ctx, elapsed, opts)
	dir.messages.Add(ctx, int64(c.messages), opts)

	return err
}
