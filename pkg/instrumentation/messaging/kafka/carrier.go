package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// headerCarrier exposes kafka message headers to a text map propagator.
type headerCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)

			return
		}
	}

	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}

	return keys
}

// inject writes the active span context into copies of msgs.
func inject(ctx context.Context, msgs []kafka.Message) []kafka.Message {
	propagator := otel.GetTextMapPropagator()
	out := make([]kafka.Message, len(msgs))

	for i, msg := range msgs {
		msg.Headers = append([]kafka.Header(nil), msg.Headers...)
		propagator.Inject(ctx, headerCarrier{msg: &msg})
		out[i] = msg
	}

	return out
}

// producerLink links the consume span to the span that published msg, when the headers carry one.
func producerLink(ctx context.Context, msg kafka.Message) {
	remote := trace.SpanContextFromContext(
		otel.GetTextMapPropagator().Extract(context.Background(), headerCarrier{msg: &msg}),
	)
	if !remote.IsValid() {
		return
	}

	trace.SpanFromContext(ctx).AddLink(trace.Link{SpanContext: remote})
}
