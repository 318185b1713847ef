package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/hyp3rd/guance/pkg/instrumentation/messaging"
)

// Producer is the part of *kafka.Writer the wrapper depends on.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Writer publishes through a kafka writer inside a producer span and
// propagates the span context in the message headers.
type Writer struct {
	producer Producer
	helper   *messaging.Helper
	topic    string
}

// NewWriter wraps a kafka.Writer. Its Topic is used for messages that do not name one.
func NewWriter(inner *kafka.Writer, helper *messaging.Helper) *Writer {
	return NewWriterWith(inner, helper, inner.Topic)
}

// NewWriterWith wraps any Producer; topic is the default destination.
func NewWriterWith(inner Producer, helper *messaging.Helper, topic string) *Writer {
	return &Writer{
		producer: inner,
		helper:   helper,
		topic:    topic,
	}
}

// WriteMessages publishes msgs as one instrumented batch.
func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 || w.helper == nil {
		return w.producer.WriteMessages(ctx, msgs...)
	}

	info := messaging.PublishInfo{
		System:          "kafka",
		Destination:     w.destination(msgs),
		DestinationKind: "topic",
		Messages:        len(msgs),
	}

	for _, msg := range msgs {
		info.SizeBytes += int64(len(msg.Value))
	}

	if len(msgs) == 1 && len(msgs[0].Key) > 0 {
		info.Key = string(msgs[0].Key)
	}

	return w.helper.InstrumentPublish(ctx, info, func(ctx context.Context) error {
		return w.producer.WriteMessages(ctx, inject(ctx, msgs)...)
	})
}

// destination is the shared topic of msgs, or the writer default when they differ.
func (w *Writer) destination(msgs []kafka.Message) string {
	topic := msgs[0].Topic
	for _, msg := range msgs[1:] {
		if msg.Topic != topic {
			return w.topic
		}
	}

	if topic == "" {
		return w.topic
	}

	return topic
}
