// Package kafka instruments segmentio/kafka-go readers and writers with the messaging helper.
package kafka

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/guance/pkg/instrumentation/messaging"
)

const (
	attrPartition = attribute.Key("messaging.destination.partition.id")
	attrOffset    = attribute.Key("messaging.kafka.offset")
)

// Consumer is the part of *kafka.Reader the wrapper depends on.
type Consumer interface {
	Config() kafka.ReaderConfig
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Reader fetches through a kafka reader inside consumer spans.
type Reader struct {
	consumer Consumer
	helper   *messaging.Helper
}

// NewReader wraps a kafka.Reader.
func NewReader(inner *kafka.Reader, helper *messaging.Helper) *Reader {
	return NewReaderWith(inner, helper)
}

// NewReaderWith wraps any Consumer.
func NewReaderWith(inner Consumer, helper *messaging.Helper) *Reader {
	return &Reader{
		consumer: inner,
		helper:   helper,
	}
}

// FetchMessage fetches one message without committing it. The span is linked
// to the producer span found in the message headers.
func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.helper == nil {
		return r.consumer.FetchMessage(ctx)
	}

	var msg kafka.Message

	err := r.helper.InstrumentConsume(ctx, r.info("receive"), func(ctx context.Context) error {
		var err error

		msg, err = r.consumer.FetchMessage(ctx)
		if err != nil {
			return err
		}

		annotate(ctx, msg)

		return nil
	})
	if err != nil {
		return kafka.Message{}, err
	}

	return msg, nil
}

// CommitMessages commits msgs inside a settle span.
func (r *Reader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if r.helper == nil || len(msgs) == 0 {
		return r.consumer.CommitMessages(ctx, msgs...)
	}

	return r.helper.InstrumentConsume(ctx, r.info("settle"), func(ctx context.Context) error {
		return r.consumer.CommitMessages(ctx, msgs...)
	})
}

// Process fetches a message, runs handle under a process span and commits
// the message only when handle succeeds.
func (r *Reader) Process(ctx context.Context, handle func(context.Context, kafka.Message) error) error {
	msg, err := r.FetchMessage(ctx)
	if err != nil {
		return err
	}

	err = r.helper.InstrumentConsume(ctx, r.info(""), func(ctx context.Context) error {
		annotate(ctx, msg)

		return handle(ctx, msg)
	})
	if err != nil {
		return err
	}

	return r.CommitMessages(ctx, msg)
}

func (r *Reader) info(operation string) messaging.ConsumeInfo {
	cfg := r.consumer.Config()

	return messaging.ConsumeInfo{
		System:          "kafka",
		Destination:     cfg.Topic,
		DestinationKind: "topic",
		Group:           cfg.GroupID,
		Operation:       operation,
	}
}

func annotate(ctx context.Context, msg kafka.Message) {
	trace.SpanFromContext(ctx).SetAttributes(
		attrPartition.String(strconv.Itoa(msg.Partition)),
		attrOffset.Int64(msg.Offset),
	)
	producerLink(ctx, msg)
}
