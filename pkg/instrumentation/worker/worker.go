// Package worker instruments background jobs. Job spans carry none of the keys the classifier
// looks for, so they are exported with source_type=custom.
package worker

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	jobNameKey     = attribute.Key("job.name")
	jobQueueKey    = attribute.Key("job.queue")
	jobScheduleKey = attribute.Key("job.schedule")
	jobResultKey   = attribute.Key("job.result")
)

// JobInfo contains metadata describing a worker job execution.
type JobInfo struct {
	Name       string
	Queue      string
	Schedule   string
	Attributes []attribute.KeyValue
}

// Helper records a span, a run counter and a last-duration gauge per job execution.
type Helper struct {
	tracer       trace.Tracer
	runs         metric.Int64Counter
	lastDuration metric.Float64Gauge
}

// NewHelper constructs a worker Helper. A nil meter provider disables the job metrics.
func NewHelper(tp trace.TracerProvider, mp metric.MeterProvider) (*Helper, error) {
	if tp == nil {
		return nil, ewrap.New("tracer provider is nil")
	}

	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter("guance/worker")

	runs, err := meter.Int64Counter(
		"worker.job.runs",
		metric.WithDescription("Job executions by result"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create worker job counter")
	}

	lastDuration, err := meter.Float64Gauge(
		"worker.job.last_duration_ms",
		metric.WithDescription("Duration of the latest execution of a job"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create worker job duration gauge")
	}

	return &Helper{
		tracer:       tp.Tracer("guance/worker"),
		runs:         runs,
		lastDuration: lastDuration,
	}, nil
}

// Instrument executes fn inside a job span and records its result.
func (h *Helper) Instrument(ctx context.Context, info JobInfo, fn func(context.Context) error) error {
	if h == nil {
		return fn(ctx)
	}

	if info.Name == "" {
		info.Name = "worker-job"
	}

	attrs := jobAttributes(info)

	ctx, span := h.tracer.Start(ctx, spanName(info),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	start := time.Now()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	result := jobResultKey.String(resultTag(err))
	span.SetAttributes(result)
	span.End()

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	h.lastDuration.Record(ctx, elapsed, metric.WithAttributes(jobNameKey.String(info.Name)))
	h.runs.Add(ctx, 1, metric.WithAttributes(jobNameKey.String(info.Name), result))

	return err
}

func spanName(info JobInfo) string {
	if info.Queue != "" {
		return info.Queue + ":" + info.Name
	}

	return info.Name
}

func jobAttributes(info JobInfo) []attribute.KeyValue {
	attrs := []attribute.KeyValue{jobNameKey.String(info.Name)}

	if info.Queue != "" {
		attrs = append(attrs, jobQueueKey.String(info.Queue))
	}

	if info.Schedule != "" {
		attrs = append(attrs, jobScheduleKey.String(info.Schedule))
	}

	return append(attrs, info.Attributes...)
}

func resultTag(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
