package lineprotocol

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/classifier"
)

// Resource attribute keys read by SpanRecord.
const (
	ServiceNameKey   = attribute.Key("service.name")
	ContainerNameKey = attribute.Key("container.name")
)

// exceptionEvent is the event name whose attributes are promoted to fields.
const exceptionEvent = "exception"

// Status tag values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

const nanosPerMicro = 1000

// SpanRecord builds the trace record of a span.
//
// Timing fields are in microseconds: start and end are truncated before subtracting,
// so a span from 0ns to 1_500ns has a duration of 1.
func SpanRecord(span sdktrace.ReadOnlySpan, res *resource.Resource) Record {
	attrs := span.Attributes()
	parentID := span.Parent().SpanID().String()

	service, ok := resourceString(res, ServiceNameKey)
	if !ok || service == "" {
		service = constants.UnknownService
	}

	tags := make(map[string]string, len(attrs)+7)
	tags["service"] = service
	tags["service_name"] = service
	tags["operation"] = span.Name()
	tags["source_type"] = classifier.SourceType(attrs)
	tags["span_type"] = classifier.SpanType(parentID)
	tags["status"] = statusTag(span.Status())

	if container, ok := resourceString(res, ContainerNameKey); ok {
		tags[string(ContainerNameKey)] = container
	}

	for _, attr := range attrs {
		tags[string(attr.Key)] = attr.Value.Emit()
	}

	start := span.StartTime().UnixNano() / nanosPerMicro
	end := span.EndTime().UnixNano() / nanosPerMicro

	fields := map[string]any{
		"trace_id":  span.SpanContext().TraceID().String(),
		"span_id":   span.SpanContext().SpanID().String(),
		"parent_id": parentID,
		"start":     start,
		"resource":  span.Name(),
		"duration":  end - start,
	}

	for _, event := range span.Events() {
		if event.Name != exceptionEvent {
			continue
		}

		for _, attr := range event.Attributes {
			fields[string(attr.Key)] = attr.Value.Emit()
		}
	}

	return Record{
		Measurement: constants.TraceMeasurement,
		Tags:        tags,
		Fields:      fields,
		Time:        span.StartTime(),
	}
}

func statusTag(status sdktrace.Status) string {
	if status.Code == codes.Error {
		return StatusError
	}

	return StatusOK
}
