// Package constants provides common constants used across the guance project.
package constants

import "time"

const (
	// DefaultTimeout is the default timeout for requests.
	DefaultTimeout = 5 * time.Second
	// DefaultShutdownTimeout is the default timeout for shutdown operations.
	DefaultShutdownTimeout = 30 * time.Second
	// DefaultWriteTimeout bounds a single upload to the ingestion endpoint.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultMetricInterval is the collection cadence of the periodic metric reader.
	DefaultMetricInterval = time.Minute
)

const (
	// DefaultEndpoint is the public openway used when an empty endpoint is configured.
	DefaultEndpoint = "https://openway.guance.com"
	// TraceCategory is the write path for span lines.
	TraceCategory = "/v1/write/tracing"
	// MetricCategory is the write path for metric lines.
	MetricCategory = "/v1/write/metric"
	// PointsHeader carries the number of source records in an upload.
	PointsHeader = "X-Points"
)

const (
	// TraceMeasurement is the measurement name of every span line.
	TraceMeasurement = "opentelemetry"
	// MetricMeasurement is the measurement name of every metric line.
	MetricMeasurement = "otel-service"
	// UnknownService is the service tag used when the resource has no service.name.
	UnknownService = "UNKNOWN"
	// HostPlaceholder is the fixed host tag value of metric lines.
	HostPlaceholder = "hostname"
)
