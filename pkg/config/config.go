// Package config defines the configuration structures for the exporter runtime.
package config

import (
	"time"
)

// Config is the canonical configuration consumed by the guance runtime.
type Config struct {
	Service         ServiceConfig         `yaml:"service"         json:"service"`
	Exporters       ExporterConfig        `yaml:"exporters"       json:"exporters"`
	Sampling        SamplingConfig        `yaml:"sampling"        json:"sampling"`
	SpanLimits      SpanLimitsConfig      `yaml:"span_limits"     json:"span_limits"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation" json:"instrumentation"`
	Logging         LoggingConfig         `yaml:"logging"         json:"logging"`
	Diagnostics     DiagnosticsConfig     `yaml:"diagnostics"     json:"diagnostics"`
}

// ServiceConfig captures metadata propagated as OTEL resource attributes.
type ServiceConfig struct {
	Name        string            `yaml:"name"        json:"name"`
	Namespace   string            `yaml:"namespace"   json:"namespace"`
	Version     string            `yaml:"version"     json:"version"`
	Environment string            `yaml:"environment" json:"environment"`
	Container   string            `yaml:"container"   json:"container"`
	Attributes  map[string]string `yaml:"attributes"  json:"attributes"`
}

// BatchConfig defines batch span processor settings. Disabled means every span is exported synchronously.
type BatchConfig struct {
	Enabled        bool          `yaml:"enabled"          json:"enabled"`
	MaxExportBatch int           `yaml:"max_export_batch" json:"max_export_batch"`
	Timeout        time.Duration `yaml:"timeout"          json:"timeout"`
	MaxQueueSize   int           `yaml:"max_queue_size"   json:"max_queue_size"`
}

// RetryConfig specifies retry settings for exporters.
type RetryConfig struct {
	Enabled         bool          `yaml:"enabled"          json:"enabled"`
	MaxAttempts     int           `yaml:"max_attempts"     json:"max_attempts"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" json:"max_elapsed_time"`
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"     json:"max_interval"`
}

// BreakerConfig configures the circuit breaker in front of the ingestion endpoint.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"       json:"enabled"`
	TripAfter   uint32        `yaml:"trip_after"    json:"trip_after"`
	OpenTimeout time.Duration `yaml:"open_timeout"  json:"open_timeout"`
	HalfOpenMax uint32        `yaml:"half_open_max" json:"half_open_max"`
}

// TLSConfig encapsulates TLS dial settings.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"   json:"ca_file"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file"  json:"key_file"`
	Insecure bool   `yaml:"insecure"  json:"insecure"`
}

// SamplingConfig defines tracing sampling strategies.
type SamplingConfig struct {
	Mode     string  `yaml:"mode"     json:"mode"`
	Argument float64 `yaml:"argument" json:"argument"`
}

// SpanLimitsConfig bounds per-span collections.
type SpanLimitsConfig struct {
	MaxAttributes int `yaml:"max_attributes" json:"max_attributes"`
}

// LoggingConfig controls structured log behavior.
type LoggingConfig struct {
	Level         string  `yaml:"level"           json:"level"`
	Format        string  `yaml:"format"          json:"format"`
	Adapter       string  `yaml:"adapter"         json:"adapter"`
	SampleRatio   float64 `yaml:"sample_ratio"    json:"sample_ratio"`
	WarnPerMinute int     `yaml:"warn_per_minute" json:"warn_per_minute"`
}

// DiagnosticsConfig toggles self-observation endpoints.
type DiagnosticsConfig struct {
	Enabled   bool   `yaml:"enabled"    json:"enabled"`
	HTTPAddr  string `yaml:"http_addr"  json:"http_addr"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
}
