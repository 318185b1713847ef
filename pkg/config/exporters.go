package config

import "time"

// ExporterConfig enumerates the telemetry exporters. Guance is always present; OTLP is an optional mirror.
type ExporterConfig struct {
	Guance GuanceConfig `yaml:"guance" json:"guance"`
	OTLP   *OTLPConfig  `yaml:"otlp"   json:"otlp"`
}

// GuanceConfig configures the line-protocol exporters and their transport.
//
// An empty Endpoint selects the public openway; an empty Token leaves the transport
// unable to write until a token is supplied.
type GuanceConfig struct {
	Endpoint       string            `yaml:"endpoint"        json:"endpoint"`
	Token          string            `yaml:"token"           json:"-"`
	Timeout        time.Duration     `yaml:"timeout"         json:"timeout"`
	Headers        map[string]string `yaml:"headers"         json:"headers"`
	MetricInterval time.Duration     `yaml:"metric_interval" json:"metric_interval"`
	Batch          BatchConfig       `yaml:"batch"           json:"batch"`
	Retry          RetryConfig       `yaml:"retry"           json:"retry"`
	Breaker        BreakerConfig     `yaml:"breaker"         json:"breaker"`
}

// OTLPConfig mirrors telemetry to an OTLP collector over gRPC or HTTP.
type OTLPConfig struct {
	Protocol    string            `yaml:"protocol"    json:"protocol"`
	Endpoint    string            `yaml:"endpoint"    json:"endpoint"`
	Insecure    bool              `yaml:"insecure"    json:"insecure"`
	Headers     map[string]string `yaml:"headers"     json:"headers"`
	Timeout     time.Duration     `yaml:"timeout"     json:"timeout"`
	TLS         TLSConfig         `yaml:"tls"         json:"tls"`
	Compression string            `yaml:"compression" json:"compression"`
	Retry       RetryConfig       `yaml:"retry"       json:"retry"`
}
