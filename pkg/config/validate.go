package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/hyp3rd/ewrap"
)

var samplingModes = []string{"always_on", "always_off", "parentbased_always_on", "parentbased_always_off", "trace_id_ratio"}

// check returns a problem description or "".
type check func(Config) string

var checks = []check{
	func(c Config) string {
		if c.Service.Name == "" {
			return "service.name is required"
		}

		return ""
	},
	func(c Config) string {
		for _, mode := range samplingModes {
			if c.Sampling.Mode == mode {
				return ""
			}
		}

		return "unsupported sampling.mode " + quote(c.Sampling.Mode)
	},
	func(c Config) string {
		if c.Sampling.Mode == "trace_id_ratio" && (c.Sampling.Argument <= 0 || c.Sampling.Argument > 1) {
			return "sampling.argument must be within (0, 1] for trace_id_ratio"
		}

		return ""
	},
	func(c Config) string {
		return checkEndpoint("exporters.guance.endpoint", c.Exporters.Guance.Endpoint)
	},
	func(c Config) string {
		g := c.Exporters.Guance

		switch {
		case g.Timeout < 0:
			return "exporters.guance.timeout must not be negative"
		case g.MetricInterval < 0:
			return "exporters.guance.metric_interval must not be negative"
		case g.Retry.Enabled && g.Retry.MaxAttempts < 0:
			return "exporters.guance.retry.max_attempts must not be negative"
		default:
			return ""
		}
	},
	func(c Config) string {
		otlp := c.Exporters.OTLP

		switch {
		case otlp == nil:
			return ""
		case otlp.Endpoint == "":
			return "exporters.otlp.endpoint is required when the otlp mirror is configured"
		case !oneOf(otlp.Protocol, "", "grpc", "http", "https"):
			return "unsupported exporters.otlp.protocol " + quote(otlp.Protocol)
		case !oneOf(otlp.Compression, "", "none", "gzip"):
			return "unsupported exporters.otlp.compression " + quote(otlp.Compression)
		default:
			return ""
		}
	},
	func(c Config) string {
		switch {
		case c.Logging.SampleRatio < 0 || c.Logging.SampleRatio > 1:
			return "logging.sample_ratio must be within [0, 1]"
		case c.Logging.WarnPerMinute < 0:
			return "logging.warn_per_minute must not be negative"
		default:
			return ""
		}
	},
	func(c Config) string {
		if c.Diagnostics.Enabled && c.Diagnostics.HTTPAddr == "" {
			return "diagnostics.http_addr is required when diagnostics are enabled"
		}

		return ""
	},
}

// Validate reports every problem in cfg at once.
// An empty Guance token is deliberately accepted: it is reported as a warning at runtime.
func Validate(cfg Config) error {
	var errs []error

	for _, c := range checks {
		if problem := c(cfg); problem != "" {
			errs = append(errs, ewrap.New("invalid configuration: "+problem))
		}
	}

	return errors.Join(errs...)
}

// checkEndpoint accepts an empty value, which selects the default openway.
func checkEndpoint(field, raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return field + " must be an absolute http or https URL"
	}

	return ""
}

func oneOf(value string, allowed ...string) bool {
	value = strings.ToLower(value)

	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}

	return false
}

func quote(s string) string {
	return `"` + s + `"`
}
