package exporter

import "github.com/hyp3rd/guance/pkg/logging"

// Option customises an exporter.
type Option func(*options)

type options struct {
	logger logging.Adapter
}

func newOptions(opts []Option) *options {
	o := &options{logger: logging.NewNoopAdapter()}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithLogger sets the adapter used for per-batch debug logs and dropped records.
func WithLogger(logger logging.Adapter) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
