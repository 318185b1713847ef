package runtime

import (
	"time"

	"github.com/hyp3rd/guance/pkg/logging"
)

// Option customizes New.
type Option func(*options)

type options struct {
	logger    logging.Adapter
	state     *MetricsState
	startTime time.Time
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:    logging.NewNoopAdapter(),
		startTime: time.Now().UTC(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.state == nil {
		o.state = NewMetricsState()
	}

	return o
}

// WithLogger sets the adapter used by the exporters and the diagnostics server.
func WithLogger(logger logging.Adapter) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsState shares reload counters with a previous runtime.
func WithMetricsState(state *MetricsState) Option {
	return func(o *options) {
		o.state = state
	}
}

// WithStartTime keeps the process start time across reloads.
func WithStartTime(start time.Time) Option {
	return func(o *options) {
		if !start.IsZero() {
			o.startTime = start.UTC()
		}
	}
}
