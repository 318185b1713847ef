package observe

import (
	"context"
	"maps"

	"github.com/hyp3rd/guance/pkg/config"
	"github.com/hyp3rd/guance/pkg/logging"
)

// Option mutates initialization settings.
type Option func(*options)

type options struct {
	overrideConfig *config.Config
	loaders        []config.Loader
	properties     map[string]string
	logger         logging.Adapter
	loggerOverride bool
	watchConfig    bool
}

// defaultOptions layers guance.yaml (with ${VAR} expansion), GUANCE_* variables and the
// otel.exporter.guance.* properties, later sources winning.
func defaultOptions() options {
	return options{
		loaders: []config.Loader{
			config.FileLoader{ExpandEnv: true},
			config.EnvLoader{},
			config.PropertiesLoader{},
		},
		watchConfig: true,
	}
}

// WithConfig provides a fully resolved configuration and bypasses loaders.
func WithConfig(cfg config.Config) Option {
	return func(opt *options) {
		opt.overrideConfig = &cfg
	}
}

// WithLoaders replaces the default loader chain.
func WithLoaders(loaders ...config.Loader) Option {
	return func(opt *options) {
		opt.loaders = append([]config.Loader{}, loaders...)
	}
}

// WithProperties sets otel.exporter.guance.* properties in code. They take
// precedence over every loader and are ignored when WithConfig is used.
func WithProperties(props map[string]string) Option {
	return func(opt *options) {
		if opt.properties == nil {
			opt.properties = make(map[string]string, len(props))
		}

		maps.Copy(opt.properties, props)
	}
}

// WithLogger specifies the logging adapter used for runtime events.
// A nil adapter silences the runtime.
func WithLogger(adapter logging.Adapter) Option {
	return func(opt *options) {
		opt.logger = adapter
		opt.loggerOverride = true
	}
}

// WithConfigWatcher toggles file-based config hot reload. Enabled by default.
func WithConfigWatcher(enabled bool) Option {
	return func(opt *options) {
		opt.watchConfig = enabled
	}
}

func (o options) loadConfig(ctx context.Context) (config.Config, error) {
	if o.overrideConfig != nil {
		return *o.overrideConfig, nil
	}

	loaders := o.loaders
	if len(o.properties) > 0 {
		loaders = append(loaders[:len(loaders):len(loaders)], config.PropertiesLoader{Properties: o.properties})
	}

	return config.Load(ctx, loaders...)
}

func (o options) resolveLogger(cfg config.Config) logging.Adapter {
	switch {
	case !o.loggerOverride:
		return logging.FromConfig(cfg.Logging)
	case o.logger == nil:
		return logging.NewNoopAdapter()
	default:
		return o.logger
	}
}

// fileWatcherPath is the on-disk YAML file a watcher should follow. It is
// empty when the configuration does not come from the local filesystem.
func (o options) fileWatcherPath() string {
	if o.overrideConfig != nil {
		return ""
	}

	for _, loader := range o.loaders {
		fl, ok := loader.(config.FileLoader)
		if !ok {
			continue
		}

		switch {
		case fl.FS != nil:
			return ""
		case fl.Path != "":
			return fl.Path
		default:
			return config.DefaultFile
		}
	}

	return ""
}
