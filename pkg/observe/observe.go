// Package observe initializes the guance runtime from configuration sources and reloads it on change.
package observe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/config"
	"github.com/hyp3rd/guance/pkg/logging"
	"github.com/hyp3rd/guance/pkg/runtime"
)

// Client provides access to the active runtime and useful helpers.
type Client struct {
	mu          sync.RWMutex
	runtime     *runtime.Runtime
	digest      string
	state       *runtime.MetricsState
	startTime   time.Time
	opts        options
	logger      logging.Adapter
	watchCancel context.CancelFunc
	reloadMu    sync.Mutex
}

// Init bootstraps the runtime from configuration sources.
// Callers must invoke Shutdown when finished.
func Init(ctx context.Context, opts ...Option) (*Client, error) {
	settings := defaultOptions()
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := settings.loadConfig(ctx)
	if err != nil {
		return nil, ewrap.Wrap(err, "load config")
	}

	client := &Client{
		opts:      settings,
		logger:    settings.resolveLogger(cfg),
		state:     runtime.NewMetricsState(),
		startTime: time.Now().UTC(),
	}

	rt, err := client.newRuntime(ctx, cfg, client.logger)
	if err != nil {
		return nil, ewrap.Wrap(err, "init runtime")
	}

	client.runtime = rt
	client.digest, err = configDigest(cfg)
	if err != nil {
		client.logger.Warn(ctx, "config digest unavailable, every file event reloads", attribute.String("error", err.Error()))
	}

	err = client.startConfigWatcher(ctx)
	if err != nil {
		client.logger.Error(ctx, err, "config watcher disabled")
	}

	return client, nil
}

// Shutdown flushes telemetry, stops watchers, and releases resources.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.watchCancel != nil {
		c.watchCancel()
	}

	return c.Runtime().Shutdown(ctx)
}

// ForceFlush exports buffered spans and metrics of the active runtime.
func (c *Client) ForceFlush(ctx context.Context) error {
	return c.Runtime().ForceFlush(ctx)
}

// Runtime exposes the underlying runtime for advanced integrations.
func (c *Client) Runtime() *runtime.Runtime {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.runtime
}

// Config returns the active configuration snapshot.
func (c *Client) Config() config.Config {
	return c.Runtime().Config()
}

// Reload reloads configuration and swaps in a new runtime when it changed.
// It reports whether a new runtime was installed.
func (c *Client) Reload(ctx context.Context) (bool, error) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	cfg, err := c.opts.loadConfig(ctx)
	if err != nil {
		return false, ewrap.Wrap(err, "reload config")
	}

	digest, err := configDigest(cfg)
	if err == nil && digest == c.currentDigest() {
		c.log().Debug(ctx, "configuration unchanged, reload skipped")

		return false, nil
	}

	logger := c.opts.resolveLogger(cfg)
	c.state.RecordReload(time.Now())

	rt, err := c.newRuntime(ctx, cfg, logger)
	if err != nil {
		return false, ewrap.Wrap(err, "rebuild runtime")
	}

	c.swapRuntime(ctx, rt, digest, logger)

	return true, nil
}

func (c *Client) newRuntime(ctx context.Context, cfg config.Config, logger logging.Adapter) (*runtime.Runtime, error) {
	return runtime.New(ctx, cfg,
		runtime.WithLogger(logger),
		runtime.WithMetricsState(c.state),
		runtime.WithStartTime(c.startTime),
	)
}

func (c *Client) log() logging.Adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.logger
}

func (c *Client) currentDigest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.digest
}

func (c *Client) startConfigWatcher(ctx context.Context) error {
	if !c.opts.watchConfig {
		return nil
	}

	path := c.opts.fileWatcherPath()
	if path == "" {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ewrap.Wrap(err, "resolve config path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ewrap.Wrap(err, "create config watcher")
	}

	err = watcher.Add(filepath.Dir(abs))
	if err != nil {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.log().Error(ctx, closeErr, "close config watcher after add failure")
		}

		return ewrap.Wrap(err, "watch config directory")
	}

	ctx, cancel := context.WithCancel(ctx)

	c.watchCancel = cancel
	go c.watchLoop(ctx, watcher, abs)

	return nil
}

// watchLoop monitors configuration changes and triggers runtime reloads.
//
//nolint:revive // cognitive-complexity: Breaking this up would reduce clarity.
func (c *Client) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer func() {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.log().Error(ctx, closeErr, "close config watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name != target {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			c.log().Info(ctx, "configuration change detected", attribute.String("path", target))

			reloaded, err := c.Reload(ctx)
			if err != nil {
				c.log().Error(ctx, err, "runtime reload failed")

				continue
			}

			if reloaded {
				c.log().Info(ctx, "runtime reloaded")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			c.log().Error(ctx, err, "config watcher error")
		}
	}
}

func (c *Client) swapRuntime(ctx context.Context, newRuntime *runtime.Runtime, digest string, logger logging.Adapter) {
	c.mu.Lock()
	old := c.runtime
	c.runtime = newRuntime
	c.digest = digest
	c.logger = logger
	c.mu.Unlock()

	if old == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
	defer cancel()

	err := old.Shutdown(shutdownCtx)
	if err != nil {
		c.log().Error(shutdownCtx, err, "shutdown previous runtime")
	}
}

// configDigest fingerprints a configuration, token included, so unchanged files do not rebuild the runtime.
func configDigest(cfg config.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", ewrap.Wrap(err, "marshal config")
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}
