package observe

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/hyp3rd/guance/internal/logtest"
	"github.com/hyp3rd/guance/pkg/config"
)

const configDigestErrorMsg = "configDigest returned error: %v"

func guanceYAML(token string) []byte {
	return []byte(`
service:
  name: checkout
exporters:
  guance:
    endpoint: http://127.0.0.1:1
    token: ` + token + `
    metric_interval: 1h
instrumentation:
  runtime_metrics:
    enabled: false
`)
}

func TestConfigDigestStable(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Service: config.ServiceConfig{
			Name:        "svc",
			Environment: "prod",
		},
	}

	first, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	second, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	if first != second {
		t.Fatalf("expected stable digest, got %s vs %s", first, second)
	}
}

func TestConfigDigestIncludesToken(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	initialDigest, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	cfg.Exporters.Guance.Token = "tkn_rotated"

	updatedDigest, err := configDigest(cfg)
	if err != nil {
		t.Fatalf(configDigestErrorMsg, err)
	}

	if initialDigest == updatedDigest {
		t.Fatal("expected different digests when the token changes")
	}
}

func TestFileWatcherPath(t *testing.T) {
	t.Parallel()

	override := config.DefaultConfig()

	tests := []struct {
		name string
		opts options
		want string
	}{
		{name: "defaults", opts: defaultOptions(), want: config.DefaultFile},
		{name: "explicit path", opts: options{loaders: []config.Loader{config.FileLoader{Path: "/etc/guance.yaml"}}}, want: "/etc/guance.yaml"},
		{name: "in-memory fs", opts: options{loaders: []config.Loader{config.FileLoader{FS: fstest.MapFS{}}}}, want: ""},
		{name: "no file loader", opts: options{loaders: []config.Loader{config.EnvLoader{}}}, want: ""},
		{name: "override config", opts: options{overrideConfig: &override, loaders: defaultOptions().loaders}, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.opts.fileWatcherPath(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDefaultOptionsReadPropertyKeys(t *testing.T) {
	t.Parallel()

	found := false

	for _, loader := range defaultOptions().loaders {
		if _, ok := loader.(config.PropertiesLoader); ok {
			found = true
		}
	}

	if !found {
		t.Fatal("expected the default loader chain to include PropertiesLoader")
	}
}

func TestInitWithConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Service.Name = "checkout"
	cfg.Exporters.Guance.Endpoint = "http://127.0.0.1:1"
	cfg.Instrumentation.RuntimeMetrics.Enabled = false

	logger := &logtest.Recorder{}

	client, err := Init(context.Background(), WithConfig(cfg), WithLogger(logger))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	if client.Config().Service.Name != "checkout" {
		t.Fatalf("unexpected service name %q", client.Config().Service.Name)
	}

	if client.Runtime().Snapshot().TokenConfigured {
		t.Fatal("expected no token to be configured")
	}

	if logger.Count("warn") == 0 {
		t.Fatalf("expected a missing token warning, got %v", logger.Messages())
	}

	reloaded, err := client.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if reloaded {
		t.Fatal("expected an unchanged override config to skip the reload")
	}
}

func TestReloadSwapsRuntimeOnChange(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"guance.yaml": &fstest.MapFile{Data: guanceYAML("")}}
	ctx := context.Background()

	client, err := Init(ctx,
		WithLoaders(config.FileLoader{Path: "guance.yaml", FS: fsys}),
		WithLogger(&logtest.Recorder{}),
	)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	first := client.Runtime()

	reloaded, err := client.Reload(ctx)
	if err != nil || reloaded {
		t.Fatalf("expected no reload for unchanged file, got %v, %v", reloaded, err)
	}

	fsys["guance.yaml"] = &fstest.MapFile{Data: guanceYAML("tkn_rotated")}

	reloaded, err = client.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if !reloaded {
		t.Fatal("expected a token change to reload the runtime")
	}

	if !first.IsShutdown() {
		t.Fatal("expected the previous runtime to be shut down")
	}

	snap := client.Runtime().Snapshot()
	if !snap.TokenConfigured {
		t.Fatal("expected the new runtime to carry the token")
	}

	if snap.ConfigReloadCount != 1 {
		t.Fatalf("expected reload count 1, got %d", snap.ConfigReloadCount)
	}

	if !snap.StartTime.Equal(first.Snapshot().StartTime) {
		t.Fatal("expected start time to survive the reload")
	}
}

func TestReloadKeepsRuntimeOnInvalidConfig(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"guance.yaml": &fstest.MapFile{Data: guanceYAML("tkn")}}
	ctx := context.Background()

	client, err := Init(ctx,
		WithLoaders(config.FileLoader{Path: "guance.yaml", FS: fsys}),
		WithLogger(&logtest.Recorder{}),
	)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	before := client.Runtime()

	fsys["guance.yaml"] = &fstest.MapFile{Data: []byte("sampling:\n  mode: sometimes\n")}

	_, err = client.Reload(ctx)
	if err == nil {
		t.Fatal("expected an invalid config to fail the reload")
	}

	if client.Runtime() != before || before.IsShutdown() {
		t.Fatal("expected the active runtime to stay in place")
	}
}

func TestWithPropertiesOverrideLoaders(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"guance.yaml": &fstest.MapFile{Data: guanceYAML("")}}

	client, err := Init(context.Background(),
		WithLoaders(config.FileLoader{Path: "guance.yaml", FS: fsys}),
		WithProperties(map[string]string{
			config.PropertyToken:       "tkn_from_code",
			config.PropertyServiceName: "billing",
		}),
		WithLogger(nil),
	)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	cfg := client.Config()
	if cfg.Exporters.Guance.Token != "tkn_from_code" || cfg.Service.Name != "billing" {
		t.Fatalf("expected properties to win, got token=%q service=%q", cfg.Exporters.Guance.Token, cfg.Service.Name)
	}

	if cfg.Exporters.Guance.Endpoint != "http://127.0.0.1:1" {
		t.Fatalf("expected the file endpoint to survive, got %q", cfg.Exporters.Guance.Endpoint)
	}
}

func TestResolveLogger(t *testing.T) {
	t.Parallel()

	recorder := &logtest.Recorder{}

	if got := (options{loggerOverride: true, logger: recorder}).resolveLogger(config.DefaultConfig()); got != recorder {
		t.Fatal("expected the explicit logger")
	}

	if got := (options{loggerOverride: true}).resolveLogger(config.DefaultConfig()); got == nil {
		t.Fatal("expected a noop logger for a nil override")
	}

	if got := defaultOptions().resolveLogger(config.DefaultConfig()); got == nil {
		t.Fatal("expected a logger built from configuration")
	}
}
