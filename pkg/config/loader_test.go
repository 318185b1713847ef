package config_test

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/hyp3rd/guance/internal/constants"
	"github.com/hyp3rd/guance/pkg/config"
)

func TestLoadLayers(t *testing.T) {
	t.Setenv("GUANCE_SERVICE__NAME", "env-service")
	t.Setenv("GUANCE_INSTRUMENTATION__HTTP__ENABLED", "false")
	t.Setenv("GUANCE_INSTRUMENTATION__HTTP__IGNORED_ROUTES", "/healthz,/readyz")
	t.Setenv("GUANCE_EXPORTERS__GUANCE__TIMEOUT", "3s")

	fs := fstest.MapFS{
		"guance.yaml": {
			Data: []byte(`
service:
  name: file-service
  environment: staging
exporters:
  guance:
    endpoint: https://openway.example.com
    token: tkn_file
`),
		},
	}

	cfg, err := config.Load(context.Background(),
		config.FileLoader{FS: fs},
		config.EnvLoader{},
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Service.Name != "env-service" {
		t.Fatalf("expected env override for service.name, got %q", cfg.Service.Name)
	}

	if cfg.Service.Environment != "staging" {
		t.Fatalf("expected service.environment from file, got %q", cfg.Service.Environment)
	}

	if cfg.Exporters.Guance.Endpoint != "https://openway.example.com" {
		t.Fatalf("expected exporter endpoint from file, got %q", cfg.Exporters.Guance.Endpoint)
	}

	if cfg.Exporters.Guance.Token != "tkn_file" {
		t.Fatalf("expected token from file, got %q", cfg.Exporters.Guance.Token)
	}

	if cfg.Exporters.Guance.Timeout != 3*time.Second {
		t.Fatalf("expected timeout from env, got %v", cfg.Exporters.Guance.Timeout)
	}

	if cfg.Instrumentation.HTTP.Enabled {
		t.Fatal("expected http instrumentation disabled by env override")
	}

	if got := cfg.Instrumentation.HTTP.IgnoredRoutes; len(got) != 2 || got[0] != "/healthz" || got[1] != "/readyz" {
		t.Fatalf("unexpected ignored routes: %#v", got)
	}
}

func TestPropertiesLoaderMapsAgentKeys(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(context.Background(), config.PropertiesLoader{
		Properties: map[string]string{
			config.PropertyEndpoint: "https://openway.example.com",
			config.PropertyToken:    "tkn_props",
			"otel.unrelated":        "ignored",
		},
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Exporters.Guance.Endpoint != "https://openway.example.com" {
		t.Fatalf("unexpected endpoint %q", cfg.Exporters.Guance.Endpoint)
	}

	if cfg.Exporters.Guance.Token != "tkn_props" {
		t.Fatalf("unexpected token %q", cfg.Exporters.Guance.Token)
	}
}

func TestPropertiesLoaderReadsEnvironment(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_GUANCE_TOKEN", "tkn_env")
	t.Setenv("OTEL_SERVICE_NAME", "checkout")

	cfg, err := config.Load(context.Background(), config.PropertiesLoader{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Exporters.Guance.Token != "tkn_env" {
		t.Fatalf("unexpected token %q", cfg.Exporters.Guance.Token)
	}

	if cfg.Service.Name != "checkout" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
}

func TestLoadWithoutTokenIsValid(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Exporters.Guance.Token != "" {
		t.Fatalf("expected empty default token, got %q", cfg.Exporters.Guance.Token)
	}

	if cfg.Exporters.Guance.Endpoint != constants.DefaultEndpoint {
		t.Fatalf("expected default endpoint, got %q", cfg.Exporters.Guance.Endpoint)
	}
}

func TestPropertyEnvName(t *testing.T) {
	t.Parallel()

	if got := config.PropertyEnvName(config.PropertyEndpoint); got != "OTEL_EXPORTER_GUANCE_ENDPOINT" {
		t.Fatalf("unexpected env name %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "missing service name", mutate: func(c *config.Config) { c.Service.Name = "" }, wantErr: true},
		{name: "unknown sampler", mutate: func(c *config.Config) { c.Sampling.Mode = "sometimes" }, wantErr: true},
		{
			name:    "otlp mirror without endpoint",
			mutate:  func(c *config.Config) { c.Exporters.OTLP = &config.OTLPConfig{} },
			wantErr: true,
		},
		{name: "ratio above one", mutate: func(c *config.Config) {
			c.Sampling.Mode = "trace_id_ratio"
			c.Sampling.Argument = 1.5
		}, wantErr: true},
		{name: "zero ratio", mutate: func(c *config.Config) {
			c.Sampling.Mode = "trace_id_ratio"
			c.Sampling.Argument = 0
		}, wantErr: true},
		{name: "full ratio", mutate: func(c *config.Config) {
			c.Sampling.Mode = "trace_id_ratio"
			c.Sampling.Argument = 1
		}},
		{name: "relative endpoint", mutate: func(c *config.Config) { c.Exporters.Guance.Endpoint = "openway.local" }, wantErr: true},
		{name: "https endpoint", mutate: func(c *config.Config) { c.Exporters.Guance.Endpoint = "https://openway.guance.com" }},
		{name: "negative metric interval", mutate: func(c *config.Config) { c.Exporters.Guance.MetricInterval = -1 }, wantErr: true},
		{
			name: "otlp unknown protocol",
			mutate: func(c *config.Config) {
				c.Exporters.OTLP = &config.OTLPConfig{Endpoint: "collector:4317", Protocol: "thrift"}
			},
			wantErr: true,
		},
		{name: "negative warn rate", mutate: func(c *config.Config) { c.Logging.WarnPerMinute = -1 }, wantErr: true},
		{
			name: "diagnostics without address",
			mutate: func(c *config.Config) {
				c.Diagnostics.Enabled = true
				c.Diagnostics.HTTPAddr = ""
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tc.mutate(&cfg)

			err := config.Validate(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Service.Name = ""
	cfg.Sampling.Mode = "sometimes"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	for _, want := range []string{"service.name is required", `unsupported sampling.mode "sometimes"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestEnvLoaderParsesHeaderPairs(t *testing.T) {
	t.Setenv("GUANCE_EXPORTERS__GUANCE__HEADERS", "X-Tenant=blue, X-Region = eu ,broken")

	cfg, err := config.Load(context.Background(), config.EnvLoader{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	headers := cfg.Exporters.Guance.Headers
	if len(headers) != 2 || headers["X-Tenant"] != "blue" || headers["X-Region"] != "eu" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestFileLoaderExpandsEnv(t *testing.T) {
	t.Setenv("GUANCE_TEST_TOKEN", "tkn_from_env")

	fsys := fstest.MapFS{
		"guance.yaml": {Data: []byte("exporters:\n  guance:\n    token: ${GUANCE_TEST_TOKEN}\n")},
	}

	expanded, err := config.Load(context.Background(), config.FileLoader{Path: "guance.yaml", FS: fsys, ExpandEnv: true})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if expanded.Exporters.Guance.Token != "tkn_from_env" {
		t.Fatalf("expected expanded token, got %q", expanded.Exporters.Guance.Token)
	}

	literal, err := config.Load(context.Background(), config.FileLoader{Path: "guance.yaml", FS: fsys})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if literal.Exporters.Guance.Token != "${GUANCE_TEST_TOKEN}" {
		t.Fatalf("expected the literal reference without ExpandEnv, got %q", literal.Exporters.Guance.Token)
	}
}
