package config

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const errMsgUnableToReadConfigFromPath = "read config file %q"

const (
	// DefaultFile is the YAML file read by FileLoader when no path is given.
	DefaultFile = "guance.yaml"
	// DefaultEnvPrefix prefixes the variables read by EnvLoader.
	DefaultEnvPrefix = "GUANCE_"
)

// Loader transforms external sources into configuration maps that are decoded onto Config.
type Loader interface {
	Load(ctx context.Context) (map[string]any, error)
}

// LoaderFunc adapts ordinary functions into Loader.
type LoaderFunc func(ctx context.Context) (map[string]any, error)

// Load implements Loader.
func (lf LoaderFunc) Load(ctx context.Context) (map[string]any, error) {
	return lf(ctx)
}

type loaderSkipError struct {
	err *ewrap.Error
}

func newLoaderSkipError() error {
	return &loaderSkipError{err: ewrap.New("config loader skip")}
}

// Error implements error.
func (l *loaderSkipError) Error() string {
	if l == nil || l.err == nil {
		return ""
	}

	return l.err.Error()
}

// Unwrap implements errors.Wrapper.
func (l *loaderSkipError) Unwrap() error {
	if l == nil {
		return nil
	}

	return l.err
}

// Is implements errors.Is.
func (*loaderSkipError) Is(target error) bool {
	_, ok := target.(*loaderSkipError)

	return ok
}

func isLoaderSkipError(err error) bool {
	if err == nil {
		return false
	}

	var target *loaderSkipError

	return errors.As(err, &target)
}

// Load runs loaders sequentially, layering their fields over DefaultConfig().
func Load(ctx context.Context, loaders ...Loader) (Config, error) {
	cfg := DefaultConfig()

	for _, loader := range loaders {
		if loader == nil {
			continue
		}

		values, err := loader.Load(ctx)
		if err != nil {
			if isLoaderSkipError(err) {
				continue
			}

			return Config{}, err
		}

		if len(values) == 0 {
			continue
		}

		err = decodeInto(&cfg, values)
		if err != nil {
			return Config{}, ewrap.Wrap(err, "decode config")
		}
	}

	err := Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decodeInto(target *Config, input map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return ewrap.Wrap(err, "create decoder")
	}

	err = decoder.Decode(input)
	if err != nil {
		return ewrap.Wrap(err, "decode config")
	}

	return nil
}

// FileLoader loads configuration from a YAML file. With ExpandEnv set,
// ${VAR} references are replaced before parsing, so the token can live in
// the environment while the rest of the settings stay in the file.
type FileLoader struct {
	Path      string
	FS        fs.FS
	ExpandEnv bool
}

// Load implements Loader.
func (fl FileLoader) Load(_ context.Context) (map[string]any, error) {
	path := fl.Path
	if path == "" {
		path = DefaultFile
	}

	data, err := readFile(fl.FS, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newLoaderSkipError()
		}

		return nil, err
	}

	if fl.ExpandEnv {
		data = []byte(os.ExpandEnv(string(data)))
	}

	var out map[string]any

	err = yaml.Unmarshal(data, &out)
	if err != nil {
		return nil, ewrap.Wrapf(err, "unmarshal yaml %q", path)
	}

	return sanitizeMap(out), nil
}

func readFile(fsys fs.FS, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if fsys != nil {
		data, err = fs.ReadFile(fsys, filepath.Clean(path))
	} else {
		data, err = os.ReadFile(filepath.Clean(path))
	}

	if err != nil {
		return nil, ewrap.Wrapf(err, errMsgUnableToReadConfigFromPath, path)
	}

	return data, nil
}

// EnvLoader reads configuration overrides from environment variables.
// Nested keys use a double underscore: GUANCE_EXPORTERS__GUANCE__TOKEN.
// List settings take comma-separated values and header maps take
// comma-separated key=value pairs.
type EnvLoader struct {
	Prefix string
}

// Load implements Loader.
func (el EnvLoader) Load(ctx context.Context) (map[string]any, error) {
	prefix := el.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	result := map[string]any{}

	for _, kv := range os.Environ() {
		if err := ctx.Err(); err != nil {
			return nil, ewrap.Wrap(err, "load environment")
		}

		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}

		path := envKeyToPath(strings.TrimPrefix(name, prefix))
		if len(path) == 0 {
			continue
		}

		result = setNested(result, path, envValue(path, value))
	}

	if len(result) == 0 {
		return nil, newLoaderSkipError()
	}

	return result, nil
}

func envKeyToPath(key string) []string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "-", "_")

	var path []string

	for seg := range strings.SplitSeq(key, "__") {
		if seg = strings.Trim(seg, "_."); seg != "" {
			path = append(path, seg)
		}
	}

	return path
}

// envValue shapes a raw variable for the setting at path.
func envValue(path []string, raw string) any {
	switch strings.Join(path, ".") {
	case "instrumentation.http.ignored_routes",
		"instrumentation.grpc.metadata_allowlist":
		return splitList(raw)
	case "exporters.guance.headers",
		"exporters.otlp.headers":
		return splitPairs(raw)
	default:
		return raw
	}
}

func splitList(raw string) []string {
	var out []string

	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// splitPairs parses "k1=v1,k2=v2". Entries without "=" are ignored.
func splitPairs(raw string) map[string]any {
	out := map[string]any{}

	for _, part := range splitList(raw) {
		key, value, ok := strings.Cut(part, "=")
		if key = strings.TrimSpace(key); ok && key != "" {
			out[key] = strings.TrimSpace(value)
		}
	}

	return out
}

func setNested(root map[string]any, path []string, value any) map[string]any {
	if root == nil {
		root = map[string]any{}
	}

	cursor := root

	for idx, segment := range path {
		if idx == len(path)-1 {
			cursor[segment] = value

			return root
		}

		next, ok := cursor[segment].(map[string]any)
		if !ok || next == nil {
			next = map[string]any{}
			cursor[segment] = next
		}

		cursor = next
	}

	return root
}

func sanitizeMap(in map[string]any) map[string]any {
	data, err := json.Marshal(in)
	if err != nil {
		return in
	}

	var out map[string]any

	err = json.Unmarshal(data, &out)
	if err != nil {
		return in
	}

	return out
}

// Agent-style property names understood by PropertiesLoader.
const (
	PropertyEndpoint    = "otel.exporter.guance.endpoint"
	PropertyToken       = "otel.exporter.guance.token"
	PropertyServiceName = "otel.service.name"
)

var propertyPaths = map[string][]string{
	PropertyEndpoint:    {"exporters", "guance", "endpoint"},
	PropertyToken:       {"exporters", "guance", "token"},
	PropertyServiceName: {"service", "name"},
}

// PropertiesLoader maps the dotted agent properties (otel.exporter.guance.endpoint, ...) onto Config.
// With a nil Properties map the values are read from the matching environment variables,
// e.g. OTEL_EXPORTER_GUANCE_TOKEN. Present-but-empty values are kept.
type PropertiesLoader struct {
	Properties map[string]string
}

// Load implements Loader.
func (pl PropertiesLoader) Load(_ context.Context) (map[string]any, error) {
	result := map[string]any{}

	for property, path := range propertyPaths {
		value, ok := pl.lookup(property)
		if !ok {
			continue
		}

		result = setNested(result, path, value)
	}

	if len(result) == 0 {
		return nil, newLoaderSkipError()
	}

	return result, nil
}

func (pl PropertiesLoader) lookup(property string) (string, bool) {
	if pl.Properties != nil {
		value, ok := pl.Properties[property]

		return value, ok
	}

	return os.LookupEnv(PropertyEnvName(property))
}

// PropertyEnvName returns the environment variable name of a dotted property.
func PropertyEnvName(property string) string {
	return strings.ToUpper(strings.ReplaceAll(property, ".", "_"))
}
