package logging

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hyp3rd/guance/pkg/config"
)

// FromConfig builds an Adapter from logging configuration.
func FromConfig(cfg config.LoggingConfig) Adapter {
	base := buildBaseAdapter(cfg)
	base = applyLevelFilter(base, cfg.Level)
	base = applySampling(base, cfg.SampleRatio)

	return base
}

// DiagnosticsFromConfig wraps the adapter with the throttle used for exporter warnings.
func DiagnosticsFromConfig(adapter Adapter, cfg config.LoggingConfig) Adapter {
	every := time.Duration(0)
	if cfg.WarnPerMinute > 0 {
		every = time.Minute / time.Duration(cfg.WarnPerMinute)
	}

	return NewThrottled(adapter, every, cfg.WarnPerMinute)
}

func buildBaseAdapter(cfg config.LoggingConfig) Adapter {
	switch strings.ToLower(cfg.Adapter) {
	case "std":
		return NewStdAdapter(nil)
	case "zap":
		logger, err := newZapLogger(cfg)
		if err == nil {
			return NewZapAdapter(logger)
		}
	case "zerolog":
		logger := zerolog.New(os.Stdout).Level(zerologLevel(cfg.Level)).With().Timestamp().Logger()

		return NewZerologAdapter(logger)
	default:
		return newSlogFromConfig(cfg)
	}

	return newSlogFromConfig(cfg)
}

func newSlogFromConfig(cfg config.LoggingConfig) Adapter {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slogLevel(cfg.Level),
	}
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return NewSlogAdapter(slog.New(handler))
}

func newZapLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	configZap := zap.NewProductionConfig()
	configZap.Level = zap.NewAtomicLevelAt(zapLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "text":
		configZap.Encoding = "console"
	default:
		configZap.Encoding = "json"
	}

	zapLogger, err := configZap.Build()
	if err != nil {
		return nil, ewrap.Wrap(err, "build zap logger")
	}

	return zapLogger, nil
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(value string) level {
	switch strings.ToLower(value) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func applyLevelFilter(adapter Adapter, value string) Adapter {
	if adapter == nil {
		return NewNoopAdapter()
	}

	lvl := parseLevel(value)
	if lvl <= levelInfo {
		return adapter
	}

	return levelAdapter{inner: adapter, min: lvl}
}

// levelAdapter drops events below min. Backends filter too; this also covers the std adapter.
type levelAdapter struct {
	inner Adapter
	min   level
}

func (a levelAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if a.min <= levelDebug {
		a.inner.Debug(ctx, msg, attrs...)
	}
}

func (a levelAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if a.min <= levelInfo {
		a.inner.Info(ctx, msg, attrs...)
	}
}

func (a levelAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if a.min <= levelWarn {
		a.inner.Warn(ctx, msg, attrs...)
	}
}

func (a levelAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	a.inner.Error(ctx, err, msg, attrs...)
}

func applySampling(adapter Adapter, ratio float64) Adapter {
	if adapter == nil {
		return NewNoopAdapter()
	}

	if ratio <= 0 {
		return &samplingAdapter{inner: adapter, ratio: 0}
	}

	if ratio >= 1 {
		return adapter
	}

	return &samplingAdapter{
		inner: adapter,
		ratio: ratio,
	}
}

// samplingAdapter samples debug and info events; warnings and errors always pass.
type samplingAdapter struct {
	inner Adapter
	ratio float64
}

func (s *samplingAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if s.shouldLog() {
		s.inner.Debug(ctx, msg, attrs...)
	}
}

func (s *samplingAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if s.shouldLog() {
		s.inner.Info(ctx, msg, attrs...)
	}
}

func (s *samplingAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.inner.Warn(ctx, msg, attrs...)
}

func (s *samplingAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.inner.Error(ctx, err, msg, attrs...)
}

func (s *samplingAdapter) shouldLog() bool {
	if s.ratio <= 0 {
		return false
	}

	return randomFloat64() <= s.ratio
}

func randomFloat64() float64 {
	var randomBytes [8]byte

	_, err := rand.Read(randomBytes[:])
	if err != nil {
		return 1
	}

	n := binary.BigEndian.Uint64(randomBytes[:])

	return float64(n) / float64(math.MaxUint64)
}

func slogLevel(value string) slog.Level {
	switch parseLevel(value) {
	case levelDebug:
		return slog.LevelDebug
	case levelWarn:
		return slog.LevelWarn
	case levelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(value string) zapcore.Level {
	switch parseLevel(value) {
	case levelDebug:
		return zapcore.DebugLevel
	case levelWarn:
		return zapcore.WarnLevel
	case levelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func zerologLevel(value string) zerolog.Level {
	switch parseLevel(value) {
	case levelDebug:
		return zerolog.DebugLevel
	case levelWarn:
		return zerolog.WarnLevel
	case levelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
