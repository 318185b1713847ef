// Package logging adapts slog, zap, zerolog and the standard logger to the
// Adapter used by the guance runtime. Every adapter stamps the active trace and
// span ids on the event and masks credential-bearing attributes.
package logging

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Redacted replaces the value of secret attributes.
const Redacted = "[REDACTED]"

// secretSuffixes match attribute keys whose values are never logged.
var secretSuffixes = []string{"token", "password", "secret", "authorization"}

// Adapter describes the logging contract used within the guance module.
type Adapter interface {
	Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Info(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue)
}

// NoopAdapter discards all logs.
type NoopAdapter struct{}

// NewNoopAdapter returns a logger that drops every log event.
func NewNoopAdapter() Adapter {
	return NoopAdapter{}
}

// Debug implements Adapter.
func (NoopAdapter) Debug(context.Context, string, ...attribute.KeyValue) {}

// Info implements Adapter.
func (NoopAdapter) Info(context.Context, string, ...attribute.KeyValue) {}

// Warn implements Adapter.
func (NoopAdapter) Warn(context.Context, string, ...attribute.KeyValue) {}

// Error implements Adapter.
func (NoopAdapter) Error(context.Context, error, string, ...attribute.KeyValue) {}

// SlogAdapter writes logs using log/slog.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a slog-based adapter. If logger is nil a default JSON logger is used.
func NewSlogAdapter(logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	return &SlogAdapter{logger: logger}
}

// Debug implements Adapter.
func (s *SlogAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.log(ctx, slog.LevelDebug, nil, msg, attrs)
}

// Info implements Adapter.
func (s *SlogAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.log(ctx, slog.LevelInfo, nil, msg, attrs)
}

// Warn implements Adapter.
func (s *SlogAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.log(ctx, slog.LevelWarn, nil, msg, attrs)
}

// Error implements Adapter.
func (s *SlogAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.log(ctx, slog.LevelError, err, msg, attrs)
}

func (s *SlogAdapter) log(ctx context.Context, lvl slog.Level, err error, msg string, attrs []attribute.KeyValue) {
	if !s.logger.Enabled(ctx, lvl) {
		return
	}

	fields := enrich(ctx, err, attrs)

	out := make([]slog.Attr, 0, len(fields))
	for _, attr := range fields {
		out = append(out, slog.Any(string(attr.Key), attrValue(attr)))
	}

	s.logger.LogAttrs(ctx, lvl, msg, out...)
}

// ZapAdapter writes logs via zap.Logger.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a zap adapter. A nil logger discards events.
func NewZapAdapter(logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ZapAdapter{logger: logger}
}

// Debug implements Adapter.
func (z *ZapAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	z.logger.Debug(msg, zapFields(ctx, nil, attrs)...)
}

// Info implements Adapter.
func (z *ZapAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	z.logger.Info(msg, zapFields(ctx, nil, attrs)...)
}

// Warn implements Adapter.
func (z *ZapAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	z.logger.Warn(msg, zapFields(ctx, nil, attrs)...)
}

// Error implements Adapter.
func (z *ZapAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	z.logger.Error(msg, zapFields(ctx, err, attrs)...)
}

func zapFields(ctx context.Context, err error, attrs []attribute.KeyValue) []zap.Field {
	fields := enrich(ctx, err, attrs)

	out := make([]zap.Field, 0, len(fields))
	for _, attr := range fields {
		out = append(out, zap.Any(string(attr.Key), attrValue(attr)))
	}

	return out
}

// ZerologAdapter writes logs via zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates an adapter using zerolog.
func NewZerologAdapter(logger zerolog.Logger) Adapter {
	return &ZerologAdapter{logger: logger}
}

// Debug implements Adapter.
func (z ZerologAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	emit(ctx, z.logger.Debug(), nil, msg, attrs)
}

// Info implements Adapter.
func (z ZerologAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	emit(ctx, z.logger.Info(), nil, msg, attrs)
}

// Warn implements Adapter.
func (z ZerologAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	emit(ctx, z.logger.Warn(), nil, msg, attrs)
}

// Error implements Adapter.
func (z ZerologAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	emit(ctx, z.logger.Error(), err, msg, attrs)
}

// emit tolerates the nil event zerolog returns for disabled levels.
func emit(ctx context.Context, event *zerolog.Event, err error, msg string, attrs []attribute.KeyValue) {
	if event == nil {
		return
	}

	for _, attr := range enrich(ctx, err, attrs) {
		event = event.Interface(string(attr.Key), attrValue(attr))
	}

	event.Msg(msg)
}

// StdAdapter writes key=value lines through the standard library logger.
type StdAdapter struct {
	logger *log.Logger
}

// NewStdAdapter creates an adapter around log.Logger. If logger is nil log.Default is used.
func NewStdAdapter(logger *log.Logger) Adapter {
	if logger == nil {
		logger = log.Default()
	}

	return &StdAdapter{logger: logger}
}

// Debug implements Adapter.
func (s *StdAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("DEBUG", msg, enrich(ctx, nil, attrs)))
}

// Info implements Adapter.
func (s *StdAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("INFO", msg, enrich(ctx, nil, attrs)))
}

// Warn implements Adapter.
func (s *StdAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("WARN", msg, enrich(ctx, nil, attrs)))
}

// Error implements Adapter.
func (s *StdAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	s.logger.Println(formatLine("ERROR", msg, enrich(ctx, err, attrs)))
}

// enrich prepends trace ids, appends err and masks secrets. attrs is not modified.
func enrich(ctx context.Context, err error, attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs)+3)

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		out = append(out,
			attribute.String("trace_id", spanCtx.TraceID().String()),
			attribute.String("span_id", spanCtx.SpanID().String()),
		)
	}

	for _, attr := range attrs {
		if isSecret(attr.Key) {
			attr = attr.Key.String(Redacted)
		}

		out = append(out, attr)
	}

	if err != nil {
		out = append(out, attribute.String("error", err.Error()))
	}

	return out
}

func isSecret(key attribute.Key) bool {
	name := strings.ToLower(string(key))

	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

func attrValue(attr attribute.KeyValue) any {
	//nolint:exhaustive // slices and invalid values fall through to AsInterface.
	switch attr.Value.Type() {
	case attribute.BOOL:
		return attr.Value.AsBool()
	case attribute.INT64:
		return attr.Value.AsInt64()
	case attribute.FLOAT64:
		return attr.Value.AsFloat64()
	case attribute.STRING:
		return attr.Value.AsString()
	default:
		return attr.Value.AsInterface()
	}
}

func formatLine(level, msg string, attrs []attribute.KeyValue) string {
	var b strings.Builder

	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)

	for _, attr := range attrs {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attrValue(attr))
	}

	return b.String()
}
