package transport

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/guance/pkg/logging"
)

var tokenQuery = regexp.MustCompile(`token=[^&\s"]*`)

// leveledLogger feeds retryablehttp's internal logging into a logging.Adapter.
type leveledLogger struct {
	adapter logging.Adapter
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.adapter.Warn(context.Background(), msg, kvAttrs(keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.adapter.Debug(context.Background(), msg, kvAttrs(keysAndValues)...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.adapter.Debug(context.Background(), msg, kvAttrs(keysAndValues)...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.adapter.Warn(context.Background(), msg, kvAttrs(keysAndValues)...)
}

func kvAttrs(keysAndValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if key == "url" {
			// request URLs carry the token
			continue
		}

		value := tokenQuery.ReplaceAllString(fmt.Sprint(keysAndValues[i+1]), "token=REDACTED")
		attrs = append(attrs, attribute.String(key, value))
	}

	return attrs
}
