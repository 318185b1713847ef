// Package classifier derives the categorical span tags used by the Guance trace view.
package classifier

import "go.opentelemetry.io/otel/attribute"

// Attribute keys inspected by SourceType. Instrumentation in this module emits exactly these keys.
const (
	HTTPMethodKey        = attribute.Key("http.method")
	HTTPRequestMethodKey = attribute.Key("http.request.method")
	RPCSystemKey         = attribute.Key("rpc.system")
	DBSystemKey          = attribute.Key("db.system")
	MessagingSystemKey   = attribute.Key("messaging.system")
)

// Source types.
const (
	SourceWeb     = "web"
	SourceDB      = "db"
	SourceMessage = "message"
	SourceCustom  = "custom"
)

// Span types.
const (
	SpanEntry = "entry"
	SpanLocal = "local"
)

// zeroSpanID is the rendering of an invalid (absent) span id.
const zeroSpanID = "0000000000000000"

// rules are evaluated in order, the first rule with a present key wins.
var rules = []struct {
	source string
	keys   []attribute.Key
}{
	{source: SourceWeb, keys: []attribute.Key{HTTPMethodKey, HTTPRequestMethodKey, RPCSystemKey}},
	{source: SourceDB, keys: []attribute.Key{DBSystemKey}},
	{source: SourceMessage, keys: []attribute.Key{MessagingSystemKey}},
}

// SourceType classifies a span by the presence of well-known attribute keys.
func SourceType(attrs []attribute.KeyValue) string {
	if len(attrs) == 0 {
		return SourceCustom
	}

	present := make(map[attribute.Key]struct{}, len(attrs))
	for _, attr := range attrs {
		present[attr.Key] = struct{}{}
	}

	for _, rule := range rules {
		for _, key := range rule.keys {
			if _, ok := present[key]; ok {
				return rule.source
			}
		}
	}

	return SourceCustom
}

// SpanType reports whether a span is the entry point of its service (no parent) or a local child.
func SpanType(parentSpanID string) string {
	if parentSpanID == "" || parentSpanID == zeroSpanID {
		return SpanEntry
	}

	return SpanLocal
}
