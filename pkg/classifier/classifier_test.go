package classifier_test

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/guance/pkg/classifier"
)

func TestSourceType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  string
	}{
		{
			name:  "http method",
			attrs: []attribute.KeyValue{classifier.HTTPMethodKey.String("GET")},
			want:  classifier.SourceWeb,
		},
		{
			name:  "http request method",
			attrs: []attribute.KeyValue{classifier.HTTPRequestMethodKey.String("POST")},
			want:  classifier.SourceWeb,
		},
		{
			name:  "rpc system",
			attrs: []attribute.KeyValue{classifier.RPCSystemKey.String("grpc")},
			want:  classifier.SourceWeb,
		},
		{
			name:  "db system",
			attrs: []attribute.KeyValue{classifier.DBSystemKey.String("mysql")},
			want:  classifier.SourceDB,
		},
		{
			name:  "messaging system",
			attrs: []attribute.KeyValue{classifier.MessagingSystemKey.String("kafka")},
			want:  classifier.SourceMessage,
		},
		{
			name:  "no known keys",
			attrs: []attribute.KeyValue{attribute.String("foo", "bar")},
			want:  classifier.SourceCustom,
		},
		{
			name: "empty",
			want: classifier.SourceCustom,
		},
		{
			name: "http wins over db regardless of order",
			attrs: []attribute.KeyValue{
				classifier.DBSystemKey.String("postgresql"),
				classifier.HTTPMethodKey.String("GET"),
			},
			want: classifier.SourceWeb,
		},
		{
			name: "db wins over messaging",
			attrs: []attribute.KeyValue{
				classifier.MessagingSystemKey.String("kafka"),
				classifier.DBSystemKey.String("redis"),
			},
			want: classifier.SourceDB,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := classifier.SourceType(tc.attrs); got != tc.want {
				t.Fatalf("SourceType() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSpanType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                                 classifier.SpanEntry,
		"0000000000000000":                 classifier.SpanEntry,
		"00000000000000000000000000000000": classifier.SpanLocal,
		"00f067aa0ba902b7":                 classifier.SpanLocal,
		"1":                                classifier.SpanLocal,
		"0":                                classifier.SpanLocal,
	}

	for parent, want := range tests {
		if got := classifier.SpanType(parent); got != want {
			t.Fatalf("SpanType(%q) = %q, want %q", parent, got, want)
		}
	}
}
