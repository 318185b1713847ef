package lineprotocol_test

import (
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb1-client/models"

	"github.com/hyp3rd/guance/pkg/lineprotocol"
)

func TestEncodeRejectsRecordWithoutFields(t *testing.T) {
	t.Parallel()

	_, err := lineprotocol.Encode(lineprotocol.Record{
		Measurement: "opentelemetry",
		Tags:        map[string]string{"service": "checkout"},
		Time:        time.Unix(0, 0),
	})
	if !errors.Is(err, lineprotocol.ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}
}

func TestJoinLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{name: "nil", lines: nil, want: ""},
		{name: "empty", lines: []string{}, want: ""},
		{name: "single", lines: []string{"a v=1i 1"}, want: "a v=1i 1"},
		{name: "many", lines: []string{"a v=1i 1", "b v=2i 2"}, want: "a v=1i 1\nb v=2i 2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := lineprotocol.JoinLines(tc.lines); got != tc.want {
				t.Fatalf("JoinLines() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeKeepsOneRecordPerLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tags      map[string]string
		fields    map[string]any
		wantTags  map[string]string
		wantField string
	}{
		{
			name:     "multi-line statement",
			tags:     map[string]string{"db.statement": "SELECT 1\nFROM t", "a": "b"},
			wantTags: map[string]string{"db.statement": "SELECT 1 FROM t", "a": "b"},
		},
		{
			name:     "carriage returns",
			tags:     map[string]string{"msg": "one\r\ntwo\rthree"},
			wantTags: map[string]string{"msg": "one two three"},
		},
		{
			name:     "trailing backslash value",
			tags:     map[string]string{"a": `ends\`, "path": `C:\dir\`, "z": "last"},
			wantTags: map[string]string{"a": "ends", "path": `C:\dir`, "z": "last"},
		},
		{
			name:     "trailing backslash key",
			tags:     map[string]string{`odd\`: "v", "b": "w"},
			wantTags: map[string]string{"odd": "v", "b": "w"},
		},
		{
			name:     "separators",
			tags:     map[string]string{"db statement": "a b,c=d", "mid": `a\,b`},
			wantTags: map[string]string{"db statement": "a b,c=d", "mid": `a\,b`},
		},
		{
			name:      "multi-line string field",
			tags:      map[string]string{"service": "checkout"},
			fields:    map[string]any{"exception.stacktrace": "line1\nline2", `kind\`: "panic"},
			wantTags:  map[string]string{"service": "checkout"},
			wantField: "exception.stacktrace",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fields := tc.fields
			if fields == nil {
				fields = map[string]any{"duration": int64(1)}
			}

			line, err := lineprotocol.Encode(lineprotocol.Record{
				Measurement: "opentelemetry",
				Tags:        tc.tags,
				Fields:      fields,
				Time:        time.Unix(0, 1),
			})
			if err != nil {
				t.Fatalf("Encode returned error: %v", err)
			}

			points, err := models.ParsePointsString(line)
			if err != nil {
				t.Fatalf("ParsePointsString(%q) returned error: %v", line, err)
			}

			if len(points) != 1 {
				t.Fatalf("expected one point from %q, got %d", line, len(points))
			}

			got := points[0].Tags().Map()
			if len(got) != len(tc.wantTags) {
				t.Fatalf("expected tags %v, got %v", tc.wantTags, got)
			}

			for key, value := range tc.wantTags {
				if got[key] != value {
					t.Fatalf("tag %q: expected %q, got %q (line %q)", key, value, got[key], line)
				}
			}

			if tc.wantField == "" {
				return
			}

			parsed, err := points[0].Fields()
			if err != nil {
				t.Fatalf("Fields returned error: %v", err)
			}

			if parsed[tc.wantField] != "line1\nline2" || parsed["kind"] != "panic" {
				t.Fatalf("expected the string field to keep its line break, got %v", parsed)
			}
		})
	}
}

func TestEncodeDropsKeysThatSanitizeToEmpty(t *testing.T) {
	t.Parallel()

	_, err := lineprotocol.Encode(lineprotocol.Record{
		Measurement: "opentelemetry",
		Fields:      map[string]any{`\`: int64(1)},
		Time:        time.Unix(0, 1),
	})
	if !errors.Is(err, lineprotocol.ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}
}
