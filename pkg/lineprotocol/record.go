// Package lineprotocol maps OpenTelemetry spans and metric points onto line-protocol records.
//
// Rendering and escaping are delegated to the influxdb1 models package, which sorts tags and
// fields by key so that identical input always yields byte-identical lines. Keys and tag values
// are sanitized first for the two cases that package does not escape: line breaks and a
// trailing backslash.
package lineprotocol

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/influxdata/influxdb1-client/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ErrNoFields is returned by Encode for a record without fields; line protocol requires at least one.
var ErrNoFields = ewrap.New("record has no fields")

// Record is a single line-protocol point before rendering.
// Tags and Fields are separate namespaces; tag values are always strings.
type Record struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Encode renders the record as one line, without a trailing newline.
func Encode(rec Record) (string, error) {
	fields := make(models.Fields, len(rec.Fields))
	for _, key := range slices.Sorted(maps.Keys(rec.Fields)) {
		if clean := sanitize(key); clean != "" {
			if _, taken := fields[clean]; !taken {
				fields[clean] = rec.Fields[key]
			}
		}
	}

	if len(fields) == 0 {
		return "", ewrap.Wrapf(ErrNoFields, "encode %q point", rec.Measurement)
	}

	tags := make(map[string]string, len(rec.Tags))
	for _, key := range slices.Sorted(maps.Keys(rec.Tags)) {
		if clean := sanitize(key); clean != "" {
			if _, taken := tags[clean]; !taken {
				tags[clean] = sanitize(rec.Tags[key])
			}
		}
	}

	pt, err := models.NewPoint(rec.Measurement, models.NewTags(tags), fields, rec.Time)
	if err != nil {
		return "", ewrap.Wrapf(err, "encode %q point", rec.Measurement)
	}

	return pt.String(), nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// sanitize folds line breaks into spaces and drops trailing backslashes. A line break would
// split the record, and the parser treats any separator preceded by a backslash as escaped,
// so even a doubled trailing backslash would swallow the next separator.
func sanitize(s string) string {
	return strings.TrimRight(lineBreaks.Replace(s), `\`)
}

// JoinLines joins lines with a newline separator. An empty input yields an empty payload.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n")
}

func resourceString(res *resource.Resource, key attribute.Key) (string, bool) {
	if res == nil {
		return "", false
	}

	val, ok := res.Set().Value(key)
	if !ok {
		return "", false
	}

	return val.Emit(), true
}

func resourceAttributes(res *resource.Resource) []attribute.KeyValue {
	if res == nil {
		return nil
	}

	return res.Attributes()
}
