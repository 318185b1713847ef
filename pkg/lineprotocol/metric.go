package lineprotocol

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/hyp3rd/guance/internal/constants"
)

// Supported reports whether the aggregation shape is encoded.
// Histogram, exponential histogram and summary data are not.
func Supported(data metricdata.Aggregation) bool {
	switch data.(type) {
	case metricdata.Gauge[int64], metricdata.Gauge[float64],
		metricdata.Sum[int64], metricdata.Sum[float64]:
		return true
	default:
		return false
	}
}

// MetricRecords builds one record per data point of a gauge or sum.
// Unsupported shapes yield no records.
func MetricRecords(m metricdata.Metrics, res *resource.Resource) []Record {
	switch data := m.Data.(type) {
	case metricdata.Gauge[int64]:
		return pointRecords(m.Name, data.DataPoints, res)
	case metricdata.Gauge[float64]:
		return pointRecords(m.Name, data.DataPoints, res)
	case metricdata.Sum[int64]:
		return pointRecords(m.Name, data.DataPoints, res)
	case metricdata.Sum[float64]:
		return pointRecords(m.Name, data.DataPoints, res)
	default:
		return nil
	}
}

// MetricPointRecord builds the record of a single data point: the field is the metric name,
// tags are host, the point attributes and the resource attributes.
func MetricPointRecord[N int64 | float64](name string, point metricdata.DataPoint[N], res *resource.Resource) Record {
	resAttrs := resourceAttributes(res)

	tags := make(map[string]string, point.Attributes.Len()+len(resAttrs)+1)
	tags["host"] = constants.HostPlaceholder

	iter := point.Attributes.Iter()
	for iter.Next() {
		addTag(tags, iter.Attribute())
	}

	for _, attr := range resAttrs {
		addTag(tags, attr)
	}

	return Record{
		Measurement: constants.MetricMeasurement,
		Tags:        tags,
		Fields:      map[string]any{name: point.Value},
		Time:        point.Time,
	}
}

func pointRecords[N int64 | float64](name string, points []metricdata.DataPoint[N], res *resource.Resource) []Record {
	records := make([]Record, 0, len(points))
	for _, point := range points {
		records = append(records, MetricPointRecord(name, point, res))
	}

	return records
}

func addTag(tags map[string]string, attr attribute.KeyValue) {
	tags[string(attr.Key)] = attr.Value.Emit()
}
