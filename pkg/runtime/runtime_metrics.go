package runtime

import (
	"context"

	"github.com/hyp3rd/ewrap"
	runtimemetrics "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hyp3rd/guance/pkg/exporter"
	"github.com/hyp3rd/guance/pkg/logging"
)

type runtimeMetricsController struct {
	state        *MetricsState
	suppressed   func() int64
	registration metric.Registration
}

// suppressedCounter returns the drop counter of a throttled adapter, or nil.
func suppressedCounter(adapter logging.Adapter) func() int64 {
	throttled, ok := adapter.(interface{ Dropped() int64 })
	if !ok {
		return nil
	}

	return throttled.Dropped
}

func (c *runtimeMetricsController) start(rt *Runtime, provider *sdkmetric.MeterProvider, goRuntime bool) error {
	if goRuntime {
		err := runtimemetrics.Start(runtimemetrics.WithMeterProvider(provider))
		if err != nil {
			return ewrap.Wrap(err, "start runtime metrics")
		}
	}

	instruments, err := newRuntimeInstruments(provider)
	if err != nil {
		return err
	}

	reg, err := instruments.registerCallback(rt, c)
	if err != nil {
		return err
	}

	c.registration = reg

	return nil
}

func (c *runtimeMetricsController) shutdown() error {
	if c == nil || c.registration == nil {
		return nil
	}

	err := c.registration.Unregister()
	if err != nil {
		return ewrap.Wrap(err, "unregister runtime metrics")
	}

	return nil
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}

	return 0
}

type runtimeInstruments struct {
	meter                metric.Meter
	itemsSent            metric.Int64ObservableCounter
	itemsDropped         metric.Int64ObservableCounter
	batches              metric.Int64ObservableCounter
	configReloads        metric.Int64ObservableCounter
	logSuppressed        metric.Int64ObservableCounter
	instrumentationGauge metric.Int64ObservableGauge
}

func newRuntimeInstruments(provider *sdkmetric.MeterProvider) (*runtimeInstruments, error) {
	meter := provider.Meter("guance/runtime")
	ri := &runtimeInstruments{meter: meter}

	counters := []struct {
		target      *metric.Int64ObservableCounter
		name        string
		description string
	}{
		{&ri.itemsSent, "guance.exporter.items.sent", "Spans or metrics accepted by the openway"},
		{&ri.itemsDropped, "guance.exporter.items.dropped", "Spans or metrics lost to skipped or failed uploads"},
		{&ri.batches, "guance.exporter.batches", "Uploads by result (sent, skipped, failed)"},
		{&ri.configReloads, "guance.runtime.config.reloads", "Configuration reloads applied by the runtime"},
		{&ri.logSuppressed, "guance.runtime.log.suppressed", "Exporter log events dropped by the throttle"},
	}

	for _, c := range counters {
		counter, err := meter.Int64ObservableCounter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, ewrap.Wrapf(err, "create %s counter", c.name)
		}

		*c.target = counter
	}

	gauge, err := meter.Int64ObservableGauge(
		"guance.runtime.instrumentation.enabled",
		metric.WithDescription("Status (0=disabled,1=enabled) for built-in instrumentation modules"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create instrumentation enabled gauge")
	}

	ri.instrumentationGauge = gauge

	return ri, nil
}

func (ri *runtimeInstruments) registerCallback(rt *Runtime, c *runtimeMetricsController) (metric.Registration, error) {
	reg, err := ri.meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(ri.configReloads, c.state.ConfigReloads())

			if c.suppressed != nil {
				observer.ObserveInt64(ri.logSuppressed, c.suppressed())
			}

			for module, enabled := range rt.instrumentationStatus() {
				observer.ObserveInt64(
					ri.instrumentationGauge,
					boolToInt(enabled),
					metric.WithAttributes(attribute.String("module", module)),
				)
			}

			ri.observeExporter(observer, rt.exporters.traceStats())
			ri.observeExporter(observer, rt.exporters.metricStats())

			return nil
		},
		ri.itemsSent,
		ri.itemsDropped,
		ri.batches,
		ri.configReloads,
		ri.logSuppressed,
		ri.instrumentationGauge,
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "register runtime metrics callback")
	}

	return reg, nil
}

func (ri *runtimeInstruments) observeExporter(observer metric.Observer, snap exporter.StatsSnapshot) {
	if snap.Signal == "" {
		return
	}

	signal := attribute.String("signal", snap.Signal)

	observer.ObserveInt64(ri.itemsSent, snap.ItemsSent, metric.WithAttributes(signal))
	observer.ObserveInt64(ri.itemsDropped, snap.ItemsDropped, metric.WithAttributes(signal))

	for result, value := range map[string]int64{
		"sent":    snap.BatchesSent,
		"skipped": snap.BatchesSkipped,
		"failed":  snap.BatchesFailed,
	} {
		observer.ObserveInt64(ri.batches, value, metric.WithAttributes(signal, attribute.String("result", result)))
	}
}
