// Package sql wraps database/sql drivers with otelsql so that query spans carry db.system
// and are classified as db traffic.
package sql

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/guance/pkg/classifier"
	"github.com/hyp3rd/guance/pkg/config"
)

// ErrDriverNameCannotBeEmpty is returned when a required driver name is not provided.
var ErrDriverNameCannotBeEmpty = ewrap.New("driverName cannot be empty")

// driverSystems maps registered driver names to db.system values.
var driverSystems = map[string]string{
	"pgx":        "postgresql",
	"postgres":   "postgresql",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
	"sqlserver":  "mssql",
	"mssql":      "mssql",
	"oracle":     "oracle",
	"godror":     "oracle",
	"clickhouse": "clickhouse",
}

// Helper instruments database/sql connections with otelsql.
type Helper struct {
	cfg config.SQLInstrumentationConfig
	tp  trace.TracerProvider
	mp  metric.MeterProvider
}

// NewHelper constructs a Helper. Nil providers fall back to the otel globals.
func NewHelper(cfg config.SQLInstrumentationConfig, tp trace.TracerProvider, mp metric.MeterProvider) *Helper {
	return &Helper{cfg: cfg, tp: tp, mp: mp}
}

// Register wraps driverName and returns the name of the instrumented driver to pass to sql.Open.
func (h *Helper) Register(driverName string, opts ...otelsql.Option) (string, error) {
	if driverName == "" {
		return "", ErrDriverNameCannotBeEmpty
	}

	name, err := otelsql.Register(driverName, h.options(driverName, opts)...)
	if err != nil {
		return "", ewrap.Wrapf(err, "register instrumented driver %q", driverName)
	}

	return name, nil
}

// Open behaves like sql.Open and also reports connection pool stats.
func (h *Helper) Open(driverName, dataSourceName string, opts ...otelsql.Option) (*sql.DB, error) {
	if driverName == "" {
		return nil, ErrDriverNameCannotBeEmpty
	}

	options := h.options(driverName, opts)

	db, err := otelsql.Open(driverName, dataSourceName, options...)
	if err != nil {
		return nil, ewrap.Wrapf(err, "open instrumented database with driver %q", driverName)
	}

	err = otelsql.RegisterDBStatsMetrics(db, options...)
	if err != nil {
		return nil, errors.Join(ewrap.Wrap(err, "register db stats metrics"), db.Close())
	}

	return db, nil
}

// RegisterDBStats reports sql.DBStats of a database opened without Open.
func (h *Helper) RegisterDBStats(db *sql.DB, driverName string, opts ...otelsql.Option) error {
	if db == nil {
		return ewrap.New("db cannot be nil")
	}

	err := otelsql.RegisterDBStatsMetrics(db, h.options(driverName, opts)...)
	if err != nil {
		return ewrap.Wrap(err, "register db stats metrics")
	}

	return nil
}

// System returns the db.system value recorded for driverName.
func (h *Helper) System(driverName string) string {
	if h.cfg.System != "" {
		return h.cfg.System
	}

	name := strings.ToLower(driverName)
	if system, ok := driverSystems[name]; ok {
		return system
	}

	if name == "" {
		return "other_sql"
	}

	return name
}

func (h *Helper) options(driverName string, extra []otelsql.Option) []otelsql.Option {
	opts := []otelsql.Option{
		otelsql.WithAttributes(classifier.DBSystemKey.String(h.System(driverName))),
		otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableQuery:         !h.cfg.CollectQueries,
			DisableErrSkip:       true,
			OmitConnResetSession: true,
			OmitRows:             !h.cfg.TraceRows,
		}),
	}

	if h.tp != nil {
		opts = append(opts, otelsql.WithTracerProvider(h.tp))
	}

	if h.mp != nil {
		opts = append(opts, otelsql.WithMeterProvider(h.mp))
	}

	return append(opts, extra...)
}
